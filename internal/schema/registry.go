package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/atlekbai/treefinder/internal/db"
	"github.com/atlekbai/treefinder/internal/fieldtype"
)

const (
	fieldsQuery = `
SELECT id, name, type, flags,
	coalesce(template_id, 0), coalesce(parent_id, 0), coalesce(find_pages_selector, '')
FROM fields
ORDER BY id`

	templatesQuery = `
SELECT id, name, use_roles, guest_searchable, coalesce(roles, '{}')
FROM templates
ORDER BY id`

	languagesQuery = `
SELECT id, name, is_default
FROM languages
ORDER BY id`
)

// Registry holds field, template and language metadata. Fields are kept in
// an arena addressed by id, with a name index on top.
type Registry struct {
	mu        sync.RWMutex
	fields    []Field
	fieldByID map[int]int
	fieldByNm map[string]int
	templates []Template
	tplByID   map[int]int
	tplByName map[string]int
	languages []Language

	hooksMu sync.Mutex
	hooks   []func()
}

// NewRegistry builds a registry from in-memory definitions. Fields without a
// delegate get the one registered for their Type.
func NewRegistry(fields []Field, templates []Template, languages []Language) (*Registry, error) {
	r := &Registry{}
	if err := r.replace(fields, templates, languages); err != nil {
		return nil, err
	}
	return r, nil
}

// Load reads metadata from the fields, templates and languages tables and
// replaces the registry contents. Change hooks run after a successful load.
func (r *Registry) Load(ctx context.Context, q db.Querier) error {
	var (
		fields    []Field
		templates []Template
		languages []Language
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := q.Query(gctx, fieldsQuery)
		if err != nil {
			return fmt.Errorf("load fields: %w", err)
		}
		fields, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Field, error) {
			var f Field
			err := row.Scan(&f.ID, &f.Name, &f.Type, &f.Flags, &f.TemplateID, &f.ParentID, &f.FindPagesSelector)
			return f, err
		})
		if err != nil {
			return fmt.Errorf("scan fields: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := q.Query(gctx, templatesQuery)
		if err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
		templates, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Template, error) {
			var t Template
			err := row.Scan(&t.ID, &t.Name, &t.UseRoles, &t.GuestSearchable, &t.Roles)
			return t, err
		})
		if err != nil {
			return fmt.Errorf("scan templates: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := q.Query(gctx, languagesQuery)
		if err != nil {
			return fmt.Errorf("load languages: %w", err)
		}
		languages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Language, error) {
			var l Language
			err := row.Scan(&l.ID, &l.Name, &l.IsDefault)
			return l, err
		})
		if err != nil {
			return fmt.Errorf("scan languages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := r.replace(fields, templates, languages); err != nil {
		return err
	}
	r.changed()
	return nil
}

func (r *Registry) replace(fields []Field, templates []Template, languages []Language) error {
	fieldByID := make(map[int]int, len(fields))
	fieldByNm := make(map[string]int, len(fields))
	arena := make([]Field, len(fields))
	for i, f := range fields {
		if IsNativeName(f.Name) {
			return fmt.Errorf("field %q shadows a native name", f.Name)
		}
		if f.Delegate == nil {
			d, ok := fieldtype.Lookup(f.Type)
			if !ok {
				return fmt.Errorf("field %q: unknown type %q (known: %s)", f.Name, f.Type, strings.Join(fieldtype.Names(), ", "))
			}
			f.Delegate = d
		}
		arena[i] = f
		fieldByID[f.ID] = i
		fieldByNm[f.Name] = i
	}

	tplByID := make(map[int]int, len(templates))
	tplByName := make(map[string]int, len(templates))
	for i, t := range templates {
		tplByID[t.ID] = i
		tplByName[t.Name] = i
	}

	r.mu.Lock()
	r.fields, r.fieldByID, r.fieldByNm = arena, fieldByID, fieldByNm
	r.templates, r.tplByID, r.tplByName = templates, tplByID, tplByName
	r.languages = languages
	r.mu.Unlock()
	return nil
}

// OnChange registers fn to run whenever the registry is reloaded.
func (r *Registry) OnChange(fn func()) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hooksMu.Unlock()
}

func (r *Registry) changed() {
	r.hooksMu.Lock()
	hooks := append([]func(){}, r.hooks...)
	r.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Field returns the custom field called name.
func (r *Registry) Field(name string) (*Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.fieldByNm[name]
	if !ok {
		return nil, false
	}
	return &r.fields[i], true
}

// FieldByID returns the custom field with the given id.
func (r *Registry) FieldByID(id int) (*Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.fieldByID[id]
	if !ok {
		return nil, false
	}
	return &r.fields[i], true
}

// IsNativeName reports whether name is a native page attribute.
func (r *Registry) IsNativeName(name string) bool {
	return IsNativeName(name)
}

// Template returns the template called name.
func (r *Registry) Template(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.tplByName[name]
	if !ok {
		return nil, false
	}
	return &r.templates[i], true
}

// TemplateByID returns the template with the given id.
func (r *Registry) TemplateByID(id int) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.tplByID[id]
	if !ok {
		return nil, false
	}
	return &r.templates[i], true
}

// Templates returns all templates in id order.
func (r *Registry) Templates() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Template(nil), r.templates...)
}

// Languages returns all languages.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Language(nil), r.languages...)
}

// NonDefaultLanguages returns the ids of languages other than the default.
func (r *Registry) NonDefaultLanguages() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []int
	for _, l := range r.languages {
		if !l.IsDefault {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// FieldCount returns the number of loaded fields.
func (r *Registry) FieldCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fields)
}

// TemplateCount returns the number of loaded templates.
func (r *Registry) TemplateCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}
