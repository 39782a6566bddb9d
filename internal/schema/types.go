package schema

import (
	"github.com/atlekbai/treefinder/internal/fieldtype"
)

// Field flags.
const (
	FlagAutojoin = 1 << iota
	FlagGlobal
	FlagSystem
)

// Field describes a custom field. Its values live in Table(), one row per
// page (or several for multi-value types), keyed by pages_id.
type Field struct {
	ID                int
	Name              string
	Type              string
	Flags             int
	TemplateID        int    // template of pages this field references, if any
	ParentID          int64  // parent of pages this field references, if any
	FindPagesSelector string // selector narrowing selectable referenced pages

	Delegate fieldtype.Delegate
}

// Table returns the field's storage table.
func (f *Field) Table() string {
	return "field_" + f.Name
}

// IsPageReference reports whether the field stores page ids.
func (f *Field) IsPageReference() bool {
	_, ok := f.Delegate.(fieldtype.PageReference)
	return ok
}

// Multilingual returns the field's delegate as a Multilingual, if it is one.
func (f *Field) Multilingual() (fieldtype.Multilingual, bool) {
	ml, ok := f.Delegate.(fieldtype.Multilingual)
	return ml, ok
}

// Template is a page type. Pages of a template with UseRoles are only
// visible to principals holding one of Roles, unless GuestSearchable.
type Template struct {
	ID              int
	Name            string
	UseRoles        bool
	GuestSearchable bool
	Roles           []int64
}

// HasRole reports whether the template grants access to role.
func (t *Template) HasRole(role int64) bool {
	for _, r := range t.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Language is a content language. Non-default languages add name<ID>
// columns to pages and data<ID> columns to multi-language field tables.
type Language struct {
	ID        int
	Name      string
	IsDefault bool
}

var nativeNames = map[string]bool{
	"id": true, "parent_id": true, "parent": true, "templates_id": true, "template": true,
	"name": true, "status": true, "sort": true, "created": true, "modified": true,
	"published": true, "created_users_id": true, "modified_users_id": true,
	"children": true, "child": true, "path": true, "url": true,
	"num_children": true, "numChildren": true, "has_parent": true, "hasParent": true,
}

// IsNativeName reports whether name is a pages column or relationship
// pseudo-field rather than a custom field.
func IsNativeName(name string) bool {
	return nativeNames[name]
}
