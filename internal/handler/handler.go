package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atlekbai/treefinder/internal/access"
	"github.com/atlekbai/treefinder/internal/finder"
	"github.com/atlekbai/treefinder/internal/selector"
)

// Principals loads the principal a request runs as.
type Principals interface {
	Principal(ctx context.Context, userID int64) (access.Principal, error)
}

type Handler struct {
	finder     *finder.Finder
	principals Principals
}

// New returns a handler. With nil principals every request runs as the guest.
func New(f *finder.Finder, principals Principals) *Handler {
	return &Handler{finder: f, principals: principals}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/pages", h.List)
	mux.HandleFunc("GET /api/pages/explain", h.Explain)
	mux.HandleFunc("GET /healthz", Healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// List handles GET /api/pages?selector=...
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx, sels, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	res, err := h.finder.Find(ctx, sels, opts)
	if err != nil {
		writeFindError(ctx, w, err)
		return
	}

	var results any = res.IDs
	if opts.ReturnVerbose {
		results = res.Matches
		if res.Matches == nil {
			results = []finder.Match{}
		}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Results:    results,
		Total:      res.Total,
		Start:      res.Start,
		Limit:      res.Limit,
		ParentID:   res.ParentID,
		TemplateID: res.TemplateID,
	})
}

// Explain handles GET /api/pages/explain?selector=... and returns the SQL a
// find would run.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	ctx, sels, opts, ok := h.prepare(w, r)
	if !ok {
		return
	}
	comp, err := h.finder.Compile(ctx, sels, opts)
	if err != nil {
		writeFindError(ctx, w, err)
		return
	}
	args := comp.Args
	if args == nil {
		args = []any{}
	}
	writeJSON(w, http.StatusOK, explainResponse{
		SQL:       comp.SQL,
		Args:      args,
		CountSQL:  comp.CountSQL,
		CountArgs: comp.CountArgs,
	})
}

// Healthz handles GET /healthz.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// prepare parses the selector and options of r and attaches the principal
// and page number to its context. It writes the error response itself.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (context.Context, selector.Selectors, finder.Options, bool) {
	q := r.URL.Query()
	sels, err := selector.Parse(q.Get("selector"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SELECTOR", "Invalid selector", err.Error())
		return nil, nil, finder.Options{}, false
	}

	opts, page, err := parseOptions(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), "")
		return nil, nil, finder.Options{}, false
	}

	p, err := h.principal(r)
	if err != nil {
		var perr *paramError
		if errors.As(err, &perr) {
			writeError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), "")
		} else {
			writeError(w, http.StatusUnauthorized, "UNKNOWN_USER", "Unknown user", err.Error())
		}
		return nil, nil, finder.Options{}, false
	}

	if !p.Superuser {
		if opts.FindAll {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "include=all requires a superuser", "")
			return nil, nil, finder.Options{}, false
		}
		if cl, ok := bypassesAccess(sels); ok {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Selector bypasses access control", cl)
			return nil, nil, finder.Options{}, false
		}
	}

	ctx := access.WithPrincipal(r.Context(), p)
	if page > 0 {
		ctx = finder.WithPageNum(ctx, page)
	}
	return ctx, sels, opts, true
}

// bypassesAccess returns the first clause, embedded selectors included, that
// would turn access checking off.
func bypassesAccess(sels selector.Selectors) (string, bool) {
	for _, cl := range sels {
		if len(cl.Fields) == 1 {
			switch cl.Field() {
			case "check_access", "checkAccess":
				if n, _ := strconv.Atoi(cl.Value()); n <= 0 {
					return cl.String(), true
				}
			case "include":
				if cl.Op == selector.OpEqual && cl.Value() == "all" {
					return cl.String(), true
				}
			}
		}
		if cl.Quote != '[' {
			continue
		}
		for _, v := range cl.Values {
			if !selector.HasSelector(v) {
				continue
			}
			if sub, err := selector.Parse(v); err == nil {
				if s, ok := bypassesAccess(sub); ok {
					return s, true
				}
			}
		}
	}
	return "", false
}

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

// principal resolves X-User-ID, and X-Language when present.
func (h *Handler) principal(r *http.Request) (access.Principal, error) {
	p := access.GuestPrincipal()
	if v := r.Header.Get("X-User-ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			return access.Principal{}, &paramError{fmt.Sprintf("invalid X-User-ID %q", v)}
		}
		if h.principals != nil {
			if p, err = h.principals.Principal(r.Context(), id); err != nil {
				return access.Principal{}, err
			}
		}
	}
	if v := r.Header.Get("X-Language"); v != "" {
		lang, err := strconv.Atoi(v)
		if err != nil || lang < 0 {
			return access.Principal{}, &paramError{fmt.Sprintf("invalid X-Language %q", v)}
		}
		p.Language = lang
	}
	return p, nil
}

// parseOptions reads verbose, total, include and page.
func parseOptions(q url.Values) (finder.Options, int, error) {
	get := func(k string) string { return strings.TrimSpace(q.Get(k)) }
	opts := finder.DefaultOptions()

	switch v := get("verbose"); v {
	case "", "1", "true":
	case "0", "false":
		opts.ReturnVerbose = false
	default:
		return opts, 0, fmt.Errorf("invalid verbose %q", v)
	}

	switch v := get("total"); v {
	case "", "auto":
	case "0", "false", "off":
		opts.GetTotal = finder.TotalOff
	case "1", "true", "on":
		opts.GetTotal = finder.TotalOn
	case string(finder.TotalCalc), string(finder.TotalCount):
		opts.GetTotal = finder.TotalOn
		opts.GetTotalType = finder.TotalType(v)
	default:
		return opts, 0, fmt.Errorf("invalid total %q", v)
	}

	switch v := get("include"); v {
	case "":
	case "hidden":
		opts.FindHidden = true
	case "all":
		opts.FindAll = true
	default:
		return opts, 0, fmt.Errorf("invalid include %q", v)
	}

	page := 0
	if v := get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, 0, fmt.Errorf("invalid page %q", v)
		}
		page = n
	}
	return opts, page, nil
}
