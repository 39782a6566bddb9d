package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atlekbai/treefinder/internal/finder"
	"github.com/atlekbai/treefinder/internal/logger"
	"github.com/atlekbai/treefinder/internal/selector"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

type listResponse struct {
	Results    any   `json:"results"`
	Total      int   `json:"total"`
	Start      int   `json:"start"`
	Limit      int   `json:"limit"`
	ParentID   int64 `json:"parent_id,omitempty"`
	TemplateID int64 `json:"templates_id,omitempty"`
}

type explainResponse struct {
	SQL       string `json:"sql"`
	Args      []any  `json:"args"`
	CountSQL  string `json:"count_sql,omitempty"`
	CountArgs []any  `json:"count_args,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// writeFindError maps finder errors to responses. Selector mistakes are the
// caller's; anything else is logged and reported as a failed query.
func writeFindError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		se *finder.SyntaxError
		pe *selector.ParseError
		ee *finder.ExecutionError
	)
	switch {
	case errors.As(err, &se), errors.As(err, &pe):
		writeError(w, http.StatusBadRequest, "INVALID_SELECTOR", "Invalid selector", err.Error())
	case errors.As(err, &ee):
		logger.FromContext(ctx).Error("find failed", "error", err)
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", "Query failed", ee.Err.Error())
	default:
		logger.FromContext(ctx).Error("find failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", err.Error())
	}
}
