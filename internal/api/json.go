package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"tripplanner/internal/model"
	"tripplanner/internal/store"
	"tripplanner/internal/workflow"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Field    string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps domain errors onto problem responses: validation 400,
// forbidden 403, missing 404, rejected transition 409, provider 502.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	var ve *model.ValidationError
	var se *model.StateTransitionError
	var pe *model.ProviderError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, Problem{Type: "about:blank", Title: title, Status: http.StatusBadRequest, Detail: err.Error(), Instance: r.URL.Path, Field: ve.Field})
	case errors.Is(err, workflow.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "Forbidden", err.Error(), r.URL.Path)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	case errors.As(err, &se):
		writeProblem(w, http.StatusConflict, title, err.Error(), r.URL.Path)
	case errors.As(err, &pe):
		writeProblem(w, http.StatusBadGateway, title, err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, title, err.Error(), r.URL.Path)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
