package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/expense-track/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// Detail messages returned on the wire. Clients match on these strings.
const (
	detailNotFound      = "Not found."
	detailForbidden     = "You do not have permission to perform this action."
	detailNoCredentials = "Authentication credentials were not provided."
	detailInvalidToken  = "Invalid token."
)

func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// ValidationErrors maps field names to the messages raised against them.
// Errors not tied to a field go under "non_field_errors".
type ValidationErrors map[string][]string

func (v ValidationErrors) Add(field, message string) {
	v[field] = append(v[field], message)
}

func writeValidation(w http.ResponseWriter, errs ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, errs)
}

// NotFound is the fallback for unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeDetail(w, http.StatusNotFound, detailNotFound)
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
