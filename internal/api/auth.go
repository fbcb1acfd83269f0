// Package api implements the HTTP handlers of the trip planner.
package api

import (
    "net/http"
    "strings"
)

type Principal struct {
    UserID string
    Role   string // admin, member
}

// getPrincipal resolves the acting user.
// - If Authorization: Bearer is present, uses the configured verifier (dev/hmac/jwks).
// - Else, in dev mode only, falls back to X-User-Id / X-Role headers.
// An empty UserID means the request is anonymous.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return Principal{UserID: pr.UserID, Role: pr.Role}
        }
        return Principal{}
    }
    if s.Auth != nil && s.Auth.Mode != "dev" { return Principal{} }
    user := strings.TrimSpace(r.Header.Get("X-User-Id"))
    role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
    if role == "" { role = "member" }
    return Principal{UserID: user, Role: role}
}

// requireUser writes 401 and returns false for anonymous requests.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (Principal, bool) {
    p := s.getPrincipal(r)
    if p.UserID == "" {
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token or X-User-Id required", r.URL.Path)
        return p, false
    }
    return p, true
}

// IsAdmin reports whether the principal has the service-wide admin role.
// Trip administration is decided per trip by the workflow service.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }
