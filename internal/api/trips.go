package api

import (
    "context"
    "fmt"
    "net/http"
    "strings"

    "tripplanner/internal/model"
    "tripplanner/internal/workflow"
)

// TripsHandler handles POST/GET /v1/trips
func (s *Server) TripsHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/trips" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.requireUser(w, r)
    if !ok { return }
    switch r.Method {
    case http.MethodPost:
        var req workflow.CreateTripRequest
        if err := decodeJSON(w, r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        // the caller administers the trip they create
        req.AdminID = p.UserID
        t, err := s.Workflow.CreateTrip(r.Context(), req)
        if err != nil {
            writeError(w, r, "Create trip failed", err)
            return
        }
        writeJSON(w, http.StatusCreated, t)
    case http.MethodGet:
        items, next, err := s.Workflow.ListTrips(r.Context(), r.URL.Query().Get("cursor"), queryInt(r, "limit", 50))
        if err != nil {
            writeError(w, r, "List trips failed", err)
            return
        }
        // only trips the caller belongs to, unless they are a service admin
        out := make([]model.Trip, 0, len(items))
        for _, t := range items {
            if p.IsAdmin() || t.IsMember(p.UserID) { out = append(out, t) }
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": out, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// TripByIDHandler handles GET /v1/trips/{id}, POST /v1/trips/{id}/start,
// POST /v1/trips/{id}/complete, GET /v1/trips/{id}/days and
// GET /v1/trips/{id}/events
func (s *Server) TripByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/trips/")
    parts := strings.Split(strings.Trim(rest, "/"), "/")
    if rest == r.URL.Path || parts[0] == "" || len(parts) > 2 {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    id := parts[0]
    action := ""
    if len(parts) == 2 { action = parts[1] }
    p, ok := s.requireUser(w, r)
    if !ok { return }

    switch {
    case action == "" && r.Method == http.MethodGet:
        t, err := s.memberTrip(r.Context(), id, p)
        if err != nil { writeError(w, r, "Get trip failed", err); return }
        writeJSON(w, http.StatusOK, t)
    case action == "start" && r.Method == http.MethodPost:
        t, days, err := s.Workflow.StartTrip(r.Context(), id, p.UserID)
        if err != nil { writeError(w, r, "Start trip failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"trip": t, "days": days})
    case action == "complete" && r.Method == http.MethodPost:
        t, err := s.Workflow.CompleteTrip(r.Context(), id, p.UserID)
        if err != nil { writeError(w, r, "Complete trip failed", err); return }
        writeJSON(w, http.StatusOK, t)
    case action == "days" && r.Method == http.MethodGet:
        if _, err := s.memberTrip(r.Context(), id, p); err != nil { writeError(w, r, "List days failed", err); return }
        days, err := s.Workflow.ListDays(r.Context(), id)
        if err != nil { writeError(w, r, "List days failed", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": days})
    case action == "events" && r.Method == http.MethodGet:
        if _, err := s.memberTrip(r.Context(), id, p); err != nil { writeError(w, r, "Stream failed", err); return }
        s.streamEvents(w, r, id)
    case action == "start" || action == "complete" || action == "days" || action == "events" || action == "":
        w.WriteHeader(http.StatusMethodNotAllowed)
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

// DayByIDHandler handles GET /v1/days/{id} and the day lifecycle actions
// voting, vote, finalize and live, plus the events (SSE) and ws streams.
func (s *Server) DayByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/days/")
    parts := strings.Split(strings.Trim(rest, "/"), "/")
    if rest == r.URL.Path || parts[0] == "" || len(parts) > 2 {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    id := parts[0]
    action := ""
    if len(parts) == 2 { action = parts[1] }
    p, ok := s.requireUser(w, r)
    if !ok { return }

    want := map[string]string{"": http.MethodGet, "events": http.MethodGet, "ws": http.MethodGet,
        "voting": http.MethodPost, "vote": http.MethodPost, "finalize": http.MethodPost, "live": http.MethodPost}
    method, known := want[action]
    if !known { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    if r.Method != method { w.WriteHeader(http.StatusMethodNotAllowed); return }

    var (
        d   model.Day
        err error
    )
    switch action {
    case "", "events", "ws":
        d, err = s.memberDay(r.Context(), id, p)
        if err != nil { writeError(w, r, "Get day failed", err); return }
        switch action {
        case "events":
            s.streamEvents(w, r, d.ID)
        case "ws":
            s.DayWSHandler(w, r, d, p)
        default:
            writeJSON(w, http.StatusOK, d)
        }
        return
    case "voting":
        d, err = s.Workflow.BeginVoting(r.Context(), id, p.UserID)
    case "vote":
        var req workflow.VoteRequest
        if err := decodeJSON(w, r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        req.DayID, req.UserID = id, p.UserID
        d, err = s.Workflow.CastVote(r.Context(), req)
    case "finalize":
        d, err = s.Workflow.Finalize(r.Context(), id, p.UserID)
    case "live":
        d, err = s.Workflow.SetLive(r.Context(), id, p.UserID)
    }
    if err != nil {
        writeError(w, r, fmt.Sprintf("Day %s failed", action), err)
        return
    }
    writeJSON(w, http.StatusOK, d)
}

// memberTrip loads a trip the principal may read.
func (s *Server) memberTrip(ctx context.Context, id string, p Principal) (model.Trip, error) {
    t, err := s.Workflow.GetTrip(ctx, id)
    if err != nil { return model.Trip{}, err }
    if !p.IsAdmin() && !t.IsMember(p.UserID) { return model.Trip{}, workflow.ErrForbidden }
    return t, nil
}

func (s *Server) memberDay(ctx context.Context, id string, p Principal) (model.Day, error) {
    d, err := s.Workflow.GetDay(ctx, id)
    if err != nil { return model.Day{}, err }
    if _, err := s.memberTrip(ctx, d.TripID, p); err != nil { return model.Day{}, err }
    return d, nil
}
