package api

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/google/uuid"

    "tripplanner/internal/model"
    "tripplanner/internal/opt"
    "tripplanner/internal/places"
    "tripplanner/internal/schedule"
    "tripplanner/internal/voting"
)

type optimizeRequest struct {
    // Key labels the run in /v1/admin/optimizer/runs; a random key is used when empty.
    Key         string                 `json:"key,omitempty"`
    Start       model.GeoPoint         `json:"start"`
    Places      []model.Place          `json:"places"`
    Preferences model.RoutePreferences `json:"preferences"`
}

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req optimizeRequest
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateOptimizeRequest(&req); err != nil {
        writeError(w, r, "Invalid optimize request", err)
        return
    }
    started := time.Now()
    route, err := s.Optimizer.Optimize(r.Context(), req.Start, req.Places, req.Preferences)
    if err != nil {
        writeError(w, r, "Optimize failed", err)
        return
    }
    key := req.Key
    if key == "" { key = uuid.NewString() }
    mode := req.Preferences.Mode
    if mode == "" { mode = model.ModeDriving }
    opt.RecordRun(opt.RunStats{
        Key: key, Places: len(req.Places), Mode: string(mode),
        Passes: route.Passes, BudgetExhausted: route.BudgetExhausted,
        DistanceKm: route.TotalDistanceKm, EfficiencyScore: route.EfficiencyScore,
        DurationMs: time.Since(started).Milliseconds(), At: time.Now().UTC(),
    })
    writeJSON(w, http.StatusOK, map[string]any{"key": key, "route": route})
}

// ScheduleHandler handles POST /v1/schedule
func (s *Server) ScheduleHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req schedule.Request
    if err := decodeJSON(w, r, &req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateScheduleRequest(&req); err != nil {
        writeError(w, r, "Invalid schedule request", err)
        return
    }
    res, err := schedule.Schedule(req)
    if err != nil {
        writeError(w, r, "Schedule failed", err)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

// SuggestionsHandler handles GET /v1/suggestions?day=&destination=[&refresh=true]
func (s *Server) SuggestionsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    day := queryInt(r, "day", 1)
    dest := r.URL.Query().Get("destination")
    if err := validateSuggestionQuery(day, dest); err != nil {
        writeError(w, r, "Invalid suggestion query", err)
        return
    }
    if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
        if err := s.Suggest.Refresh(r.Context(), day, dest); err != nil {
            writeError(w, r, "Refresh failed", err)
            return
        }
    }
    got, src := s.Suggest.GetOrFetch(r.Context(), day, dest)
    writeJSON(w, http.StatusOK, map[string]any{"day": day, "destination": dest, "source": src, "suggestions": got})
}

// DiscoverHandler handles POST /v1/discover
func (s *Server) DiscoverHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var body discoverRequest
    if err := decodeJSON(w, r, &body); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    req, err := s.discoverInput(r.Context(), body)
    if err != nil {
        writeError(w, r, "Invalid discover request", err)
        return
    }
    b, err := s.Planner.Discover(req)
    if err != nil {
        writeError(w, r, "Discover failed", err)
        return
    }
    writeJSON(w, http.StatusOK, b)
}

// PlanHandler handles POST /v1/plan (discover, auto-resolve and route) and
// POST /v1/plan/routes (route already voted days).
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    switch r.URL.Path {
    case "/v1/plan":
        var body planRequest
        if err := decodeJSON(w, r, &body); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        req := body.PlanAllRequest
        var err error
        if req.Discover, err = s.discoverInput(r.Context(), body.Discover); err != nil {
            writeError(w, r, "Invalid plan request", err)
            return
        }
        res, err := s.Planner.Plan(r.Context(), req)
        if err != nil {
            writeError(w, r, "Plan failed", err)
            return
        }
        writeJSON(w, http.StatusOK, res)
    case "/v1/plan/routes":
        var req voting.PlanRequest
        if err := decodeJSON(w, r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        days, err := s.Planner.PlanRoutes(r.Context(), req)
        if err != nil {
            writeError(w, r, "Plan routes failed", err)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"days": days})
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

// discoverRequest is voting.DiscoverRequest with places in their raw wire
// form; the outer Places field shadows the embedded one when decoding.
type discoverRequest struct {
    voting.DiscoverRequest
    Places []places.RawPlace `json:"places"`
}

type planRequest struct {
    voting.PlanAllRequest
    Discover discoverRequest `json:"discover"`
}

// discoverInput normalizes the request places. Any rejected place fails the
// request; with no places at all the pool comes from stored places near the
// destination.
func (s *Server) discoverInput(ctx context.Context, body discoverRequest) (voting.DiscoverRequest, error) {
    req := body.DiscoverRequest
    ps, errs := places.NormalizeAll(body.Places)
    if len(errs) > 0 { return req, model.Invalid("places", "%d rejected, first: %v", len(errs), errs[0]) }
    req.Places = ps
    if len(req.Places) == 0 && req.Destination != nil && req.Destination.Location != nil {
        req.Places = s.nearbyPool(ctx, *req.Destination.Location)
    }
    return req, nil
}

// nearbyPool gathers the best rated stored places around center.
func (s *Server) nearbyPool(ctx context.Context, center model.GeoPoint) []model.Place {
    got, err := s.Places.SearchNearby(ctx, places.NearbyRequest{Location: center, RadiusMeters: places.MaxRadiusMeters, Limit: 60})
    if err != nil { return nil }
    return got
}

// PlacesHandler handles GET /v1/places (text search, or nearby search when
// lat and lng are given) and POST /v1/places (ingest raw provider records).
func (s *Server) PlacesHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        q := r.URL.Query()
        limit := queryInt(r, "limit", 20)
        if q.Get("lat") != "" || q.Get("lng") != "" {
            lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
            lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
            if errLat != nil || errLng != nil {
                writeError(w, r, "Invalid location", model.Invalid("location", "lat and lng must be numbers"))
                return
            }
            req := places.NearbyRequest{Location: model.GeoPoint{Lat: lat, Lng: lng}, RadiusMeters: queryInt(r, "radius", 5000), Category: q.Get("category"), Limit: limit}
            if err := validateNearbyRequest(req); err != nil {
                writeError(w, r, "Invalid nearby search", err)
                return
            }
            items, err := s.Places.SearchNearby(r.Context(), req)
            if err != nil {
                writeError(w, r, "Nearby search failed", err)
                return
            }
            writeJSON(w, http.StatusOK, map[string]any{"items": items})
            return
        }
        items, err := s.Store.SearchPlaces(r.Context(), q.Get("q"), limit)
        if err != nil {
            writeError(w, r, "Search places failed", err)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    case http.MethodPost:
        p, ok := s.requireUser(w, r)
        if !ok { return }
        if !p.IsAdmin() { writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path); return }
        var raws []places.RawPlace
        if err := decodeJSON(w, r, &raws); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        ps, errs := places.NormalizeAll(raws)
        n, err := s.Store.UpsertPlaces(r.Context(), ps)
        if err != nil {
            writeError(w, r, "Upsert places failed", err)
            return
        }
        rejected := make([]string, 0, len(errs))
        for _, e := range errs { rejected = append(rejected, e.Error()) }
        writeJSON(w, http.StatusAccepted, map[string]any{"upserted": n, "rejected": rejected})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    type pinger interface{ Ping(ctx context.Context) error }
    if rb, ok := s.Broker.(pinger); ok {
        if err := rb.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

// Admin: recent optimizer runs
func (s *Server) OptimizerRunsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    p, ok := s.requireUser(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    runs := opt.Runs()
    if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(runs) { runs = runs[:limit] }
    writeJSON(w, 200, map[string]any{"items": runs})
}

// Admin: webhook deliveries, filtered by tripId and status
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    p, ok := s.requireUser(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    q := r.URL.Query()
    items, err := s.Store.ListWebhookDeliveries(r.Context(), q.Get("tripId"), q.Get("status"), queryInt(r, "limit", 100))
    if err != nil { writeError(w, r, "List deliveries failed", err); return }
    writeJSON(w, 200, map[string]any{"items": items})
}
