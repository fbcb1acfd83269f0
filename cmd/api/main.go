package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "tripplanner/internal/api"
    "tripplanner/internal/buildinfo"
    "tripplanner/internal/config"
    "tripplanner/internal/metrics"
)

func main() {
    config.LoadDotEnv()
    cfg, err := config.Load("")
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    metrics.RegisterDefault()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    srvDeps, err := api.NewServer(ctx, cfg)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    defer srvDeps.Close()

    mux := http.NewServeMux()

    // Planning
    mux.HandleFunc("/v1/optimize", srvDeps.OptimizeHandler)
    mux.HandleFunc("/v1/schedule", srvDeps.ScheduleHandler)
    mux.HandleFunc("/v1/suggestions", srvDeps.SuggestionsHandler)
    mux.HandleFunc("/v1/discover", srvDeps.DiscoverHandler)
    mux.HandleFunc("/v1/plan", srvDeps.PlanHandler)
    mux.HandleFunc("/v1/plan/routes", srvDeps.PlanHandler)
    mux.HandleFunc("/v1/places", srvDeps.PlacesHandler)

    // Trips and days
    mux.HandleFunc("/v1/trips", srvDeps.TripsHandler)
    mux.HandleFunc("/v1/trips/", srvDeps.TripByIDHandler) // includes /start, /complete, /days, /events
    mux.HandleFunc("/v1/days/", srvDeps.DayByIDHandler)   // includes /voting, /vote, /finalize, /live, /events, /ws

    // Admin
    mux.HandleFunc("/v1/admin/optimizer/runs", srvDeps.OptimizerRunsHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)

    // Health and introspection
    mux.HandleFunc("/healthz", srvDeps.HealthHandler)
    mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
    mux.HandleFunc("/debug/info", srvDeps.DebugJSON)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    limiter := api.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
    handler := logMiddleware(api.MetricsMiddleware(api.CORS(cfg.AllowOrigins, limiter.Middleware(mux))))

    srv := &http.Server{
        Addr:              cfg.Addr(),
        Handler:           handler,
        ReadHeaderTimeout: 5 * time.Second,
    }

    worker := srvDeps.NewWebhookWorker()
    worker.Start()
    defer close(worker.Stop)

    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        if err := srv.Shutdown(shutdownCtx); err != nil {
            log.Printf("shutdown: %v", err)
        }
    }()

    log.Printf("API %s listening on %s", buildinfo.Version, cfg.Addr())
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        log.Fatalf("server error: %v", err)
    }
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}
