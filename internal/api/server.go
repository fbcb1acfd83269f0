package api

import (
    "context"
    "log"
    "strings"

    "tripplanner/internal/auth"
    "tripplanner/internal/config"
    "tripplanner/internal/llm"
    "tripplanner/internal/opt"
    "tripplanner/internal/places"
    "tripplanner/internal/store"
    "tripplanner/internal/suggest"
    "tripplanner/internal/voting"
    "tripplanner/internal/webhooks"
    "tripplanner/internal/workflow"
)

type Server struct {
    Config    config.Config
    Store     store.Store
    Workflow  *workflow.Service
    Optimizer *opt.Optimizer
    Planner   *voting.Coordinator
    Suggest   *suggest.Service
    Places    places.Searcher
    Pub       *webhooks.Publisher
    Auth      *auth.Verifier
    Broker    EventBroker

    closers []func() error
}

// NewServer wires the service from cfg. Storage is Postgres when a database
// URL is set, else MongoDB when a Mongo URL is set, else in-memory. A Redis
// URL switches the suggestion cache and the event broker to Redis.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
    s := &Server{Config: cfg}
    switch {
    case strings.TrimSpace(cfg.DatabaseURL) != "":
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil { return nil, err }
        if cfg.DBMigrate {
            if err := sp.Migrate(ctx); err != nil { _ = sp.Close(); return nil, err }
        }
        s.Store = sp
        s.closers = append(s.closers, sp.Close)
    case strings.TrimSpace(cfg.MongoURL) != "":
        sm, err := store.NewMongo(ctx, cfg.MongoURL, cfg.MongoDB)
        if err != nil { return nil, err }
        s.Store = sm
        s.closers = append(s.closers, func() error { return sm.Close(context.Background()) })
    default:
        s.Store = store.NewMemory()
    }

    var cache suggest.Cache = suggest.NewMemoryCache()
    s.Broker = NewBroker()
    if cfg.RedisURL != "" {
        if rc, err := suggest.NewRedisCache(cfg.RedisURL); err == nil {
            cache = rc
        } else {
            log.Printf("[api] redis cache disabled: %v", err)
        }
        if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
            s.Broker = rb
            s.closers = append(s.closers, rb.Close)
        } else {
            log.Printf("[api] redis broker disabled: %v", err)
        }
    }

    var client llm.Client
    if cfg.LLM.Endpoint != "" {
        lc := llm.DefaultConfig()
        lc.Endpoint = cfg.LLM.Endpoint
        lc.Model = cfg.LLM.Model
        lc.TimeoutMs = cfg.LLM.TimeoutMs
        lc.MaxRetries = cfg.LLM.MaxRetries
        client = llm.NewOllamaClient(lc, llm.Observers{llm.LogObserver{}, llm.MetricsObserver{}})
    }
    s.Suggest = suggest.NewService(cache, client, cfg.SuggestTTL, cfg.ProviderRPS)

    s.Optimizer = opt.New(cfg.Optimizer.MaxPasses, cfg.OptimizerBudget())
    s.Planner = voting.NewCoordinator(s.Optimizer)
    s.Places = places.NewLimitedSearcher(places.StoreSearcher{Source: s.Store}, cfg.ProviderRPS, 3)

    var vibe workflow.VibeChecker = workflow.HeuristicVibe{}
    if client != nil { vibe = workflow.LLMVibe{Client: client, Fallback: workflow.HeuristicVibe{}} }
    s.Pub = webhooks.NewPublisher(s.Store, cfg.Webhooks.URLs, cfg.Webhooks.Secret)
    s.Workflow = workflow.NewService(s.Store, workflow.NewClusterer(s.Places, vibe), workflow.Sinks{s.Pub, BrokerSink{Broker: s.Broker}})

    s.Auth = auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.JWKSURL)
    return s, nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Config.Webhooks.MaxAttempts)
}

// Close releases store and broker connections.
func (s *Server) Close() {
    for i := len(s.closers) - 1; i >= 0; i-- {
        if err := s.closers[i](); err != nil { log.Printf("[api] close: %v", err) }
    }
}
