package api

import (
    "encoding/json"
    "net/http"
    "time"

    "tripplanner/internal/buildinfo"
)

// DebugJSON reports build info and the effective, secret-free configuration.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    c := s.Config
    storeKind := "memory"
    switch {
    case c.DatabaseURL != "":
        storeKind = "postgres"
    case c.MongoURL != "":
        storeKind = "mongo"
    }
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":               c.Port,
            "store":              storeKind,
            "authMode":           c.Auth.Mode,
            "allowOrigins":       c.AllowOrigins,
            "rateRps":            c.RateRPS,
            "rateBurst":          c.RateBurst,
            "suggestTtl":         c.SuggestTTL.String(),
            "providerRps":        c.ProviderRPS,
            "llmModel":           c.LLM.Model,
            "optimizerMaxPasses": c.Optimizer.MaxPasses,
            "optimizerBudgetMs":  c.Optimizer.TimeBudgetMs,
            "webhookUrls":        len(c.Webhooks.URLs),
            "webhookMaxAttempts": c.Webhooks.MaxAttempts,
            "hasRedisUrl":        c.RedisURL != "",
        },
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
