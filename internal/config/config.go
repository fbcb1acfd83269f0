// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order.
package config

import (
    "errors"
    "fmt"
    "io/fs"
    "log"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
    "gopkg.in/yaml.v3"
)

type LLM struct {
    Endpoint   string `yaml:"endpoint"`
    Model      string `yaml:"model"`
    TimeoutMs  int    `yaml:"timeoutMs"`
    MaxRetries int    `yaml:"maxRetries"`
}

type Optimizer struct {
    MaxPasses    int `yaml:"maxPasses"`
    TimeBudgetMs int `yaml:"timeBudgetMs"`
}

type Auth struct {
    Mode       string `yaml:"mode"` // dev, hmac, jwks
    HMACSecret string `yaml:"hmacSecret"`
    JWKSURL    string `yaml:"jwksUrl"`
}

type Webhooks struct {
    URLs        []string `yaml:"urls"`
    Secret      string   `yaml:"secret"`
    MaxAttempts int      `yaml:"maxAttempts"`
}

type Config struct {
    Port         int           `yaml:"port"`
    DatabaseURL  string        `yaml:"databaseUrl"`
    DBMigrate    bool          `yaml:"dbMigrate"`
    MongoURL     string        `yaml:"mongoUrl"`
    MongoDB      string        `yaml:"mongoDb"`
    RedisURL     string        `yaml:"redisUrl"`
    LLM          LLM           `yaml:"llm"`
    SuggestTTL   time.Duration `yaml:"suggestTtl"`
    ProviderRPS  float64       `yaml:"providerRps"`
    Optimizer    Optimizer     `yaml:"optimizer"`
    RateRPS      float64       `yaml:"rateRps"`
    RateBurst    int           `yaml:"rateBurst"`
    AllowOrigins []string      `yaml:"allowOrigins"`
    Auth         Auth          `yaml:"auth"`
    Webhooks     Webhooks      `yaml:"webhooks"`
}

func Default() Config {
    return Config{
        Port:        8080,
        DBMigrate:   true,
        MongoDB:     "tripplanner",
        LLM:         LLM{Endpoint: "http://localhost:11434", Model: "llama3.2", TimeoutMs: 30000, MaxRetries: 1},
        SuggestTTL:  time.Hour,
        ProviderRPS: 2,
        Optimizer:   Optimizer{MaxPasses: 1000, TimeBudgetMs: 250},
        RateRPS:     20,
        RateBurst:   40,
        Auth:        Auth{Mode: "dev"},
        Webhooks:    Webhooks{MaxAttempts: 10},
    }
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored.
func LoadDotEnv(paths ...string) {
    if len(paths) == 0 { paths = []string{".env"} }
    for _, p := range paths {
        if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
            log.Printf("[config] %s: %v", p, err)
        }
    }
}

// Load builds the configuration. An empty path means CONFIG_FILE, falling
// back to config.yaml; a missing file is not an error.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" { path = os.Getenv("CONFIG_FILE") }
    if path == "" { path = "config.yaml" }
    data, err := os.ReadFile(path)
    switch {
    case err == nil:
        if err := yaml.Unmarshal(data, &cfg); err != nil {
            return Config{}, fmt.Errorf("config %s: %w", path, err)
        }
    case !errors.Is(err, fs.ErrNotExist):
        return Config{}, err
    }
    if err := cfg.applyEnv(os.Getenv); err != nil { return Config{}, err }
    return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
    str := func(key string, dst *string) {
        if v := strings.TrimSpace(getenv(key)); v != "" { *dst = v }
    }
    num := func(key string, dst *int) error {
        v := strings.TrimSpace(getenv(key))
        if v == "" { return nil }
        n, err := strconv.Atoi(v)
        if err != nil { return fmt.Errorf("%s: %w", key, err) }
        *dst = n
        return nil
    }
    float := func(key string, dst *float64) error {
        v := strings.TrimSpace(getenv(key))
        if v == "" { return nil }
        f, err := strconv.ParseFloat(v, 64)
        if err != nil { return fmt.Errorf("%s: %w", key, err) }
        *dst = f
        return nil
    }
    list := func(key string, dst *[]string) {
        v := strings.TrimSpace(getenv(key))
        if v == "" { return }
        out := []string{}
        for _, s := range strings.Split(v, ",") {
            if s = strings.TrimSpace(s); s != "" { out = append(out, s) }
        }
        *dst = out
    }

    str("DATABASE_URL", &c.DatabaseURL)
    str("MONGO_URL", &c.MongoURL)
    str("MONGO_DB", &c.MongoDB)
    str("REDIS_URL", &c.RedisURL)
    str("LLM_ENDPOINT", &c.LLM.Endpoint)
    str("LLM_MODEL", &c.LLM.Model)
    str("AUTH_MODE", &c.Auth.Mode)
    str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
    str("AUTH_JWKS_URL", &c.Auth.JWKSURL)
    str("WEBHOOK_SECRET", &c.Webhooks.Secret)
    list("ALLOW_ORIGINS", &c.AllowOrigins)
    list("WEBHOOK_URLS", &c.Webhooks.URLs)
    if v := getenv("DB_MIGRATE"); v != "" { c.DBMigrate = v != "false" }
    if v := strings.TrimSpace(getenv("SUGGEST_TTL")); v != "" {
        d, err := time.ParseDuration(v)
        if err != nil { return fmt.Errorf("SUGGEST_TTL: %w", err) }
        c.SuggestTTL = d
    }
    for _, err := range []error{
        num("PORT", &c.Port),
        num("LLM_TIMEOUT_MS", &c.LLM.TimeoutMs),
        num("LLM_MAX_RETRIES", &c.LLM.MaxRetries),
        num("OPT_MAX_PASSES", &c.Optimizer.MaxPasses),
        num("OPT_TIME_BUDGET_MS", &c.Optimizer.TimeBudgetMs),
        num("RATE_BURST", &c.RateBurst),
        num("WEBHOOK_MAX_ATTEMPTS", &c.Webhooks.MaxAttempts),
        float("PROVIDER_RPS", &c.ProviderRPS),
        float("RATE_RPS", &c.RateRPS),
    } {
        if err != nil { return err }
    }
    return nil
}

func (c Config) Validate() error {
    if c.Port <= 0 || c.Port > 65535 { return fmt.Errorf("port %d out of range", c.Port) }
    switch c.Auth.Mode {
    case "dev", "jwks":
    case "hmac":
        if c.Auth.HMACSecret == "" { return errors.New("auth mode hmac needs AUTH_HMAC_SECRET") }
    default:
        return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
    }
    if c.SuggestTTL < 0 { return errors.New("suggestTtl must not be negative") }
    if c.Webhooks.MaxAttempts <= 0 { return errors.New("webhooks.maxAttempts must be positive") }
    return nil
}

func (c Config) Addr() string { return ":" + strconv.Itoa(c.Port) }

func (c Config) LLMTimeout() time.Duration { return time.Duration(c.LLM.TimeoutMs) * time.Millisecond }

func (c Config) OptimizerBudget() time.Duration {
    return time.Duration(c.Optimizer.TimeBudgetMs) * time.Millisecond
}
