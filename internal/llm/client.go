// Package llm talks to the text-generation service that proposes day
// activities and vibe checks.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Task selects per-call generation parameters.
type Task string

const (
	TaskSuggest Task = "suggest"
	TaskVibe    Task = "vibe"
)

type TaskConfig struct {
	Temperature float64
	MaxTokens   int
	TimeoutMs   int // overrides Config.TimeoutMs when > 0
}

type Config struct {
	Endpoint   string
	Model      string
	TimeoutMs  int
	MaxRetries int
	Tasks      map[Task]TaskConfig
}

// DefaultConfig points at a local Ollama instance.
func DefaultConfig() Config {
	return Config{
		Endpoint:   "http://localhost:11434",
		Model:      "llama3.2",
		TimeoutMs:  30000,
		MaxRetries: 1,
		Tasks: map[Task]TaskConfig{
			TaskSuggest: {Temperature: 0.4, MaxTokens: 2048},
			TaskVibe:    {Temperature: 0.2, MaxTokens: 256, TimeoutMs: 8000},
		},
	}
}

func (c Config) timeout(t Task) time.Duration {
	ms := c.TimeoutMs
	if tc, ok := c.Tasks[t]; ok && tc.TimeoutMs > 0 {
		ms = tc.TimeoutMs
	}
	if ms <= 0 {
		ms = 30000
	}
	return time.Duration(ms) * time.Millisecond
}

type GenerateRequest struct {
	Task         Task
	SystemPrompt string
	Prompt       string
}

type GenerateResponse struct {
	Text      string
	Model     string
	LatencyMs int64
}

// Client generates text from a prompt.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	// Available reports whether the backend answers at all.
	Available(ctx context.Context) bool
}

type ollamaClient struct {
	cfg      Config
	http     *http.Client
	observer Observer
}

// NewOllamaClient returns a Client for the Ollama /api/generate endpoint.
func NewOllamaClient(cfg Config, observer Observer) Client {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &ollamaClient{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
		observer: observer,
	}
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system,omitempty"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

func (c *ollamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout(req.Task))
	defer cancel()

	tc := c.cfg.Tasks[req.Task]
	body := ollamaRequest{
		Model:   c.cfg.Model,
		System:  req.SystemPrompt,
		Prompt:  req.Prompt,
		Format:  "json",
		Options: ollamaOptions{Temperature: tc.Temperature, NumPredict: tc.MaxTokens},
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.do(ctx, body)
		if err == nil {
			latency := time.Since(start).Milliseconds()
			c.observer.OnCall(CallEvent{Task: req.Task, Model: c.cfg.Model, LatencyMs: latency, Success: true})
			return &GenerateResponse{Text: resp.Response, Model: resp.Model, LatencyMs: latency}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	var err error
	switch {
	case ctx.Err() != nil:
		err = ErrTimeout
	case isConnectionError(lastErr):
		err = ErrUnavailable
	default:
		err = fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr)
	}
	c.observer.OnCall(CallEvent{Task: req.Task, Model: c.cfg.Model, LatencyMs: time.Since(start).Milliseconds(), ErrorCode: errorCode(err)})
	return nil, err
}

func (c *ollamaClient) do(ctx context.Context, body ollamaRequest) (*ollamaResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate returned status %d: %s", httpResp.StatusCode, string(raw))
	}
	var resp ollamaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

func (c *ollamaClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrUnavailable):
		return "UNAVAILABLE"
	case errors.Is(err, ErrInvalidOutput):
		return "INVALID_OUTPUT"
	default:
		return "UNKNOWN"
	}
}
