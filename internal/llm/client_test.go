package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct{ events []CallEvent }

func (r *recordingObserver) OnCall(e CallEvent) { r.events = append(r.events, e) }

func testConfig(endpoint string) Config {
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	return cfg
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.Equal(t, "plan a day", req.Prompt)
		assert.Equal(t, "json", req.Format)
		assert.False(t, req.Stream)
		json.NewEncoder(w).Encode(ollamaResponse{Model: "llama3.2", Response: `{"morning":[]}`})
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := NewOllamaClient(testConfig(srv.URL), obs)
	resp, err := c.Generate(context.Background(), GenerateRequest{Task: TaskSuggest, Prompt: "plan a day"})
	require.NoError(t, err)
	assert.Equal(t, `{"morning":[]}`, resp.Text)
	require.Len(t, obs.events, 1)
	assert.True(t, obs.events[0].Success)
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Tasks = map[Task]TaskConfig{TaskSuggest: {TimeoutMs: 30}}
	_, err := NewOllamaClient(cfg, nil).Generate(context.Background(), GenerateRequest{Task: TaskSuggest, Prompt: "x"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerate_Unavailable(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.MaxRetries = 0
	obs := &recordingObserver{}
	_, err := NewOllamaClient(cfg, obs).Generate(context.Background(), GenerateRequest{Task: TaskSuggest})
	assert.ErrorIs(t, err, ErrUnavailable)
	require.Len(t, obs.events, 1)
	assert.Equal(t, "UNAVAILABLE", obs.events[0].ErrorCode)
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: "{}"})
	}))
	defer srv.Close()

	resp, err := NewOllamaClient(testConfig(srv.URL), nil).Generate(context.Background(), GenerateRequest{Task: TaskSuggest})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerate_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(testConfig(srv.URL), nil).Generate(context.Background(), GenerateRequest{Task: TaskSuggest})
	assert.ErrorIs(t, err, ErrRetryExhausted)
}

func TestAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Write([]byte(`{"models":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.True(t, NewOllamaClient(testConfig(srv.URL), nil).Available(context.Background()))
	assert.False(t, NewOllamaClient(testConfig("http://127.0.0.1:1"), nil).Available(context.Background()))
}
