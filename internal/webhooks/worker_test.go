package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/store"
	"tripplanner/internal/workflow"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
	Next          time.Time
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError, Next: *nextAttemptAt})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3}
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "day.locked", srv.URL, "secret", []byte(`{"id":"evt1"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	w.processOnce()

	assert.Equal(t, "day.locked", gotType)
	assert.True(t, VerifyHMAC("secret", gotBody, gotSig), "signature covers the raw body")
	require.Len(t, rs.marks, 1)
	assert.True(t, rs.marks[0].Success)

	delivered, _ := rs.ListWebhookDeliveries(context.Background(), "t1", store.DeliveryDelivered, 0)
	assert.Len(t, delivered, 1)
}

func TestWorkerProcessOnce_RetryThenDeadLetter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 2}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "day.live", srv.URL, "", []byte(`{}`))

	before := time.Now()
	w.processOnce()
	require.Len(t, rs.marks, 1)
	assert.False(t, rs.marks[0].Success)
	assert.Equal(t, "status 500", rs.marks[0].LastErr)
	assert.True(t, rs.marks[0].Next.After(before), "retry is scheduled in the future")
	assert.Empty(t, rs.fails)

	w.processOnce()
	assert.Len(t, rs.marks, 1, "nothing is due until the backoff passes")
}

func TestWorkerProcessOnce_Fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "day.live", srv.URL, "", []byte(`{}`))
	w.processOnce()
	require.Len(t, rs.fails, 1)
	assert.Equal(t, 500, rs.fails[0].Code)
	assert.Len(t, rs.DeadLetters(), 1)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(0))
	assert.Equal(t, 8*time.Second, nextBackoff(3))
	assert.Equal(t, time.Hour, nextBackoff(40))
}

func TestPublisher_QueuesPerURL(t *testing.T) {
	mem := store.NewMemory()
	p := NewPublisher(mem, []string{"http://a", "http://b"}, "k")
	ev := workflow.Event{ID: "e1", Type: workflow.EventDayLocked, TripID: "t1", DayID: "d1", At: time.Now(), Data: map[string]any{"stops": []string{"x"}}}
	p.Publish(context.Background(), ev)
	p.Publish(context.Background(), ev)

	got, err := mem.ListWebhookDeliveries(context.Background(), "t1", "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2, "one per url, duplicates dropped")
	assert.Equal(t, "k", got[0].Secret)
	assert.Contains(t, string(got[0].Payload), `"dayId":"d1"`)

	NewPublisher(mem, nil, "").Publish(context.Background(), ev)
}
