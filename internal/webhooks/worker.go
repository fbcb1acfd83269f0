package webhooks

import (
    "bytes"
    "context"
    "fmt"
    "log"
    "net/http"
    "time"

    "tripplanner/internal/metrics"
    "tripplanner/internal/store"
)

const DefaultMaxAttempts = 10

// Worker delivers queued webhooks with exponential backoff and dead-letters
// them after MaxAttempts.
type Worker struct {
    Store store.Store
    HTTP  *http.Client
    Stop  chan struct{}
    MaxAttempts int
    Interval    time.Duration
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
    if maxAttempts <= 0 { maxAttempts = DefaultMaxAttempts }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: maxAttempts, Interval: time.Second}
}

func (w *Worker) Start() {
    interval := w.Interval
    if interval <= 0 { interval = time.Second }
    go func() {
        ticker := time.NewTicker(interval)
        defer ticker.Stop()
        for {
            select {
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce()
            }
        }
    }()
}

func (w *Worker) processOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
    if err != nil {
        log.Printf("[webhooks] fetch due deliveries: %v", err)
        return
    }
    for _, it := range items {
        w.deliver(ctx, it)
    }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
    success := false
    next := time.Now().Add(nextBackoff(it.Attempts))
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
    if err != nil {
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
        metrics.WebhookDeliveries.WithLabelValues(it.EventType, store.DeliveryFailed).Inc()
        return
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("X-Event-Type", it.EventType)
    if it.Secret != "" {
        req.Header.Set("X-Signature", SignHMAC(it.Secret, it.Payload))
    }
    start := time.Now()
    resp, err := w.HTTP.Do(req)
    latency := int(time.Since(start).Milliseconds())
    code := 0
    if err == nil && resp != nil {
        code = resp.StatusCode
        if resp.Body != nil { _ = resp.Body.Close() }
        if code >= 200 && code < 300 { success = true }
    }
    lastErr := ""
    if !success {
        if err != nil { lastErr = err.Error() } else { lastErr = fmt.Sprintf("status %d", code) }
    }
    if !success && it.Attempts+1 >= w.MaxAttempts {
        log.Printf("[webhooks] %s to %s dead-lettered after %d attempts: %s", it.EventType, it.URL, it.Attempts+1, lastErr)
        _ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
        metrics.WebhookDeliveries.WithLabelValues(it.EventType, store.DeliveryFailed).Inc()
        return
    }
    _ = w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency)
    status := store.DeliveryDelivered
    if !success { status = store.DeliveryRetry }
    metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 12 { attempts = 12 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
