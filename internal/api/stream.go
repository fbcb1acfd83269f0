package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "time"
)

const heartbeatEvery = 15 * time.Second

// streamEvents serves key's events as Server-Sent Events until the client
// goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, key string) {
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    ch := s.Broker.Subscribe(key)
    defer s.Broker.Unsubscribe(key, ch)

    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"id\":%q,\"ts\":%q}\n\n", key, time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(heartbeatEvery)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            b, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", string(b))
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}
