package api

import (
    "context"
    "encoding/json"
    "log"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so that streams on
// one instance see votes cast on another.
type RedisBroker struct {
    rdb *redis.Client

    mu   sync.Mutex
    subs map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    return &RedisBroker{rdb: redis.NewClient(opt), subs: map[chan SSEEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(key string) chan SSEEvent {
    ch := make(chan SSEEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(key))
    // wait for the subscription confirmation
    if _, err := ps.Receive(ctx); err != nil {
        log.Printf("[broker] subscribe %s: %v", key, err)
    }
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt SSEEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the Redis subscription; the forwarding goroutine then
// closes ch.
func (b *RedisBroker) Unsubscribe(_ string, ch chan SSEEvent) {
    b.mu.Lock()
    ps, ok := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ok { _ = ps.Close() }
}

func (b *RedisBroker) Publish(key string, evt SSEEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    if err := b.rdb.Publish(ctx, b.chanName(key), data).Err(); err != nil {
        log.Printf("[broker] publish %s: %v", evt.Type, err)
    }
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) chanName(key string) string { return "tripplanner:events:" + key }
