// Package integrations defines place sources that feed the place store.
package integrations

import (
    "context"
    "fmt"

    "tripplanner/internal/model"
    "tripplanner/internal/places"
)

// PlaceFeed is the minimal interface for an external place catalogue.
type PlaceFeed interface {
    Name() string
    // FetchPlaces returns the next batch after cursor; an empty Cursor in the
    // result means the feed is exhausted.
    FetchPlaces(ctx context.Context, cursor string) (PlaceBatch, error)
}

type PlaceBatch struct {
    Places []places.RawPlace
    Cursor string
}

// Sink stores normalized places; store.Store satisfies it.
type Sink interface {
    UpsertPlaces(ctx context.Context, ps []model.Place) (int, error)
}

type ImportResult struct {
    Feed     string   `json:"feed"`
    Batches  int      `json:"batches"`
    Upserted int      `json:"upserted"`
    Rejected []string `json:"rejected"`
}

// Import drains feed into sink. Records that fail normalisation are reported
// in Rejected and skipped.
func Import(ctx context.Context, feed PlaceFeed, sink Sink) (ImportResult, error) {
    res := ImportResult{Feed: feed.Name(), Rejected: []string{}}
    cursor := ""
    for {
        b, err := feed.FetchPlaces(ctx, cursor)
        if err != nil { return res, fmt.Errorf("%s: fetch: %w", feed.Name(), err) }
        res.Batches++
        ps, errs := places.NormalizeAll(b.Places)
        for _, e := range errs { res.Rejected = append(res.Rejected, e.Error()) }
        if len(ps) > 0 {
            n, err := sink.UpsertPlaces(ctx, ps)
            if err != nil { return res, fmt.Errorf("%s: upsert: %w", feed.Name(), err) }
            res.Upserted += n
        }
        if b.Cursor == "" || b.Cursor == cursor { return res, nil }
        cursor = b.Cursor
    }
}
