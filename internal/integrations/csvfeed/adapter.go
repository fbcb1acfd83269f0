// Package csvfeed reads places from a CSV export with a header row.
//
// Recognised columns (any order, case-insensitive): id, name, category,
// rating, reviews, price_level, lat, lng, geometry, city, zone, opens_at,
// closes_at, visit_duration_min, tags (separated by ';'), description.
// Unknown columns are ignored.
package csvfeed

import (
    "context"
    "encoding/csv"
    "errors"
    "fmt"
    "io"
    "strconv"
    "strings"

    "tripplanner/internal/integrations"
    "tripplanner/internal/places"
)

const DefaultBatchSize = 500

// Adapter streams a CSV document in batches. It is not safe for concurrent use.
type Adapter struct {
    BatchSize int

    r      *csv.Reader
    cols   map[string]int
    row    int
    closed bool
}

func New(r io.Reader) *Adapter {
    cr := csv.NewReader(r)
    cr.FieldsPerRecord = -1
    cr.TrimLeadingSpace = true
    return &Adapter{BatchSize: DefaultBatchSize, r: cr}
}

func (a *Adapter) Name() string { return "csv" }

func (a *Adapter) FetchPlaces(ctx context.Context, _ string) (integrations.PlaceBatch, error) {
    if a.closed { return integrations.PlaceBatch{}, nil }
    if a.cols == nil {
        header, err := a.r.Read()
        if err != nil { return integrations.PlaceBatch{}, fmt.Errorf("read header: %w", err) }
        a.cols = map[string]int{}
        for i, h := range header {
            a.cols[strings.ToLower(strings.TrimSpace(h))] = i
        }
        if _, ok := a.cols["name"]; !ok { return integrations.PlaceBatch{}, errors.New("header has no name column") }
    }
    size := a.BatchSize
    if size <= 0 { size = DefaultBatchSize }
    var out []places.RawPlace
    for len(out) < size {
        if err := ctx.Err(); err != nil { return integrations.PlaceBatch{}, err }
        rec, err := a.r.Read()
        if errors.Is(err, io.EOF) {
            a.closed = true
            return integrations.PlaceBatch{Places: out}, nil
        }
        if err != nil { return integrations.PlaceBatch{}, fmt.Errorf("row %d: %w", a.row+1, err) }
        a.row++
        out = append(out, a.parse(rec))
    }
    return integrations.PlaceBatch{Places: out, Cursor: strconv.Itoa(a.row)}, nil
}

func (a *Adapter) parse(rec []string) places.RawPlace {
    get := func(col string) string {
        i, ok := a.cols[col]
        if !ok || i >= len(rec) { return "" }
        return strings.TrimSpace(rec[i])
    }
    num := func(col string) float64 {
        f, _ := strconv.ParseFloat(get(col), 64)
        return f
    }
    ptr := func(col string) *float64 {
        f, err := strconv.ParseFloat(get(col), 64)
        if err != nil { return nil }
        return &f
    }
    p := places.RawPlace{
        ID:               get("id"),
        Name:             get("name"),
        Category:         get("category"),
        Rating:           num("rating"),
        Reviews:          int(num("reviews")),
        PriceLevel:       int(num("price_level")),
        Description:      get("description"),
        City:             get("city"),
        Zone:             get("zone"),
        Lat:              ptr("lat"),
        Lng:              ptr("lng"),
        OpensAt:          get("opens_at"),
        ClosesAt:         get("closes_at"),
        VisitDurationMin: int(num("visit_duration_min")),
    }
    if g := get("geometry"); g != "" { p.Geometry = g }
    if t := get("tags"); t != "" { p.Tags = strings.Split(t, ";") }
    return p
}
