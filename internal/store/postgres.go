package store

import (
    "context"
    "database/sql"
    "embed"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "log"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "tripplanner/internal/model"
    "tripplanner/internal/places"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations that have not run yet, in file name order.
func (p *Postgres) Migrate(ctx context.Context) error {
    if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
        return err
    }
    names, err := fs.Glob(migrationFS, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
        var one int
        err := p.db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version=$1`, version).Scan(&one)
        if err == nil { continue }
        if !errors.Is(err, sql.ErrNoRows) { return err }
        body, err := migrationFS.ReadFile(name)
        if err != nil { return err }
        tx, err := p.db.BeginTx(ctx, nil)
        if err != nil { return err }
        if _, err := tx.ExecContext(ctx, string(body)); err != nil {
            _ = tx.Rollback()
            return fmt.Errorf("migration %s: %w", version, err)
        }
        if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
            _ = tx.Rollback()
            return err
        }
        if err := tx.Commit(); err != nil { return err }
        log.Printf("[store] applied migration %s", version)
    }
    return nil
}

// Trips

func (p *Postgres) CreateTrip(ctx context.Context, t model.Trip) (model.Trip, error) {
    if t.ID == "" { t.ID = uuid.NewString() }
    if t.CreatedAt.IsZero() { t.CreatedAt = time.Now().UTC() }
    doc, err := json.Marshal(t)
    if err != nil { return model.Trip{}, err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO trips (id, doc, created_at) VALUES ($1, $2::jsonb, $3)`, t.ID, string(doc), t.CreatedAt)
    if err != nil { return model.Trip{}, err }
    return t, nil
}

func (p *Postgres) GetTrip(ctx context.Context, id string) (model.Trip, error) {
    var doc []byte
    err := p.db.QueryRowContext(ctx, `SELECT doc FROM trips WHERE id=$1`, id).Scan(&doc)
    if errors.Is(err, sql.ErrNoRows) { return model.Trip{}, ErrNotFound }
    if err != nil { return model.Trip{}, err }
    var t model.Trip
    if err := json.Unmarshal(doc, &t); err != nil { return model.Trip{}, fmt.Errorf("decode trip %s: %w", id, err) }
    return t, nil
}

func (p *Postgres) UpdateTrip(ctx context.Context, t model.Trip) error {
    doc, err := json.Marshal(t)
    if err != nil { return err }
    res, err := p.db.ExecContext(ctx, `UPDATE trips SET doc=$2::jsonb WHERE id=$1`, t.ID, string(doc))
    if err != nil { return err }
    return affected(res)
}

func (p *Postgres) ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error) {
    limit = pageSize(limit)
    var rows *sql.Rows
    var err error
    if cursor != "" {
        rows, err = p.db.QueryContext(ctx, `SELECT doc FROM trips WHERE (created_at, id) > (SELECT created_at, id FROM trips WHERE id=$1) ORDER BY created_at, id LIMIT $2`, cursor, limit+1)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT doc FROM trips ORDER BY created_at, id LIMIT $1`, limit+1)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Trip{}
    for rows.Next() {
        var doc []byte
        if err := rows.Scan(&doc); err != nil { return nil, "", err }
        var t model.Trip
        if err := json.Unmarshal(doc, &t); err != nil { return nil, "", err }
        out = append(out, t)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[limit-1].ID
    }
    return out, next, nil
}

// Days

func (p *Postgres) CreateDays(ctx context.Context, days []model.Day) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    for _, d := range days {
        if d.UpdatedAt.IsZero() { d.UpdatedAt = time.Now().UTC() }
        doc, err := json.Marshal(d)
        if err != nil { return err }
        _, err = tx.ExecContext(ctx, `INSERT INTO days (id, trip_id, day_index, status, doc, updated_at) VALUES ($1,$2,$3,$4,$5::jsonb,$6)
            ON CONFLICT (id) DO NOTHING`, d.ID, d.TripID, d.Index, string(d.Status), string(doc), d.UpdatedAt)
        if err != nil { return err }
    }
    return tx.Commit()
}

func (p *Postgres) GetDay(ctx context.Context, id string) (model.Day, error) {
    var doc []byte
    err := p.db.QueryRowContext(ctx, `SELECT doc FROM days WHERE id=$1`, id).Scan(&doc)
    if errors.Is(err, sql.ErrNoRows) { return model.Day{}, ErrNotFound }
    if err != nil { return model.Day{}, err }
    var d model.Day
    if err := json.Unmarshal(doc, &d); err != nil { return model.Day{}, fmt.Errorf("decode day %s: %w", id, err) }
    return d, nil
}

func (p *Postgres) UpdateDay(ctx context.Context, d model.Day) error {
    doc, err := json.Marshal(d)
    if err != nil { return err }
    res, err := p.db.ExecContext(ctx, `UPDATE days SET status=$2, doc=$3::jsonb, updated_at=$4 WHERE id=$1`, d.ID, string(d.Status), string(doc), d.UpdatedAt)
    if err != nil { return err }
    return affected(res)
}

func (p *Postgres) ListDays(ctx context.Context, tripID string) ([]model.Day, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT doc FROM days WHERE trip_id=$1 ORDER BY day_index`, tripID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Day{}
    for rows.Next() {
        var doc []byte
        if err := rows.Scan(&doc); err != nil { return nil, err }
        var d model.Day
        if err := json.Unmarshal(doc, &d); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

// Places

func (p *Postgres) UpsertPlaces(ctx context.Context, ps []model.Place) (int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, err }
    defer func(){ _ = tx.Rollback() }()
    n := 0
    for _, pl := range ps {
        if pl.ID == "" { continue }
        tags, _ := json.Marshal(pl.Tags)
        _, err := tx.ExecContext(ctx, `INSERT INTO places (id, name, category, rating, reviews, price_level, tags, description, city, zone, geom, opens_at, closes_at, visit_duration_min)
            VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10,$11,$12,$13,$14)
            ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, category=EXCLUDED.category, rating=EXCLUDED.rating, reviews=EXCLUDED.reviews,
                price_level=EXCLUDED.price_level, tags=EXCLUDED.tags, description=EXCLUDED.description, city=EXCLUDED.city, zone=EXCLUDED.zone,
                geom=EXCLUDED.geom, opens_at=EXCLUDED.opens_at, closes_at=EXCLUDED.closes_at, visit_duration_min=EXCLUDED.visit_duration_min, updated_at=now()`,
            pl.ID, pl.Name, nullIfEmpty(pl.Category), pl.Rating, pl.Reviews, pl.PriceLevel, string(tags), nullIfEmpty(pl.Description),
            nullIfEmpty(pl.City), nullIfEmpty(pl.Zone), wkt(pl.Location), nullIfEmpty(pl.OpensAt), nullIfEmpty(pl.ClosesAt), pl.VisitDurationMin)
        if err != nil { return 0, err }
        n++
    }
    return n, tx.Commit()
}

const placeColumns = `id, name, COALESCE(category,''), rating, reviews, price_level, COALESCE(tags::text,'null'), COALESCE(description,''),
    COALESCE(city,''), COALESCE(zone,''), COALESCE(geom,''), COALESCE(opens_at,''), COALESCE(closes_at,''), visit_duration_min`

func (p *Postgres) SearchPlaces(ctx context.Context, query string, limit int) ([]model.Place, error) {
    limit = pageSize(limit)
    q := strings.TrimSpace(query)
    if q == "" {
        return p.queryPlaces(ctx, `SELECT `+placeColumns+` FROM places ORDER BY rating DESC, id LIMIT $1`, limit)
    }
    pat := "%" + escapeLike(q) + "%"
    return p.queryPlaces(ctx, `SELECT `+placeColumns+` FROM places
        WHERE city ILIKE $1 OR zone ILIKE $1 OR name ILIKE $1 OR description ILIKE $1
        ORDER BY rating DESC, id LIMIT $2`, pat, limit)
}

// NearbyPlaces filters in Go because geom keeps the importer's encoding.
func (p *Postgres) NearbyPlaces(ctx context.Context, center model.GeoPoint, radiusKm float64, category string, limit int) ([]model.Place, error) {
    var ps []model.Place
    var err error
    if c := strings.ToLower(strings.TrimSpace(category)); c != "" {
        ps, err = p.queryPlaces(ctx, `SELECT `+placeColumns+` FROM places WHERE category=$1 AND geom IS NOT NULL`, c)
    } else {
        ps, err = p.queryPlaces(ctx, `SELECT `+placeColumns+` FROM places WHERE geom IS NOT NULL`)
    }
    if err != nil { return nil, err }
    return filterNearby(ps, center, radiusKm, category, limit), nil
}

func (p *Postgres) queryPlaces(ctx context.Context, q string, args ...any) ([]model.Place, error) {
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Place{}
    for rows.Next() {
        var r places.RawPlace
        var tags, geom string
        if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.Rating, &r.Reviews, &r.PriceLevel, &tags, &r.Description,
            &r.City, &r.Zone, &geom, &r.OpensAt, &r.ClosesAt, &r.VisitDurationMin); err != nil {
            return nil, err
        }
        _ = json.Unmarshal([]byte(tags), &r.Tags)
        if geom != "" { r.Geometry = geom }
        pl, err := places.Normalize(r)
        if err != nil {
            log.Printf("[store] skip place %s: %v", r.ID, err)
            continue
        }
        out = append(out, pl)
    }
    return out, rows.Err()
}

// Webhook deliveries

func (p *Postgres) EnqueueWebhook(ctx context.Context, tripID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    err := p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, trip_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now(),$7)
        ON CONFLICT (event_type, url, dedup_key) DO NOTHING RETURNING id::text`, id, nullIfEmpty(tripID), eventType, url, nullIfEmpty(secret), payload, dk).Scan(&id)
    if errors.Is(err, sql.ErrNoRows) {
        err = p.db.QueryRowContext(ctx, `SELECT id::text FROM webhook_deliveries WHERE event_type=$1 AND url=$2 AND dedup_key=$3`, eventType, url, dk).Scan(&id)
    }
    if err != nil { return "", err }
    return id, nil
}

const deliveryColumns = `id::text, COALESCE(trip_id,''), event_type, url, COALESCE(secret,''), payload, status, attempts, next_attempt_at,
    COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0), delivered_at, dedup_key`

func scanDelivery(rows *sql.Rows) (WebhookDelivery, error) {
    var d WebhookDelivery
    var delivered sql.NullTime
    err := rows.Scan(&d.ID, &d.TripID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts, &d.NextAttemptAt,
        &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered, &d.DedupKey)
    if delivered.Valid { t := delivered.Time; d.DeliveredAt = &t }
    return d, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+deliveryColumns+`
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        d, err := scanDelivery(rows)
        if err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
            id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    res, err := tx.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    if err != nil { return err }
    if err := affected(res); err != nil { return err }
    // move to DLQ
    _, err = tx.ExecContext(ctx, `INSERT INTO webhook_dlq (id, delivery_id, event_type, url, payload, attempts, last_error)
        SELECT $2, id, event_type, url, payload, attempts, last_error FROM webhook_deliveries WHERE id=$1`, id, uuid.New())
    if err != nil { return err }
    return tx.Commit()
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tripID, status string, limit int) ([]WebhookDelivery, error) {
    limit = pageSize(limit)
    q := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE ($1 = '' OR trip_id = $1) AND ($2 = '' OR status = $2) ORDER BY created_at DESC LIMIT $3`
    rows, err := p.db.QueryContext(ctx, q, tripID, status, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        d, err := scanDelivery(rows)
        if err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func affected(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil { return err }
    if n == 0 { return ErrNotFound }
    return nil
}

// wkt renders a location the way importers usually store it; nil stays NULL.
func wkt(p *model.GeoPoint) any {
    if p == nil { return nil }
    return fmt.Sprintf("POINT(%g %g)", p.Lng, p.Lat)
}

func escapeLike(s string) string {
    return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
