package store

import (
    "context"
    "errors"
    "regexp"
    "strings"
    "time"

    "github.com/google/uuid"
    "go.mongodb.org/mongo-driver/bson"
    "go.mongodb.org/mongo-driver/mongo"
    "go.mongodb.org/mongo-driver/mongo/options"

    "tripplanner/internal/model"
)

// Mongo keeps trips and days as documents, shaped exactly like the model records.
type Mongo struct {
    client     *mongo.Client
    trips      *mongo.Collection
    days       *mongo.Collection
    places     *mongo.Collection
    deliveries *mongo.Collection
    dlq        *mongo.Collection
}

func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
    if database == "" { database = "tripplanner" }
    client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
    if err != nil { return nil, err }
    if err := client.Ping(ctx, nil); err != nil {
        _ = client.Disconnect(ctx)
        return nil, err
    }
    db := client.Database(database)
    m := &Mongo{
        client:     client,
        trips:      db.Collection("trips"),
        days:       db.Collection("days"),
        places:     db.Collection("places"),
        deliveries: db.Collection("webhook_deliveries"),
        dlq:        db.Collection("webhook_dlq"),
    }
    return m, m.ensureIndexes(ctx)
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
    if _, err := m.days.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "tripId", Value: 1}, {Key: "dayIndex", Value: 1}}}); err != nil {
        return err
    }
    if _, err := m.places.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)}); err != nil {
        return err
    }
    _, err := m.deliveries.Indexes().CreateMany(ctx, []mongo.IndexModel{
        {Keys: bson.D{{Key: "status", Value: 1}, {Key: "nextAttemptAt", Value: 1}}},
        {Keys: bson.D{{Key: "eventType", Value: 1}, {Key: "url", Value: 1}, {Key: "dedupKey", Value: 1}}, Options: options.Index().SetUnique(true)},
    })
    return err
}

func (m *Mongo) Ping(ctx context.Context) error { return m.client.Ping(ctx, nil) }

func (m *Mongo) Close(ctx context.Context) error { return m.client.Disconnect(ctx) }

// Trips

func (m *Mongo) CreateTrip(ctx context.Context, t model.Trip) (model.Trip, error) {
    if t.ID == "" { t.ID = uuid.NewString() }
    if t.CreatedAt.IsZero() { t.CreatedAt = time.Now().UTC() }
    _, err := m.trips.InsertOne(ctx, t)
    if err != nil { return model.Trip{}, err }
    return t, nil
}

func (m *Mongo) GetTrip(ctx context.Context, id string) (model.Trip, error) {
    var t model.Trip
    err := m.trips.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
    if errors.Is(err, mongo.ErrNoDocuments) { return model.Trip{}, ErrNotFound }
    return t, err
}

func (m *Mongo) UpdateTrip(ctx context.Context, t model.Trip) error {
    res, err := m.trips.ReplaceOne(ctx, bson.M{"_id": t.ID}, t)
    if err != nil { return err }
    if res.MatchedCount == 0 { return ErrNotFound }
    return nil
}

func (m *Mongo) ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error) {
    limit = pageSize(limit)
    filter := bson.M{}
    if cursor != "" {
        after, err := m.GetTrip(ctx, cursor)
        if err != nil && !errors.Is(err, ErrNotFound) { return nil, "", err }
        if err == nil {
            filter = bson.M{"$or": bson.A{
                bson.M{"createdAt": bson.M{"$gt": after.CreatedAt}},
                bson.M{"createdAt": after.CreatedAt, "_id": bson.M{"$gt": after.ID}},
            }}
        }
    }
    opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).SetLimit(int64(limit + 1))
    cur, err := m.trips.Find(ctx, filter, opts)
    if err != nil { return nil, "", err }
    out := []model.Trip{}
    if err := cur.All(ctx, &out); err != nil { return nil, "", err }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[limit-1].ID
    }
    return out, next, nil
}

// Days

func (m *Mongo) CreateDays(ctx context.Context, days []model.Day) error {
    if len(days) == 0 { return nil }
    docs := make([]any, len(days))
    for i, d := range days {
        if d.UpdatedAt.IsZero() { d.UpdatedAt = time.Now().UTC() }
        docs[i] = d
    }
    _, err := m.days.InsertMany(ctx, docs)
    return err
}

func (m *Mongo) GetDay(ctx context.Context, id string) (model.Day, error) {
    var d model.Day
    err := m.days.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
    if errors.Is(err, mongo.ErrNoDocuments) { return model.Day{}, ErrNotFound }
    return d, err
}

func (m *Mongo) UpdateDay(ctx context.Context, d model.Day) error {
    res, err := m.days.ReplaceOne(ctx, bson.M{"_id": d.ID}, d)
    if err != nil { return err }
    if res.MatchedCount == 0 { return ErrNotFound }
    return nil
}

func (m *Mongo) ListDays(ctx context.Context, tripID string) ([]model.Day, error) {
    cur, err := m.days.Find(ctx, bson.M{"tripId": tripID}, options.Find().SetSort(bson.D{{Key: "dayIndex", Value: 1}}))
    if err != nil { return nil, err }
    out := []model.Day{}
    if err := cur.All(ctx, &out); err != nil { return nil, err }
    return out, nil
}

// Places

func (m *Mongo) UpsertPlaces(ctx context.Context, ps []model.Place) (int, error) {
    n := 0
    for _, p := range ps {
        if p.ID == "" { continue }
        _, err := m.places.ReplaceOne(ctx, bson.M{"id": p.ID}, p, options.Replace().SetUpsert(true))
        if err != nil { return n, err }
        n++
    }
    return n, nil
}

func (m *Mongo) SearchPlaces(ctx context.Context, query string, limit int) ([]model.Place, error) {
    limit = pageSize(limit)
    filter := bson.M{}
    if q := strings.TrimSpace(query); q != "" {
        re := bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
        filter = bson.M{"$or": bson.A{
            bson.M{"city": re}, bson.M{"zone": re}, bson.M{"name": re}, bson.M{"description": re},
        }}
    }
    opts := options.Find().SetSort(bson.D{{Key: "rating", Value: -1}, {Key: "id", Value: 1}}).SetLimit(int64(limit))
    cur, err := m.places.Find(ctx, filter, opts)
    if err != nil { return nil, err }
    out := []model.Place{}
    if err := cur.All(ctx, &out); err != nil { return nil, err }
    return out, nil
}

func (m *Mongo) NearbyPlaces(ctx context.Context, center model.GeoPoint, radiusKm float64, category string, limit int) ([]model.Place, error) {
    filter := bson.M{"location": bson.M{"$exists": true}}
    if c := strings.ToLower(strings.TrimSpace(category)); c != "" { filter["category"] = c }
    if radiusKm > 0 {
        // coarse box; filterNearby does the exact cut
        dLat := radiusKm / 111.0
        filter["location.lat"] = bson.M{"$gte": center.Lat - dLat, "$lte": center.Lat + dLat}
    }
    cur, err := m.places.Find(ctx, filter)
    if err != nil { return nil, err }
    ps := []model.Place{}
    if err := cur.All(ctx, &ps); err != nil { return nil, err }
    return filterNearby(ps, center, radiusKm, category, limit), nil
}

// Webhook deliveries

func (m *Mongo) EnqueueWebhook(ctx context.Context, tripID, eventType, url, secret string, payload []byte) (string, error) {
    dk := computeDedupKey(payload)
    d := WebhookDelivery{
        ID: uuid.NewString(), TripID: tripID, EventType: eventType, URL: url, Secret: secret,
        Payload: payload, Status: DeliveryPending, NextAttemptAt: time.Now().UTC(), DedupKey: dk,
    }
    _, err := m.deliveries.InsertOne(ctx, d)
    if mongo.IsDuplicateKeyError(err) {
        var existing WebhookDelivery
        if err := m.deliveries.FindOne(ctx, bson.M{"eventType": eventType, "url": url, "dedupKey": dk}).Decode(&existing); err != nil {
            return "", err
        }
        return existing.ID, nil
    }
    if err != nil { return "", err }
    return d.ID, nil
}

func (m *Mongo) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    filter := bson.M{
        "status":        bson.M{"$in": bson.A{DeliveryPending, DeliveryRetry}},
        "nextAttemptAt": bson.M{"$lte": time.Now().UTC()},
    }
    opts := options.Find().SetSort(bson.D{{Key: "nextAttemptAt", Value: 1}})
    if limit > 0 { opts.SetLimit(int64(limit)) }
    cur, err := m.deliveries.Find(ctx, filter, opts)
    if err != nil { return nil, err }
    out := []WebhookDelivery{}
    if err := cur.All(ctx, &out); err != nil { return nil, err }
    return out, nil
}

func (m *Mongo) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    set := bson.M{"responseCode": responseCode, "latencyMs": latencyMs}
    if success {
        set["status"] = DeliveryDelivered
        set["deliveredAt"] = time.Now().UTC()
    } else {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        set["status"] = DeliveryRetry
        set["lastError"] = lastError
        set["nextAttemptAt"] = nextAttemptAt.UTC()
    }
    res, err := m.deliveries.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set, "$inc": bson.M{"attempts": 1}})
    if err != nil { return err }
    if res.MatchedCount == 0 { return ErrNotFound }
    return nil
}

func (m *Mongo) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    var d WebhookDelivery
    err := m.deliveries.FindOneAndUpdate(ctx, bson.M{"_id": id},
        bson.M{"$set": bson.M{"status": DeliveryFailed, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs}, "$inc": bson.M{"attempts": 1}},
        options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&d)
    if errors.Is(err, mongo.ErrNoDocuments) { return ErrNotFound }
    if err != nil { return err }
    // move to DLQ
    _, err = m.dlq.InsertOne(ctx, bson.M{
        "_id": uuid.NewString(), "deliveryId": d.ID, "eventType": d.EventType, "url": d.URL,
        "payload": d.Payload, "attempts": d.Attempts, "lastError": lastError, "createdAt": time.Now().UTC(),
    })
    return err
}

func (m *Mongo) ListWebhookDeliveries(ctx context.Context, tripID, status string, limit int) ([]WebhookDelivery, error) {
    filter := bson.M{}
    if tripID != "" { filter["tripId"] = tripID }
    if status != "" { filter["status"] = status }
    opts := options.Find().SetSort(bson.D{{Key: "nextAttemptAt", Value: -1}}).SetLimit(int64(pageSize(limit)))
    cur, err := m.deliveries.Find(ctx, filter, opts)
    if err != nil { return nil, err }
    out := []WebhookDelivery{}
    if err := cur.All(ctx, &out); err != nil { return nil, err }
    return out, nil
}
