package store

import "time"

// Delivery statuses.
const (
    DeliveryPending   = "pending"
    DeliveryRetry     = "retry"
    DeliveryDelivered = "delivered"
    DeliveryFailed    = "failed"
)

type WebhookDelivery struct {
    ID            string     `json:"id" bson:"_id"`
    TripID        string     `json:"tripId,omitempty" bson:"tripId,omitempty"`
    EventType     string     `json:"eventType" bson:"eventType"`
    URL           string     `json:"url" bson:"url"`
    Secret        string     `json:"-" bson:"secret,omitempty"`
    Payload       []byte     `json:"-" bson:"payload"`
    Status        string     `json:"status" bson:"status"`
    Attempts      int        `json:"attempts" bson:"attempts"`
    NextAttemptAt time.Time  `json:"nextAttemptAt,omitempty" bson:"nextAttemptAt"`
    LastError     string     `json:"lastError,omitempty" bson:"lastError,omitempty"`
    ResponseCode  int        `json:"responseCode,omitempty" bson:"responseCode,omitempty"`
    LatencyMs     int        `json:"latencyMs,omitempty" bson:"latencyMs,omitempty"`
    DeliveredAt   *time.Time `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
    DedupKey      string     `json:"-" bson:"dedupKey"`
}

// due reports whether d should be attempted at now.
func (d WebhookDelivery) due(now time.Time) bool {
    return (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now)
}
