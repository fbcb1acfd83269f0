package store

import (
	"encoding/hex"
	"testing"

	"tripplanner/internal/model"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"x"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestWKT(t *testing.T) {
	if v := wkt(nil); v != nil {
		t.Fatalf("nil location -> nil expected")
	}
	got := wkt(&model.GeoPoint{Lat: 12.5, Lng: 77.25})
	if got != "POINT(77.25 12.5)" {
		t.Fatalf("want lng first, got %v", got)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("got %s", got)
	}
}
