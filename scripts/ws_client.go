// Package main runs a demo WebSocket client that votes on a trip's first day.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type day struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	VotingPool struct {
		Morning []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"morning"`
	} `json:"votingPool"`
}

var base, user string

// call sends a dev-mode request as user and decodes the JSON reply into out.
func call(method, path string, body any, out any) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, base+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatal(err)
		}
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base = fmt.Sprintf("http://localhost:%s", port)
	user = "demo_admin"

	var trip struct {
		ID string `json:"id"`
	}
	call(http.MethodPost, "/v1/trips", map[string]any{
		"name":  "Lisbon weekend",
		"start": time.Now().Format("2006-01-02"),
		"end":   time.Now().AddDate(0, 0, 1).Format("2006-01-02"),
		"destination": map[string]any{
			"name":     "Lisbon",
			"location": map[string]float64{"lat": 38.7223, "lng": -9.1393},
		},
	}, &trip)
	log.Printf("Trip ID: %s", trip.ID)

	var started struct {
		Days []day `json:"days"`
	}
	call(http.MethodPost, "/v1/trips/"+trip.ID+"/start", nil, &started)
	if len(started.Days) == 0 {
		log.Fatal("no days returned")
	}
	// starting a trip opens voting on day 1
	d := started.Days[0]
	log.Printf("Day %s is %s", d.ID, d.Status)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/days/" + d.ID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-User-Id", user)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	if len(d.VotingPool.Morning) > 0 {
		pick := d.VotingPool.Morning[0]
		log.Printf("Voting for %s", pick.Name)
		pl, _ := json.Marshal(map[string]string{"slot": "morning", "candidateId": pick.ID, "action": "vote"})
		if err := c.WriteJSON(wsMessage{Type: "vote", ID: "1", Payload: pl}); err != nil {
			log.Fatal(err)
		}
	} else {
		log.Printf("morning pool is empty; load places first (tripctl import-places)")
	}

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
