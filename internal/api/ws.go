package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tripplanner/internal/model"
	"tripplanner/internal/workflow"
)

// Day socket protocol: the server acks with the current day, then sends every
// day event as "next". Clients may send "ping", "vote" (payload as the body of
// POST /v1/days/{id}/vote) and "complete".

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const wsIdle = 60 * time.Second

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DayWSHandler streams a day's events over a websocket and accepts votes on it.
func (s *Server) DayWSHandler(w http.ResponseWriter, r *http.Request, d model.Day, p Principal) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(typ, id string, v any) error {
		var raw json.RawMessage
		if v != nil {
			raw, _ = json.Marshal(v)
		}
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(wsMessage{Type: typ, ID: id, Payload: raw})
	}

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdle))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(wsIdle)); return nil })

	ch := s.Broker.Subscribe(d.ID)
	defer s.Broker.Unsubscribe(d.ID, ch)
	if err := write("connection_ack", "", d); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsIdle / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if err := write("next", "", evt); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdle))
		switch msg.Type {
		case "ping":
			_ = write("pong", msg.ID, nil)
		case "vote":
			var req workflow.VoteRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				_ = write("error", msg.ID, map[string]string{"message": "invalid vote payload"})
				continue
			}
			req.DayID, req.UserID = d.ID, p.UserID
			day, err := s.Workflow.CastVote(r.Context(), req)
			if err != nil {
				_ = write("error", msg.ID, map[string]string{"message": err.Error()})
				continue
			}
			_ = write("vote_ack", msg.ID, day)
		case "complete":
			_ = write("complete", msg.ID, nil)
			return
		default:
			// ignore
		}
	}
}
