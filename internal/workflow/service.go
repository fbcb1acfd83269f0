package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"tripplanner/internal/geo"
	"tripplanner/internal/model"
	"tripplanner/internal/store"
	"tripplanner/internal/voting"
)

// ErrForbidden is returned when the acting user may not perform an operation on a trip.
var ErrForbidden = errors.New("forbidden")

const dateLayout = "2006-01-02"

// Placeholder leg between two finalized stops until real routing runs.
var placeholderLeg = model.TransportLeg{Mode: model.ModeDriving, Duration: "15 mins", Polyline: ""}

// Service drives trips and days through their lifecycles. Mutations of one
// trip or day are serialised within the process.
type Service struct {
	Store     store.Store
	Clusterer *Clusterer
	Events    EventSink
	Now       func() time.Time

	locks keyedMutex
}

func NewService(st store.Store, cl *Clusterer, events EventSink) *Service {
	return &Service{Store: st, Clusterer: cl, Events: events, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *Service) publish(ctx context.Context, typ, tripID, dayID string, data any) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(ctx, Event{ID: uuid.NewString(), Type: typ, TripID: tripID, DayID: dayID, At: s.now(), Data: data})
}

type CreateTripRequest struct {
	Name        string            `json:"name"`
	Start       string            `json:"start"` // YYYY-MM-DD
	End         string            `json:"end"`
	Destination model.Destination `json:"destination"`
	AdminID     string            `json:"adminId"`
	Members     []model.Member    `json:"members,omitempty"`
}

func (r CreateTripRequest) validate() (time.Time, time.Time, error) {
	if strings.TrimSpace(r.Name) == "" {
		return time.Time{}, time.Time{}, model.Invalid("name", "required")
	}
	if r.AdminID == "" {
		return time.Time{}, time.Time{}, model.Invalid("adminId", "required")
	}
	start, err := time.Parse(dateLayout, r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, model.Invalid("start", "want YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, r.End)
	if err != nil {
		return time.Time{}, time.Time{}, model.Invalid("end", "want YYYY-MM-DD")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, model.Invalid("end", "before start")
	}
	if n := dayCount(start, end); n > voting.MaxDays {
		return time.Time{}, time.Time{}, model.Invalid("end", "trip spans %d days, max %d", n, voting.MaxDays)
	}
	if loc := r.Destination.Location; loc != nil && !geo.ValidPoint(*loc) {
		return time.Time{}, time.Time{}, model.Invalid("destination.location", "out of range")
	}
	return start, end, nil
}

// dayCount is the number of calendar days from start to end inclusive.
func dayCount(start, end time.Time) int {
	d := math.Abs(end.Sub(start).Hours() / 24)
	return int(math.Ceil(d)) + 1
}

func (s *Service) CreateTrip(ctx context.Context, req CreateTripRequest) (model.Trip, error) {
	if _, _, err := req.validate(); err != nil {
		return model.Trip{}, err
	}
	t := model.Trip{
		Name:        strings.TrimSpace(req.Name),
		State:       model.TripDraft,
		Dates:       model.DateRange{Start: req.Start, End: req.End},
		Destination: req.Destination,
		AdminID:     req.AdminID,
		Members:     []model.Member{{UserID: req.AdminID, Role: "admin"}},
		Days:        []model.DayRef{},
		CreatedAt:   s.now(),
	}
	for _, m := range req.Members {
		if m.UserID == "" || m.UserID == req.AdminID {
			continue
		}
		if m.Role == "" {
			m.Role = "viewer"
		}
		t.Members = append(t.Members, m)
	}
	t, err := s.Store.CreateTrip(ctx, t)
	if err != nil {
		return model.Trip{}, err
	}
	s.publish(ctx, EventTripCreated, t.ID, "", map[string]any{"name": t.Name})
	return t, nil
}

func (s *Service) GetTrip(ctx context.Context, id string) (model.Trip, error) {
	return s.Store.GetTrip(ctx, id)
}

func (s *Service) ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error) {
	return s.Store.ListTrips(ctx, cursor, limit)
}

func (s *Service) GetDay(ctx context.Context, id string) (model.Day, error) {
	return s.Store.GetDay(ctx, id)
}

func (s *Service) ListDays(ctx context.Context, tripID string) ([]model.Day, error) {
	if _, err := s.Store.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.Store.ListDays(ctx, tripID)
}

func requireAdmin(t model.Trip, userID string) error {
	if userID == "" || t.AdminID != userID {
		return fmt.Errorf("%w: only the trip admin may do this", ErrForbidden)
	}
	return nil
}

// StartTrip activates a draft trip, creates its days if there are none and
// opens voting on day 1. Later days stay PENDING. If day 1 cannot be opened
// the trip stays DRAFT.
func (s *Service) StartTrip(ctx context.Context, tripID, userID string) (model.Trip, []model.Day, error) {
	unlock := s.locks.Lock("trip:" + tripID)
	defer unlock()

	t, err := s.Store.GetTrip(ctx, tripID)
	if err != nil {
		return model.Trip{}, nil, err
	}
	if err := requireAdmin(t, userID); err != nil {
		return model.Trip{}, nil, err
	}
	next, err := TripMachine.Transition(t.State, TripStart)
	if err != nil {
		return model.Trip{}, nil, err
	}

	days, err := s.Store.ListDays(ctx, t.ID)
	if err != nil {
		return model.Trip{}, nil, err
	}
	if len(days) == 0 {
		days, err = s.createDays(ctx, t)
		if err != nil {
			return model.Trip{}, nil, err
		}
	}
	// Day 1 opens before the trip is saved, so a failure here leaves the
	// trip DRAFT and start can simply be retried.
	opened := false
	if len(days) > 0 && days[0].Status == model.DayPending {
		unlockDay := s.locks.Lock("day:" + days[0].ID)
		d, err := s.openVoting(ctx, t, days[0])
		unlockDay()
		if err != nil {
			return model.Trip{}, nil, fmt.Errorf("open voting on day 1: %w", err)
		}
		days[0], opened = d, true
	}

	t.Days = make([]model.DayRef, len(days))
	for i, d := range days {
		t.Days[i] = model.DayRef{ID: d.ID, Index: d.Index, Date: d.Date}
	}
	t.State = next
	if err := s.Store.UpdateTrip(ctx, t); err != nil {
		return model.Trip{}, nil, err
	}
	s.publish(ctx, EventTripStarted, t.ID, "", map[string]any{"days": len(days)})
	if opened {
		s.publishVoting(ctx, days[0])
	}
	return t, days, nil
}

func (s *Service) createDays(ctx context.Context, t model.Trip) ([]model.Day, error) {
	start, err := time.Parse(dateLayout, t.Dates.Start)
	if err != nil {
		return nil, model.Invalid("dates.start", "want YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, t.Dates.End)
	if err != nil {
		return nil, model.Invalid("dates.end", "want YYYY-MM-DD")
	}
	n := dayCount(start, end)
	days := make([]model.Day, n)
	for i := range days {
		days[i] = model.Day{
			ID:        uuid.NewString(),
			TripID:    t.ID,
			Index:     i + 1,
			Date:      start.AddDate(0, 0, i).Format(dateLayout),
			Status:    model.DayPending,
			UpdatedAt: s.now(),
		}
	}
	if err := s.Store.CreateDays(ctx, days); err != nil {
		return nil, err
	}
	return days, nil
}

func (s *Service) CompleteTrip(ctx context.Context, tripID, userID string) (model.Trip, error) {
	unlock := s.locks.Lock("trip:" + tripID)
	defer unlock()

	t, err := s.Store.GetTrip(ctx, tripID)
	if err != nil {
		return model.Trip{}, err
	}
	if err := requireAdmin(t, userID); err != nil {
		return model.Trip{}, err
	}
	next, err := TripMachine.Transition(t.State, TripComplete)
	if err != nil {
		return model.Trip{}, err
	}
	t.State = next
	if err := s.Store.UpdateTrip(ctx, t); err != nil {
		return model.Trip{}, err
	}
	s.publish(ctx, EventTripCompleted, t.ID, "", nil)
	return t, nil
}

// loadDay fetches a day and its trip, checking the trip is running.
func (s *Service) loadDay(ctx context.Context, dayID string, ev DayEvent) (model.Day, model.Trip, error) {
	d, err := s.Store.GetDay(ctx, dayID)
	if err != nil {
		return model.Day{}, model.Trip{}, err
	}
	t, err := s.Store.GetTrip(ctx, d.TripID)
	if err != nil {
		return model.Day{}, model.Trip{}, fmt.Errorf("trip of day %s: %w", dayID, err)
	}
	if t.State != model.TripActive {
		return model.Day{}, model.Trip{}, &model.StateTransitionError{Entity: "trip", From: string(t.State), Event: string(ev)}
	}
	return d, t, nil
}

// BeginVoting generates the candidate pool of a PENDING day and opens voting.
func (s *Service) BeginVoting(ctx context.Context, dayID, userID string) (model.Day, error) {
	unlock := s.locks.Lock("day:" + dayID)
	defer unlock()

	d, t, err := s.loadDay(ctx, dayID, DayBeginVoting)
	if err != nil {
		return model.Day{}, err
	}
	if err := requireAdmin(t, userID); err != nil {
		return model.Day{}, err
	}
	d, err = s.openVoting(ctx, t, d)
	if err != nil {
		return model.Day{}, err
	}
	s.publishVoting(ctx, d)
	return d, nil
}

// openVoting fills the pool of d and stores it as VOTING without publishing.
func (s *Service) openVoting(ctx context.Context, t model.Trip, d model.Day) (model.Day, error) {
	next, err := DayMachine.Transition(d.Status, DayBeginVoting)
	if err != nil {
		return model.Day{}, err
	}
	switch {
	case s.Clusterer == nil:
		log.Printf("[workflow] day %s: no clusterer, opening voting with an empty pool", d.ID)
	case t.Destination.Location == nil:
		log.Printf("[workflow] day %s: destination %q has no location, opening voting with an empty pool", d.ID, t.Destination.Name)
	default:
		pool, trace, err := s.Clusterer.Generate(ctx, *t.Destination.Location)
		if err != nil {
			return model.Day{}, err
		}
		log.Printf("[workflow] day %s pool: %d/%d/%d candidates, afternoon centre %.4f,%.4f", d.ID,
			len(pool.Morning), len(pool.Afternoon), len(pool.Evening),
			trace.Centers[model.SlotAfternoon].Lat, trace.Centers[model.SlotAfternoon].Lng)
		d.VotingPool = pool
	}
	d.Status = next
	d.UpdatedAt = s.now()
	if err := s.Store.UpdateDay(ctx, d); err != nil {
		return model.Day{}, err
	}
	return d, nil
}

func (s *Service) publishVoting(ctx context.Context, d model.Day) {
	s.publish(ctx, EventDayVoting, d.TripID, d.ID, map[string]any{
		"morning": len(d.VotingPool.Morning), "afternoon": len(d.VotingPool.Afternoon), "evening": len(d.VotingPool.Evening),
	})
}

type VoteAction string

const (
	ActionVote   VoteAction = "vote"
	ActionUnvote VoteAction = "unvote"
)

type VoteRequest struct {
	DayID       string              `json:"-"`
	UserID      string              `json:"-"`
	Slot        model.Slot          `json:"slot"`
	CandidateID string              `json:"candidateId"`
	Action      VoteAction          `json:"action"`
	Direction   model.VoteDirection `json:"direction,omitempty"`
}

func (r *VoteRequest) validate() error {
	if !r.Slot.Valid() {
		return model.Invalid("slot", "must be morning, afternoon or evening")
	}
	if r.CandidateID == "" {
		return model.Invalid("candidateId", "required")
	}
	switch r.Action {
	case "", ActionVote:
		r.Action = ActionVote
		if r.Direction == "" {
			r.Direction = model.VoteUp
		}
		if r.Direction != model.VoteUp && r.Direction != model.VoteDown {
			return model.Invalid("direction", "must be up or down")
		}
	case ActionUnvote:
	default:
		return model.Invalid("action", "must be vote or unvote")
	}
	return nil
}

// CastVote records or withdraws a member's vote on one candidate. A user
// holds at most one vote per candidate; voting again replaces it.
func (s *Service) CastVote(ctx context.Context, req VoteRequest) (model.Day, error) {
	if err := req.validate(); err != nil {
		return model.Day{}, err
	}
	unlock := s.locks.Lock("day:" + req.DayID)
	defer unlock()

	d, t, err := s.loadDay(ctx, req.DayID, DayVote)
	if err != nil {
		return model.Day{}, err
	}
	if !t.IsMember(req.UserID) {
		return model.Day{}, fmt.Errorf("%w: %s is not a member of trip %s", ErrForbidden, req.UserID, t.ID)
	}
	if _, err := DayMachine.Transition(d.Status, DayVote); err != nil {
		return model.Day{}, err
	}
	cands := d.VotingPool.Get(req.Slot)
	i := slices.IndexFunc(cands, func(c model.Candidate) bool { return c.ID == req.CandidateID })
	if i < 0 {
		return model.Day{}, model.Invalid("candidateId", "%s is not in the %s pool", req.CandidateID, req.Slot)
	}
	votes := slices.DeleteFunc(cands[i].Votes, func(v model.Vote) bool { return v.UserID == req.UserID })
	if req.Action == ActionVote {
		votes = append(votes, model.Vote{UserID: req.UserID, Direction: req.Direction})
	}
	if votes == nil {
		votes = []model.Vote{}
	}
	cands[i].Votes = votes
	d.VotingPool.Set(req.Slot, cands)
	d.UpdatedAt = s.now()
	if err := s.Store.UpdateDay(ctx, d); err != nil {
		return model.Day{}, err
	}
	s.publish(ctx, EventDayVote, d.TripID, d.ID, map[string]any{
		"slot": req.Slot, "candidateId": req.CandidateID, "userId": req.UserID,
		"action": req.Action, "direction": req.Direction, "upVotes": cands[i].UpVotes(),
	})
	return d, nil
}

// Finalize locks a VOTING day: the most up-voted candidate of each slot
// becomes a stop, earliest candidate on ties.
func (s *Service) Finalize(ctx context.Context, dayID, userID string) (model.Day, error) {
	unlock := s.locks.Lock("day:" + dayID)
	defer unlock()

	d, t, err := s.loadDay(ctx, dayID, DayFinalize)
	if err != nil {
		return model.Day{}, err
	}
	if err := requireAdmin(t, userID); err != nil {
		return model.Day{}, err
	}
	next, err := DayMachine.Transition(d.Status, DayFinalize)
	if err != nil {
		return model.Day{}, err
	}
	d.FinalRoute = FinalRoute(d.VotingPool)
	d.Status = next
	d.UpdatedAt = s.now()
	if err := s.Store.UpdateDay(ctx, d); err != nil {
		return model.Day{}, err
	}
	ids := make([]string, len(d.FinalRoute.Stops))
	for i, st := range d.FinalRoute.Stops {
		ids[i] = st.ID
	}
	s.publish(ctx, EventDayLocked, d.TripID, d.ID, map[string]any{"stops": ids})
	return d, nil
}

// FinalRoute picks the winner of each slot in slot order and joins
// consecutive stops with placeholder legs.
func FinalRoute(pool model.VotingPool) model.FinalRoute {
	fr := model.FinalRoute{Stops: []model.Candidate{}, Transport: []model.TransportLeg{}}
	for _, slot := range model.Slots {
		if w, ok := voting.ResolveByVotes(pool.Get(slot)); ok {
			fr.Stops = append(fr.Stops, w)
		}
	}
	for i := 1; i < len(fr.Stops); i++ {
		fr.Transport = append(fr.Transport, placeholderLeg)
	}
	return fr
}

// SetLive marks a LOCKED day as the one being travelled.
func (s *Service) SetLive(ctx context.Context, dayID, userID string) (model.Day, error) {
	unlock := s.locks.Lock("day:" + dayID)
	defer unlock()

	d, t, err := s.loadDay(ctx, dayID, DayActivate)
	if err != nil {
		return model.Day{}, err
	}
	if err := requireAdmin(t, userID); err != nil {
		return model.Day{}, err
	}
	next, err := DayMachine.Transition(d.Status, DayActivate)
	if err != nil {
		return model.Day{}, err
	}
	d.Status = next
	d.UpdatedAt = s.now()
	if err := s.Store.UpdateDay(ctx, d); err != nil {
		return model.Day{}, err
	}
	s.publish(ctx, EventDayLive, d.TripID, d.ID, nil)
	return d, nil
}
