package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/llm"
	"tripplanner/internal/model"
	"tripplanner/internal/places"
	"tripplanner/internal/store"
)

// fakeSearcher answers by category and records every request.
type fakeSearcher struct {
	mu       sync.Mutex
	byCat    map[string][]model.Place
	fail     map[string]bool
	requests []places.NearbyRequest
}

func (f *fakeSearcher) SearchNearby(_ context.Context, req places.NearbyRequest) ([]model.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.fail[req.Category] {
		return nil, &model.ProviderError{Provider: "places", Op: "nearby", Err: errors.New("boom")}
	}
	return f.byCat[req.Category], nil
}

func pt(lat, lng float64) *model.GeoPoint { return &model.GeoPoint{Lat: lat, Lng: lng} }

var dest = model.GeoPoint{Lat: 48.8566, Lng: 2.3522}

func sampleSearcher() *fakeSearcher {
	return &fakeSearcher{byCat: map[string][]model.Place{
		"tourist_attraction": {
			{ID: "louvre", Name: "Louvre", Location: pt(48.86, 2.33)},
			{ID: "orsay", Name: "Orsay", Location: pt(48.87, 2.34)},
			{ID: "noloc", Name: "Mystery"},
		},
		"restaurant": {
			{ID: "bistro", Name: "Bistro", Location: pt(48.90, 2.40)},
			{ID: "cafe", Name: "Cafe", Location: pt(48.80, 2.30)},
		},
		"night_club": {
			{ID: "club", Name: "Club", Location: pt(48.85, 2.35)},
		},
	}}
}

func TestMachines(t *testing.T) {
	to, err := TripMachine.Transition(model.TripDraft, TripStart)
	require.NoError(t, err)
	assert.Equal(t, model.TripActive, to)

	_, err = TripMachine.Transition(model.TripActive, TripStart)
	var ste *model.StateTransitionError
	require.True(t, errors.As(err, &ste))
	assert.Equal(t, "trip", ste.Entity)
	assert.Equal(t, "ACTIVE", ste.From)

	_, err = DayMachine.Transition(model.DayVoting, DayActivate)
	assert.True(t, errors.As(err, &ste), "LIVE requires LOCKED")
	_, err = DayMachine.Transition(model.DayPending, DayFinalize)
	assert.True(t, errors.As(err, &ste))
	assert.False(t, DayMachine.Can(model.DayLive, DayFinalize))
	assert.ElementsMatch(t, []DayEvent{DayVote, DayFinalize}, DayMachine.Events(model.DayVoting))
}

func TestClusterer_RecentresOnCentroids(t *testing.T) {
	s := sampleSearcher()
	pool, trace, err := NewClusterer(s, nil).Generate(context.Background(), dest)
	require.NoError(t, err)
	require.Len(t, s.requests, 3)

	assert.Equal(t, dest, s.requests[0].Location)
	assert.Equal(t, "tourist_attraction", s.requests[0].Category)
	assert.Equal(t, DefaultClusterRadius, s.requests[0].RadiusMeters)

	// afternoon is searched at the mean of the located morning candidates
	assert.InDelta(t, (48.86+48.87)/2, s.requests[1].Location.Lat, 1e-9)
	assert.InDelta(t, (2.33+2.34)/2, s.requests[1].Location.Lng, 1e-9)
	assert.Equal(t, s.requests[1].Location, trace.Centers[model.SlotAfternoon])
	assert.InDelta(t, (48.90+48.80)/2, s.requests[2].Location.Lat, 1e-9)

	require.Len(t, pool.Morning, 3)
	assert.Equal(t, "", pool.Morning[0].ParentClusterID)
	assert.Equal(t, "morning_centroid", pool.Afternoon[0].ParentClusterID)
	assert.Equal(t, "afternoon_centroid", pool.Evening[0].ParentClusterID)
	assert.Equal(t, model.SlotEvening, pool.Evening[0].ClusterSlot)
	require.NotNil(t, pool.Morning[0].VibeCheck)
	assert.Equal(t, "No vibe check", pool.Morning[0].VibeCheck.Summary)
	assert.NotNil(t, pool.Morning[0].Votes)
}

func TestClusterer_FailedSlotKeepsCentre(t *testing.T) {
	s := sampleSearcher()
	s.fail = map[string]bool{"tourist_attraction": true}
	pool, _, err := NewClusterer(s, HeuristicVibe{}).Generate(context.Background(), dest)
	require.NoError(t, err)
	assert.Empty(t, pool.Morning)
	assert.Equal(t, dest, s.requests[1].Location, "empty morning leaves the afternoon search at the destination")
	require.Len(t, pool.Afternoon, 2)
	assert.NotEqual(t, "No vibe check", pool.Afternoon[0].VibeCheck.Summary)
}

type stubLLM struct {
	text string
	err  error
}

func (s stubLLM) Generate(context.Context, llm.GenerateRequest) (*llm.GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.GenerateResponse{Text: s.text}, nil
}

func (s stubLLM) Available(context.Context) bool { return s.err == nil }

func TestLLMVibe(t *testing.T) {
	p := model.Place{ID: "x", Name: "Sacre Coeur", Category: "tourist_attraction", Rating: 4.0, Reviews: 90000}
	v, err := LLMVibe{Client: stubLLM{text: "Sure!\n```json\n{\"summary\": \"Packed but iconic\", \"tags\": [\"views\", \" \"], \"isTouristTrap\": true}\n```"}}.Check(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Packed but iconic", v.Summary)
	assert.Equal(t, []string{"views"}, v.Tags)
	assert.True(t, v.IsTouristTrap)

	v, err = LLMVibe{Client: stubLLM{err: llm.ErrUnavailable}}.Check(context.Background(), p)
	require.NoError(t, err)
	want, _ := HeuristicVibe{}.Check(context.Background(), p)
	assert.Equal(t, want, v)
	assert.True(t, v.IsTouristTrap)

	v, _ = LLMVibe{Client: stubLLM{text: `{"summary": ""}`}}.Check(context.Background(), p)
	assert.Equal(t, want, v)
}

type fixture struct {
	svc    *Service
	store  *store.Memory
	events *Recorder
	trip   model.Trip
}

func newFixture(t *testing.T, start, end string) *fixture {
	t.Helper()
	st := store.NewMemory()
	rec := &Recorder{}
	svc := NewService(st, NewClusterer(sampleSearcher(), nil), rec)
	svc.Now = func() time.Time { return time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC) }
	trip, err := svc.CreateTrip(context.Background(), CreateTripRequest{
		Name: "Paris", Start: start, End: end, AdminID: "admin",
		Destination: model.Destination{Name: "Paris", Location: &dest},
		Members:     []model.Member{{UserID: "ann"}, {UserID: "bob", Role: "editor"}},
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: st, events: rec, trip: trip}
}

func TestCreateTrip_Validation(t *testing.T) {
	svc := NewService(store.NewMemory(), nil, nil)
	ctx := context.Background()
	var ve *model.ValidationError
	cases := []CreateTripRequest{
		{Start: "2025-05-01", End: "2025-05-02", AdminID: "a"},
		{Name: "x", Start: "2025-05-01", End: "2025-05-02"},
		{Name: "x", Start: "May 1", End: "2025-05-02", AdminID: "a"},
		{Name: "x", Start: "2025-05-03", End: "2025-05-02", AdminID: "a"},
		{Name: "x", Start: "2025-01-01", End: "2025-03-01", AdminID: "a"},
		{Name: "x", Start: "2025-05-01", End: "2025-05-02", AdminID: "a", Destination: model.Destination{Location: pt(91, 0)}},
	}
	for i, c := range cases {
		_, err := svc.CreateTrip(ctx, c)
		assert.True(t, errors.As(err, &ve), "case %d: %v", i, err)
	}
}

func TestStartTrip_CreatesDaysAndOpensDayOne(t *testing.T) {
	f := newFixture(t, "2025-05-01", "2025-05-03")
	ctx := context.Background()

	_, _, err := f.svc.StartTrip(ctx, f.trip.ID, "ann")
	assert.ErrorIs(t, err, ErrForbidden)

	trip, days, err := f.svc.StartTrip(ctx, f.trip.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.TripActive, trip.State)
	require.Len(t, days, 3)
	require.Len(t, trip.Days, 3)
	assert.Equal(t, "2025-05-03", days[2].Date)
	assert.Equal(t, 3, days[2].Index)
	assert.Equal(t, model.DayVoting, days[0].Status)
	assert.Len(t, days[0].VotingPool.Morning, 3)
	assert.Equal(t, model.DayPending, days[1].Status)
	assert.Empty(t, days[1].VotingPool.Morning)

	stored, err := f.store.GetDay(ctx, days[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.DayVoting, stored.Status)

	_, _, err = f.svc.StartTrip(ctx, f.trip.ID, "admin")
	var ste *model.StateTransitionError
	require.True(t, errors.As(err, &ste), "start on a non-DRAFT trip")
	assert.Equal(t, []string{EventTripCreated, EventTripStarted, EventDayVoting}, f.events.Types())
}

// flakyDays fails the next failUpdates day writes.
type flakyDays struct {
	store.Store
	failUpdates int
}

func (f *flakyDays) UpdateDay(ctx context.Context, d model.Day) error {
	if f.failUpdates > 0 {
		f.failUpdates--
		return errors.New("disk full")
	}
	return f.Store.UpdateDay(ctx, d)
}

func TestStartTrip_FailedDayOneLeavesTripDraftAndRetries(t *testing.T) {
	f := newFixture(t, "2025-05-01", "2025-05-02")
	ctx := context.Background()
	f.svc.Store = &flakyDays{Store: f.store, failUpdates: 1}

	_, _, err := f.svc.StartTrip(ctx, f.trip.ID, "admin")
	require.ErrorContains(t, err, "disk full")
	stored, err := f.store.GetTrip(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TripDraft, stored.State)
	assert.Equal(t, []string{EventTripCreated}, f.events.Types(), "nothing published for a failed start")

	trip, days, err := f.svc.StartTrip(ctx, f.trip.ID, "admin")
	require.NoError(t, err, "retry succeeds")
	assert.Equal(t, model.TripActive, trip.State)
	require.Len(t, days, 2)
	assert.Equal(t, model.DayVoting, days[0].Status)
	all, err := f.store.ListDays(ctx, f.trip.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2, "days from the failed attempt are reused")
	assert.Equal(t, []string{EventTripCreated, EventTripStarted, EventDayVoting}, f.events.Types())
}

func TestDayLifecycle_VoteFinalizeLive(t *testing.T) {
	f := newFixture(t, "2025-05-01", "2025-05-02")
	ctx := context.Background()
	_, days, err := f.svc.StartTrip(ctx, f.trip.ID, "admin")
	require.NoError(t, err)
	day1, day2 := days[0], days[1]

	var ste *model.StateTransitionError
	_, err = f.svc.Finalize(ctx, day2.ID, "admin")
	require.True(t, errors.As(err, &ste), "finalize on a PENDING day")
	assert.Equal(t, "PENDING", ste.From)

	_, err = f.svc.SetLive(ctx, day1.ID, "admin")
	require.True(t, errors.As(err, &ste), "live needs a locked day")

	vote := func(user, slot, id string, dir model.VoteDirection) error {
		_, err := f.svc.CastVote(ctx, VoteRequest{DayID: day1.ID, UserID: user, Slot: model.Slot(slot), CandidateID: id, Direction: dir})
		return err
	}
	require.NoError(t, vote("ann", "morning", "orsay", model.VoteUp))
	require.NoError(t, vote("bob", "morning", "orsay", model.VoteUp))
	require.NoError(t, vote("bob", "morning", "orsay", model.VoteDown))
	require.NoError(t, vote("admin", "afternoon", "cafe", model.VoteUp))
	assert.ErrorIs(t, vote("eve", "morning", "louvre", model.VoteUp), ErrForbidden)
	var ve *model.ValidationError
	assert.True(t, errors.As(vote("ann", "morning", "club", model.VoteUp), &ve))
	assert.True(t, errors.As(vote("ann", "brunch", "orsay", model.VoteUp), &ve))

	d, err := f.svc.CastVote(ctx, VoteRequest{DayID: day1.ID, UserID: "admin", Slot: model.SlotAfternoon, CandidateID: "cafe", Action: ActionUnvote})
	require.NoError(t, err)
	assert.Empty(t, d.VotingPool.Afternoon[1].Votes)
	assert.Len(t, d.VotingPool.Morning[1].Votes, 2, "re-voting replaces the earlier vote")

	_, err = f.svc.Finalize(ctx, day1.ID, "ann")
	assert.ErrorIs(t, err, ErrForbidden)
	locked, err := f.svc.Finalize(ctx, day1.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.DayLocked, locked.Status)
	require.Len(t, locked.FinalRoute.Stops, 3)
	assert.Equal(t, "orsay", locked.FinalRoute.Stops[0].ID)
	assert.Equal(t, "bistro", locked.FinalRoute.Stops[1].ID, "no up-votes: first candidate wins")
	assert.Equal(t, "club", locked.FinalRoute.Stops[2].ID)
	require.Len(t, locked.FinalRoute.Transport, 2)
	assert.Equal(t, model.TransportLeg{Mode: model.ModeDriving, Duration: "15 mins"}, locked.FinalRoute.Transport[0])

	_, err = f.svc.CastVote(ctx, VoteRequest{DayID: day1.ID, UserID: "ann", Slot: model.SlotMorning, CandidateID: "orsay"})
	assert.True(t, errors.As(err, &ste), "no votes after lock")

	live, err := f.svc.SetLive(ctx, day1.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.DayLive, live.Status)

	_, err = f.svc.Finalize(ctx, day1.ID, "admin")
	assert.True(t, errors.As(err, &ste))
}

func TestBeginVoting_LaterDay(t *testing.T) {
	f := newFixture(t, "2025-05-01", "2025-05-02")
	ctx := context.Background()
	_, days, err := f.svc.StartTrip(ctx, f.trip.ID, "admin")
	require.NoError(t, err)

	d, err := f.svc.BeginVoting(ctx, days[1].ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.DayVoting, d.Status)
	assert.NotEmpty(t, d.VotingPool.Evening)

	_, err = f.svc.BeginVoting(ctx, days[1].ID, "admin")
	var ste *model.StateTransitionError
	assert.True(t, errors.As(err, &ste))

	_, err = f.svc.CompleteTrip(ctx, f.trip.ID, "admin")
	require.NoError(t, err)
	_, err = f.svc.CastVote(ctx, VoteRequest{DayID: days[1].ID, UserID: "ann", Slot: model.SlotMorning, CandidateID: "louvre"})
	require.True(t, errors.As(err, &ste), "completed trips take no votes")
	assert.Equal(t, "trip", ste.Entity)
}

func TestCastVote_ConcurrentVotesAreAllKept(t *testing.T) {
	f := newFixture(t, "2025-05-01", "2025-05-01")
	ctx := context.Background()
	var members []model.Member
	for i := 0; i < 20; i++ {
		members = append(members, model.Member{UserID: string(rune('a' + i))})
	}
	trip, _ := f.store.GetTrip(ctx, f.trip.ID)
	trip.Members = append(trip.Members, members...)
	require.NoError(t, f.store.UpdateTrip(ctx, trip))
	_, days, err := f.svc.StartTrip(ctx, f.trip.ID, "admin")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := f.svc.CastVote(ctx, VoteRequest{DayID: days[0].ID, UserID: user, Slot: model.SlotMorning, CandidateID: "louvre"})
			assert.NoError(t, err)
		}(m.UserID)
	}
	wg.Wait()
	d, _ := f.store.GetDay(ctx, days[0].ID)
	assert.Equal(t, 20, d.VotingPool.Morning[0].UpVotes())
}

func TestFinalRoute_EmptySlotsAreSkipped(t *testing.T) {
	pool := model.VotingPool{Evening: []model.Candidate{{Place: model.Place{ID: "only"}}}}
	fr := FinalRoute(pool)
	require.Len(t, fr.Stops, 1)
	assert.Empty(t, fr.Transport)
}

func TestDayCount(t *testing.T) {
	d := func(s string) time.Time { v, _ := time.Parse(dateLayout, s); return v }
	assert.Equal(t, 1, dayCount(d("2025-05-01"), d("2025-05-01")))
	assert.Equal(t, 3, dayCount(d("2025-05-01"), d("2025-05-03")))
	assert.Equal(t, 32, dayCount(d("2025-12-31"), d("2026-01-31")))
}
