package suggest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tripplanner/internal/llm"
	"tripplanner/internal/metrics"
	"tripplanner/internal/model"
	"tripplanner/internal/places"
)

// DefaultTTL is how long a generated suggestion set stays valid.
const DefaultTTL = time.Hour

// MaxPerSlot caps the suggestions kept for each slot.
const MaxPerSlot = 3

type Source string

const (
	SourceCache    Source = "cache"
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

// Service returns day suggestions, asking the provider only on a cache miss.
// Provider and parse failures never reach the caller.
type Service struct {
	Cache   Cache
	Client  llm.Client
	TTL     time.Duration
	Limiter *rate.Limiter
}

// NewService wires a service. rps <= 0 disables provider throttling.
func NewService(cache Cache, client llm.Client, ttl time.Duration, rps float64) *Service {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Service{Cache: cache, Client: client, TTL: ttl, Limiter: lim}
}

// Key is the cache key for one day of one destination.
func Key(dayIndex int, destination string) string {
	return fmt.Sprintf("suggest:%d:%s", dayIndex, strings.ToLower(strings.TrimSpace(destination)))
}

func (s *Service) GetOrFetch(ctx context.Context, dayIndex int, destination string) (model.DaySuggestions, Source) {
	key := Key(dayIndex, destination)
	if v, ok, err := s.Cache.Get(ctx, key); err != nil {
		log.Printf("[suggest] cache get %s: %v", key, err)
	} else if ok {
		metrics.SuggestionLookups.WithLabelValues("hit").Inc()
		return v, SourceCache
	}

	v, err := s.fetch(ctx, dayIndex, destination)
	if err != nil {
		log.Printf("[suggest] day %d %q: falling back: %v", dayIndex, destination, err)
		metrics.SuggestionLookups.WithLabelValues("fallback").Inc()
		return Fallback(destination), SourceFallback
	}
	metrics.SuggestionLookups.WithLabelValues("miss").Inc()
	if err := s.Cache.Set(ctx, key, v, s.TTL); err != nil {
		log.Printf("[suggest] cache set %s: %v", key, err)
	}
	return v, SourceProvider
}

// Refresh drops the cached set so the next lookup asks the provider again.
func (s *Service) Refresh(ctx context.Context, dayIndex int, destination string) error {
	return s.Cache.Evict(ctx, Key(dayIndex, destination))
}

func (s *Service) fetch(ctx context.Context, dayIndex int, destination string) (model.DaySuggestions, error) {
	if s.Client == nil {
		return model.DaySuggestions{}, &model.ProviderError{Provider: "suggestions", Op: "generate", Err: llm.ErrUnavailable}
	}
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return model.DaySuggestions{}, &model.ProviderError{Provider: "suggestions", Op: "wait", Err: err}
		}
	}
	resp, err := s.Client.Generate(ctx, llm.GenerateRequest{
		Task:         llm.TaskSuggest,
		SystemPrompt: systemPrompt,
		Prompt:       dayPrompt(dayIndex, destination),
	})
	if err != nil {
		return model.DaySuggestions{}, &model.ProviderError{Provider: "suggestions", Op: "generate", Err: err}
	}
	out, err := Parse(resp.Text, dayIndex, destination)
	if err != nil {
		return model.DaySuggestions{}, &model.ProviderError{Provider: "suggestions", Op: "parse", Err: err}
	}
	fb := Fallback(destination)
	if len(out.Morning) == 0 {
		out.Morning = fb.Morning
	}
	if len(out.Afternoon) == 0 {
		out.Afternoon = fb.Afternoon
	}
	if len(out.Evening) == 0 {
		out.Evening = fb.Evening
	}
	return out, nil
}

const systemPrompt = `You are a local travel planner. Reply with a single JSON object with the keys "morning", "afternoon" and "evening". Each is an array of at most 3 activities with name, category, description, estimated_cost, travel_time_from_previous, feasibility_score (1-10) and coordinates {lat, lng}.`

func dayPrompt(dayIndex int, destination string) string {
	return fmt.Sprintf("Suggest activities for day %d of a trip to %s.", dayIndex, destination)
}

type rawCoords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type rawSuggestion struct {
	Name             string     `json:"name"`
	Category         string     `json:"category"`
	Description      string     `json:"description"`
	EstimatedCost    string     `json:"estimated_cost"`
	CostRange        string     `json:"cost_range"`
	TravelTime       string     `json:"travel_time_from_previous"`
	FeasibilityScore float64    `json:"feasibility_score"`
	Coordinates      *rawCoords `json:"coordinates"`
}

type rawDay struct {
	Morning   *[]rawSuggestion `json:"morning"`
	Afternoon *[]rawSuggestion `json:"afternoon"`
	Evening   *[]rawSuggestion `json:"evening"`
}

func (d rawDay) slot(s model.Slot) []rawSuggestion {
	var p *[]rawSuggestion
	switch s {
	case model.SlotMorning:
		p = d.Morning
	case model.SlotAfternoon:
		p = d.Afternoon
	case model.SlotEvening:
		p = d.Evening
	}
	if p == nil {
		return nil
	}
	return *p
}

func validateDay(d rawDay) error {
	if d.Morning == nil || d.Afternoon == nil || d.Evening == nil {
		return errors.New("morning, afternoon and evening are all required")
	}
	return nil
}

// Parse decodes provider output into a suggestion set: at most MaxPerSlot
// entries per slot, synthetic ids and placeholder ranking fields.
func Parse(text string, dayIndex int, destination string) (model.DaySuggestions, error) {
	raw, err := llm.Decode[rawDay](text, validateDay)
	if err != nil {
		return model.DaySuggestions{}, err
	}
	var out model.DaySuggestions
	for _, slot := range model.Slots {
		var list []model.Suggestion
		for _, r := range raw.slot(slot) {
			if len(list) == MaxPerSlot {
				break
			}
			rp := places.RawPlace{
				ID:          fmt.Sprintf("ai-%d-%s-%d", dayIndex, slot, len(list)+1),
				Name:        r.Name,
				Category:    r.Category,
				Description: r.Description,
				Rating:      4.5,
				Reviews:     100,
				PriceLevel:  priceLevel(r),
				Tags:        []string{"Smart Suggestion"},
				City:        destination,
			}
			if r.Coordinates != nil {
				rp.Lat, rp.Lng = &r.Coordinates.Lat, &r.Coordinates.Lng
			}
			p, err := places.Normalize(rp)
			if err != nil {
				continue
			}
			feas := r.FeasibilityScore / 10
			if feas <= 0 || feas > 1 {
				feas = 0.7
			}
			list = append(list, model.Suggestion{
				Place:            p,
				EstimatedCost:    firstNonEmpty(r.EstimatedCost, r.CostRange),
				TravelTime:       r.TravelTime,
				Slot:             slot,
				FeasibilityScore: feas,
				CombinedScore:    math.Round(feas * 100),
			})
		}
		switch slot {
		case model.SlotMorning:
			out.Morning = list
		case model.SlotAfternoon:
			out.Afternoon = list
		case model.SlotEvening:
			out.Evening = list
		}
	}
	return out, nil
}

// priceLevel reads "$$"-style ranges; anything else is mid-range.
func priceLevel(r rawSuggestion) int {
	for _, s := range []string{r.CostRange, r.EstimatedCost} {
		s = strings.TrimSpace(s)
		if s != "" && strings.Trim(s, "$") == "" {
			return len(s)
		}
	}
	return 2
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Fallback is the fixed suggestion set used when the provider cannot answer.
// Every slot holds at least one entry.
func Fallback(destination string) model.DaySuggestions {
	mk := func(slot model.Slot) []model.Suggestion {
		return []model.Suggestion{{
			Place: model.Place{
				ID:          fmt.Sprintf("fallback-%s-1", slot),
				Name:        "Local Market Visit",
				Category:    "shopping",
				Description: "Experience local culture and fresh produce",
				Rating:      4.5,
				Reviews:     100,
				PriceLevel:  1,
				Tags:        []string{"Fallback"},
				City:        destination,
			},
			Slot:             slot,
			FeasibilityScore: 1,
		}}
	}
	return model.DaySuggestions{
		Morning:   mk(model.SlotMorning),
		Afternoon: mk(model.SlotAfternoon),
		Evening:   mk(model.SlotEvening),
	}
}
