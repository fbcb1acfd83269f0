package voting

import (
	"fmt"
	"hash/fnv"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"tripplanner/internal/model"
)

// CategoryScore is the relevance of p to the preferred categories, 0..100.
func CategoryScore(p model.Place, preferred []string) float64 {
	s := p.Rating * 20
	if slices.Contains(preferred, p.Category) {
		s += 10
	}
	return math.Min(100, s)
}

// Trending breaks a trending score into its factors, each 0..100.
type Trending struct {
	Score       float64 `json:"score"`
	Mentions    float64 `json:"recentMentions"`
	Seasonal    float64 `json:"seasonalRelevance"`
	Velocity    float64 `json:"reviewVelocity"`
	LocalEvents float64 `json:"localEvents"`
}

// TrendingScore rates how much p is in demand around at.
func TrendingScore(p model.Place, at time.Time) Trending {
	t := Trending{
		Mentions:    p.Rating * 20,
		Seasonal:    seasonal(p.Category, at.Month()),
		Velocity:    reviewVelocity(p.Reviews),
		LocalEvents: float64(hash32(p.ID) % 51),
	}
	t.Score = t.Mentions*0.3 + t.Seasonal*0.25 + t.Velocity*0.25 + t.LocalEvents*0.2
	return t
}

func seasonal(category string, m time.Month) float64 {
	switch {
	case m >= time.May && m <= time.August:
		switch category {
		case "nature", "hiking":
			return 90
		case "attraction":
			return 70
		}
		return 50
	case m >= time.November || m <= time.February:
		switch category {
		case "culture", "shopping", "food":
			return 90
		case "attraction":
			return 80
		}
		return 60
	default:
		switch category {
		case "culture", "food":
			return 85
		case "nature":
			return 30
		}
		return 65
	}
}

func reviewVelocity(reviews int) float64 {
	switch {
	case reviews > 10000:
		return 90
	case reviews > 5000:
		return 75
	case reviews > 2000:
		return 60
	case reviews > 500:
		return 45
	}
	return 30
}

// tripCategories maps place categories onto the trip interests they serve.
var tripCategories = map[string][]string{
	"attraction": {"cultural", "historical"},
	"nature":     {"trekking", "scenic_drives", "wildlife"},
	"food":       {"food", "markets"},
	"culture":    {"cultural", "historical", "religious"},
	"hiking":     {"trekking", "adventure"},
	"shopping":   {"shopping", "markets"},
	"nightlife":  {"nightlife"},
	"activity":   {"adventure"},
}

// PreferenceMatch explains how well an option suits the trip's interests.
type PreferenceMatch struct {
	Score   float64  `json:"score"`
	Matched []string `json:"matchedCategories,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// PreferenceScore weighs p against trip interests. Missing priorities count as 3.
func PreferenceScore(p model.Place, interests []string, priorities map[string]int) PreferenceMatch {
	var m PreferenceMatch
	served := tripCategories[p.Category]
	for _, in := range interests {
		if !slices.Contains(served, in) {
			continue
		}
		prio := priorities[in]
		if prio == 0 {
			prio = 3
		}
		m.Matched = append(m.Matched, in)
		m.Score += float64(prio * 20)
		m.Reasons = append(m.Reasons, fmt.Sprintf("Matches your %s preference (priority %d)", in, prio))
	}
	m.Score += p.Rating * 10
	if p.Rating >= 4.5 {
		m.Reasons = append(m.Reasons, fmt.Sprintf("Highly rated (%s★)", fmtRating(p.Rating)))
	}
	m.Score += math.Min(float64(p.Reviews)/1000, 10)
	if p.Reviews > 5000 {
		m.Reasons = append(m.Reasons, fmt.Sprintf("Very popular (%d reviews)", p.Reviews))
	}
	return m
}

type slotRules struct {
	categories []string
	keywords   []string
	exclude    []string
}

var timeRules = map[model.Slot]slotRules{
	model.SlotMorning: {
		categories: []string{"park", "hiking", "museum", "garden", "religious", "breakfast", "nature"},
		keywords:   []string{"morning", "sunrise", "breakfast", "walk", "hike", "museum", "temple", "church", "park"},
		exclude:    []string{"nightclub", "bar", "casino", "adult", "pub", "lounge"},
	},
	model.SlotAfternoon: {
		categories: []string{"restaurant", "shopping_mall", "tourist_attraction", "cafe", "art_gallery", "zoo", "aquarium", "shopping"},
		keywords:   []string{"lunch", "shopping", "tour", "exhibition", "cultural", "mall", "market"},
		exclude:    []string{"breakfast", "sunrise", "nightclub"},
	},
	model.SlotEvening: {
		categories: []string{"restaurant", "nightclub", "bar", "viewpoint", "theater", "nightlife", "dinner"},
		keywords:   []string{"dinner", "sunset", "night", "show", "concert", "bar", "pub", "club"},
		exclude:    []string{"breakfast", "morning", "hiking", "zoo"},
	},
}

// excluded reports whether p must never be offered in slot.
func excluded(p model.Place, slot model.Slot) bool {
	name := strings.ToLower(p.Name)
	for _, x := range timeRules[slot].exclude {
		if p.Category == x || strings.Contains(name, x) {
			return true
		}
	}
	return false
}

// suitable reports whether p fits slot by category or name keyword.
func suitable(p model.Place, slot model.Slot) bool {
	r := timeRules[slot]
	if excluded(p, slot) {
		return false
	}
	if slices.Contains(r.categories, p.Category) {
		return true
	}
	name := strings.ToLower(p.Name)
	for _, k := range r.keywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

// OptionScore ranks places competing for a slot: 0.7 category relevance
// plus 0.3 trending.
func OptionScore(p model.Place, preferred []string, at time.Time) float64 {
	return 0.7*CategoryScore(p, preferred) + 0.3*TrendingScore(p, at).Score
}

var reasons = map[model.Slot][]string{
	model.SlotMorning:   {"Perfect for a morning start", "Great breakfast spot", "Beautiful morning views", "Peaceful morning atmosphere"},
	model.SlotAfternoon: {"Ideal for afternoon exploration", "Great lunch options nearby", "Perfect for shopping", "Cultural experience"},
	model.SlotEvening:   {"Amazing sunset views", "Great dinner atmosphere", "Vibrant nightlife", "Perfect way to end the day"},
}

// WhyRecommended is the one-line pitch shown next to a voting option. The
// same place and slot always get the same text.
func WhyRecommended(p model.Place, slot model.Slot) string {
	rs := reasons[slot]
	if len(rs) == 0 {
		return fmt.Sprintf("Rated %s stars.", fmtRating(p.Rating))
	}
	r := rs[hash32(p.ID+"|"+string(slot))%uint32(len(rs))]
	return fmt.Sprintf("%s. Rated %s stars.", r, fmtRating(p.Rating))
}

func fmtRating(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
