package model

import "time"

// Core planning records shared by the optimizer, scheduler, workflow and stores.

type GeoPoint struct {
    Lat float64 `json:"lat" bson:"lat"`
    Lng float64 `json:"lng" bson:"lng"`
}

type TransportMode string

const (
    ModeDriving TransportMode = "driving"
    ModeWalking TransportMode = "walking"
    ModeTransit TransportMode = "transit"
)

// Valid reports whether m is one of the supported modes.
func (m TransportMode) Valid() bool {
    switch m {
    case ModeDriving, ModeWalking, ModeTransit:
        return true
    }
    return false
}

type Slot string

const (
    SlotMorning   Slot = "morning"
    SlotAfternoon Slot = "afternoon"
    SlotEvening   Slot = "evening"
)

// Slots lists the time-of-day slots in visiting order.
var Slots = []Slot{SlotMorning, SlotAfternoon, SlotEvening}

func (s Slot) Valid() bool {
    return s == SlotMorning || s == SlotAfternoon || s == SlotEvening
}

// Place is the canonical point of interest. Location is nil when the source
// geometry could not be decoded; such places are kept but skipped by any
// distance-based step.
type Place struct {
    ID               string    `json:"id" bson:"id"`
    Name             string    `json:"name" bson:"name"`
    Location         *GeoPoint `json:"location,omitempty" bson:"location,omitempty"`
    Category         string    `json:"category,omitempty" bson:"category,omitempty"`
    Rating           float64   `json:"rating" bson:"rating"`
    Reviews          int       `json:"reviews" bson:"reviews"`
    PriceLevel       int       `json:"priceLevel" bson:"priceLevel"`
    Tags             []string  `json:"tags,omitempty" bson:"tags,omitempty"`
    Description      string    `json:"description,omitempty" bson:"description,omitempty"`
    City             string    `json:"city,omitempty" bson:"city,omitempty"`
    Zone             string    `json:"zone,omitempty" bson:"zone,omitempty"`
    OpensAt          string    `json:"opensAt,omitempty" bson:"opensAt,omitempty"`   // HH:MM
    ClosesAt         string    `json:"closesAt,omitempty" bson:"closesAt,omitempty"` // HH:MM
    VisitDurationMin int       `json:"visitDurationMin,omitempty" bson:"visitDurationMin,omitempty"`
}

type RouteSegment struct {
    FromID      string        `json:"fromId"`
    ToID        string        `json:"toId"`
    DistanceKm  float64       `json:"distanceKm"`
    DurationMin int           `json:"durationMin"`
    Mode        TransportMode `json:"mode"`
    Kind        string        `json:"kind"` // visit, return_trip
}

const (
    SegmentVisit      = "visit"
    SegmentReturnTrip = "return_trip"
    // StartID names the start location in segments.
    StartID = "start"
)

type OptimizedRoute struct {
    Segments           []RouteSegment `json:"segments"`
    TotalDistanceKm    float64        `json:"totalDistanceKm"`
    TotalDurationMin   int            `json:"totalDurationMin"`
    EfficiencyScore    int            `json:"efficiencyScore"`
    OriginalOrder      []string       `json:"originalOrder"`
    OptimizedOrder     []string       `json:"optimizedOrder"`
    ReturnTripIncluded bool           `json:"returnTripIncluded"`
    Passes             int            `json:"passes"`
    BudgetExhausted    bool           `json:"budgetExhausted,omitempty"`
}

type RoutePreferences struct {
    Mode             TransportMode `json:"transportMode,omitempty"`
    Priority         string        `json:"priority,omitempty"` // distance, rating
    ReturnToStart    bool          `json:"returnToStart,omitempty"`
    VisitDurationMin int           `json:"visitDuration,omitempty"`
}

type TimeSlotConstraint struct {
    Slot  Slot      `json:"slot"`
    Start time.Time `json:"start"`
    End   time.Time `json:"end"`
}

const (
    ItemActivity   = "activity"
    ItemReturnTrip = "return_trip"
    // ReturnTripPlaceID stands in for a place id on the closing leg.
    ReturnTripPlaceID = "return_trip"
)

type ItineraryItem struct {
    ID        string `json:"id"`
    PlaceID   string `json:"placeId"`
    StartTime string `json:"startTime"`
    EndTime   string `json:"endTime"`
    Notes     string `json:"notes,omitempty"`
    Type      string `json:"type"`
}

type VoteDirection string

const (
    VoteUp   VoteDirection = "up"
    VoteDown VoteDirection = "down"
)

type Vote struct {
    UserID    string        `json:"userId" bson:"userId"`
    Direction VoteDirection `json:"vote" bson:"vote"`
}

type VibeCheck struct {
    Summary       string   `json:"summary" bson:"summary"`
    Tags          []string `json:"tags" bson:"tags"`
    IsTouristTrap bool     `json:"isTouristTrap" bson:"isTouristTrap"`
}

type Candidate struct {
    Place           `bson:",inline"`
    ClusterSlot     Slot       `json:"clusterSlot" bson:"clusterSlot"`
    ParentClusterID string     `json:"parentClusterId,omitempty" bson:"parentClusterId,omitempty"`
    VibeCheck       *VibeCheck `json:"aiVibeCheck,omitempty" bson:"aiVibeCheck,omitempty"`
    Votes           []Vote     `json:"votes" bson:"votes"`
}

// UpVotes counts the up votes on c.
func (c Candidate) UpVotes() int {
    n := 0
    for _, v := range c.Votes {
        if v.Direction == VoteUp { n++ }
    }
    return n
}

type VotingPool struct {
    Morning   []Candidate `json:"morning" bson:"morning"`
    Afternoon []Candidate `json:"afternoon" bson:"afternoon"`
    Evening   []Candidate `json:"evening" bson:"evening"`
}

func (p *VotingPool) Get(s Slot) []Candidate {
    switch s {
    case SlotMorning:
        return p.Morning
    case SlotAfternoon:
        return p.Afternoon
    case SlotEvening:
        return p.Evening
    }
    return nil
}

func (p *VotingPool) Set(s Slot, c []Candidate) {
    switch s {
    case SlotMorning:
        p.Morning = c
    case SlotAfternoon:
        p.Afternoon = c
    case SlotEvening:
        p.Evening = c
    }
}

type TransportLeg struct {
    Mode     TransportMode `json:"mode" bson:"mode"`
    Duration string        `json:"duration" bson:"duration"`
    Polyline string        `json:"polyline" bson:"polyline"`
}

type FinalRoute struct {
    Stops     []Candidate    `json:"stops" bson:"stops"`
    Transport []TransportLeg `json:"transport" bson:"transport"`
}

type DayStatus string

const (
    DayPending DayStatus = "PENDING"
    DayVoting  DayStatus = "VOTING"
    DayLocked  DayStatus = "LOCKED"
    DayLive    DayStatus = "LIVE"
)

type Day struct {
    ID         string     `json:"id" bson:"_id"`
    TripID     string     `json:"tripId" bson:"tripId"`
    Index      int        `json:"dayIndex" bson:"dayIndex"`
    Date       string     `json:"date" bson:"date"` // YYYY-MM-DD
    Status     DayStatus  `json:"status" bson:"status"`
    VotingPool VotingPool `json:"votingPool" bson:"votingPool"`
    FinalRoute FinalRoute `json:"finalRoute" bson:"finalRoute"`
    UpdatedAt  time.Time  `json:"updatedAt" bson:"updatedAt"`
}

type TripState string

const (
    TripDraft     TripState = "DRAFT"
    TripActive    TripState = "ACTIVE"
    TripCompleted TripState = "COMPLETED"
)

type DateRange struct {
    Start string `json:"start" bson:"start"` // YYYY-MM-DD
    End   string `json:"end" bson:"end"`
}

type Destination struct {
    Name     string    `json:"name" bson:"name"`
    Location *GeoPoint `json:"location,omitempty" bson:"location,omitempty"`
}

type Member struct {
    UserID string `json:"userId" bson:"userId"`
    Role   string `json:"role" bson:"role"` // admin, editor, viewer
}

type DayRef struct {
    ID    string `json:"id" bson:"id"`
    Index int    `json:"dayIndex" bson:"dayIndex"`
    Date  string `json:"date" bson:"date"`
}

type Trip struct {
    ID          string      `json:"id" bson:"_id"`
    Name        string      `json:"name" bson:"name"`
    State       TripState   `json:"tripState" bson:"tripState"`
    Dates       DateRange   `json:"dates" bson:"dates"`
    Destination Destination `json:"destination" bson:"destination"`
    AdminID     string      `json:"adminId" bson:"adminId"`
    Members     []Member    `json:"members" bson:"members"`
    Days        []DayRef    `json:"days" bson:"days"`
    CreatedAt   time.Time   `json:"createdAt" bson:"createdAt"`
}

// IsMember reports whether userID is the admin or listed in Members.
func (t Trip) IsMember(userID string) bool {
    if userID == "" { return false }
    if t.AdminID == userID { return true }
    for _, m := range t.Members {
        if m.UserID == userID { return true }
    }
    return false
}

// Suggestion is one AI-proposed activity for a slot.
type Suggestion struct {
    Place            `bson:",inline"`
    EstimatedCost    string  `json:"estimatedCost,omitempty"`
    TravelTime       string  `json:"travelTimeFromPrevious,omitempty"`
    Slot             Slot    `json:"slot"`
    FeasibilityScore float64 `json:"feasibilityScore"`
    CombinedScore    float64 `json:"combinedScore"`
}

type DaySuggestions struct {
    Morning   []Suggestion `json:"morning"`
    Afternoon []Suggestion `json:"afternoon"`
    Evening   []Suggestion `json:"evening"`
}

func (d DaySuggestions) Get(s Slot) []Suggestion {
    switch s {
    case SlotMorning:
        return d.Morning
    case SlotAfternoon:
        return d.Afternoon
    case SlotEvening:
        return d.Evening
    }
    return nil
}
