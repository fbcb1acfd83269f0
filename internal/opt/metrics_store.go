package opt

import (
    "sort"
    "sync"
    "time"
)

// RunStats summarises one optimisation for the admin endpoint.
type RunStats struct {
    Key             string    `json:"key"`
    Places          int       `json:"places"`
    Mode            string    `json:"mode"`
    Passes          int       `json:"passes"`
    BudgetExhausted bool      `json:"budgetExhausted"`
    DistanceKm      float64   `json:"distanceKm"`
    EfficiencyScore int       `json:"efficiencyScore"`
    DurationMs      int64     `json:"durationMs"`
    At              time.Time `json:"at"`
}

const maxRuns = 200

var (
    mu   sync.Mutex
    runs = map[string]RunStats{}
)

// RecordRun keeps the latest stats per key (trip/day or caller label).
func RecordRun(s RunStats) {
    mu.Lock()
    defer mu.Unlock()
    if _, ok := runs[s.Key]; !ok && len(runs) >= maxRuns {
        // drop the oldest entry
        oldest := ""
        for k, v := range runs {
            if oldest == "" || v.At.Before(runs[oldest].At) { oldest = k }
        }
        delete(runs, oldest)
    }
    runs[s.Key] = s
}

// Runs returns recorded stats, newest first.
func Runs() []RunStats {
    mu.Lock()
    out := make([]RunStats, 0, len(runs))
    for _, v := range runs { out = append(out, v) }
    mu.Unlock()
    sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
    return out
}
