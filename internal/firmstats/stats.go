package firmstats

import (
	"sort"
	"time"

	"github.com/manzil-bh/manzil-backend/internal/listing"
)

// SqftPerSqm converts square metres to square feet.
const SqftPerSqm = 10.7639

const (
	PriceWindow    = 90 * 24 * time.Hour
	PipelineWindow = 30 * 24 * time.Hour
)

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Windows returns the span ending at now and the span immediately before
// it.
func Windows(now time.Time, span time.Duration) (curr, prev Window) {
	now = now.UTC()
	curr = Window{Start: now.Add(-span), End: now}
	prev = Window{Start: curr.Start.Add(-span), End: curr.Start}
	return curr, prev
}

// PctChange is (curr-prev)/prev*100, or nil when either side is missing or
// prev is zero.
func PctChange(curr, prev *float64) *float64 {
	if curr == nil || prev == nil || *prev == 0 {
		return nil
	}
	v := (*curr - *prev) / *prev * 100
	return &v
}

type Comparison struct {
	Current    *float64 `json:"current"`
	Previous   *float64 `json:"previous"`
	PctChange  *float64 `json:"pct_change"`
	WindowDays int      `json:"window_days"`
}

func Compare(curr, prev *float64, span time.Duration) Comparison {
	return Comparison{
		Current:    curr,
		Previous:   prev,
		PctChange:  PctChange(curr, prev),
		WindowDays: int(span / (24 * time.Hour)),
	}
}

type PipelineCount struct {
	Status    string   `json:"status"`
	Current   int64    `json:"current"`
	Previous  int64    `json:"previous"`
	PctChange *float64 `json:"pct_change"`
}

// MergePipeline lines up per-status counts of two windows. Known statuses
// come first in pipeline order; any others follow alphabetically.
func MergePipeline(curr, prev map[string]int64) []PipelineCount {
	seen := map[string]struct{}{}
	var order []string
	for _, s := range listing.Statuses {
		order = append(order, string(s))
		seen[string(s)] = struct{}{}
	}
	var extra []string
	for _, m := range []map[string]int64{curr, prev} {
		for s := range m {
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				extra = append(extra, s)
			}
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	out := make([]PipelineCount, 0, len(order))
	for _, s := range order {
		c, p := float64(curr[s]), float64(prev[s])
		out = append(out, PipelineCount{
			Status:    s,
			Current:   curr[s],
			Previous:  prev[s],
			PctChange: PctChange(&c, &p),
		})
	}
	return out
}
