package domain

import (
	"errors"
	"strings"
)

// ErrBudgetExhausted signals that the run's remote-request budget is spent.
// Callers stop cleanly, keeping all work completed so far.
var ErrBudgetExhausted = errors.New("request budget exhausted")

// GroupVenues buckets venue identifiers into the configured bins
// (e.g. "conference", "workshop") by case-insensitive substring. A venue
// lands in the first bin mentioning it; unmatched venues are dropped,
// which is how main tracks are separated from side tracks.
func GroupVenues(venues, bins []string) map[string][]string {
	grouped := make(map[string][]string, len(bins))
	for _, bin := range bins {
		grouped[bin] = nil
	}
	for _, venue := range venues {
		lower := strings.ToLower(venue)
		for _, bin := range bins {
			if strings.Contains(lower, strings.ToLower(bin)) {
				grouped[bin] = append(grouped[bin], venue)
				break
			}
		}
	}
	return grouped
}
