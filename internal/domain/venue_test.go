package domain

import (
	"reflect"
	"testing"
)

func TestGroupVenues(t *testing.T) {
	t.Parallel()

	venues := []string{
		"ICLR.cc/2024/Conference",
		"ICLR.cc/2024/Workshop/Agents",
		"ICLR.cc/2024/Blogposts",
	}
	got := GroupVenues(venues, []string{"conference", "workshop"})

	want := map[string][]string{
		"conference": {"ICLR.cc/2024/Conference"},
		"workshop":   {"ICLR.cc/2024/Workshop/Agents"},
	}
	if !reflect.DeepEqual(got["conference"], want["conference"]) {
		t.Fatalf("conference bin: got %v", got["conference"])
	}
	if !reflect.DeepEqual(got["workshop"], want["workshop"]) {
		t.Fatalf("workshop bin: got %v", got["workshop"])
	}
}

func TestGroupVenuesFirstBinWins(t *testing.T) {
	t.Parallel()

	// A venue mentioning both bins lands in the first one only.
	got := GroupVenues([]string{"X.cc/2024/Conference/Workshop"}, []string{"conference", "workshop"})
	if len(got["conference"]) != 1 || len(got["workshop"]) != 0 {
		t.Fatalf("expected first-bin assignment, got %v", got)
	}
}

func TestRunSummaryAdd(t *testing.T) {
	t.Parallel()

	var s RunSummary
	s.Add(KeyResult{Status: StatusFetched, Venues: 2, Fetched: 10, Accepted: 4})
	s.Add(KeyResult{Status: StatusPartial, Venues: 3, Fetched: 5, Accepted: 2})
	s.Add(KeyResult{Status: StatusFromCache, Fetched: 3, Accepted: 3})
	s.Add(KeyResult{Status: StatusNoVenues})

	if s.PapersFetched != 15 || s.PapersFromCache != 3 || s.PapersAccepted != 9 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if s.VenuesResolved != 5 || s.PartialFetches != 1 || s.VenuesSkipped != 1 || len(s.Keys) != 4 {
		t.Fatalf("unexpected counters: %+v", s)
	}
}
