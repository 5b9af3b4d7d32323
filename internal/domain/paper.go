package domain

import "fmt"

// Paper is a core entity describing one submission fetched from a venue.
type Paper struct {
	Forum     string
	Title     string
	Abstract  string
	Keywords  []string
	Authors   []string
	AuthorIDs []string
	PDF       string
	Venue     string
	Year      string
	Match     []string
}

// Accepted reports whether any filter predicate matched this paper.
func (p Paper) Accepted() bool {
	return len(p.Match) > 0
}

// VenueKey addresses one conference's one year in the cache and outputs.
type VenueKey struct {
	Conference string
	Year       string
}

func (k VenueKey) String() string {
	return fmt.Sprintf("%s/%s", k.Conference, k.Year)
}

// Evaluation captures the LLM relevance verdict for a single paper.
type Evaluation struct {
	Relevant       bool
	Confidence     float64
	RelevanceScore int
	Reasoning      string
	KeyAspects     []string
}

// Result pairs an input paper with its evaluation or recorded failure.
// Exactly one Result is produced per classified paper.
type Result struct {
	Paper      Paper
	Evaluation Evaluation
	Err        error
}

// CollectStatus enumerates per-key outcomes of a collection run.
type CollectStatus string

const (
	StatusFetched    CollectStatus = "fetched"
	StatusFromCache  CollectStatus = "cache"
	StatusSkipped    CollectStatus = "skipped"
	StatusPartial    CollectStatus = "partial"
	StatusNoVenues   CollectStatus = "no-venues"
	StatusSaveFailed CollectStatus = "save-failed"
)

// KeyResult tracks the outcome of processing one (conference, year) key.
type KeyResult struct {
	Key      VenueKey
	Status   CollectStatus
	Venues   int
	Fetched  int
	Accepted int
	Err      error
}

// RunSummary aggregates everything a run degraded on. It is logged at the
// end so that no venue skip, partial fetch or auth fallback goes silent.
type RunSummary struct {
	AuthFallback    bool
	VenuesResolved  int
	VenuesSkipped   int
	PapersFetched   int
	PapersFromCache int
	PapersAccepted  int
	PartialFetches  int
	Keys            []KeyResult
}

// Add folds a per-key result into the run totals.
func (s *RunSummary) Add(r KeyResult) {
	s.Keys = append(s.Keys, r)
	s.VenuesResolved += r.Venues
	s.PapersAccepted += r.Accepted
	switch r.Status {
	case StatusFetched:
		s.PapersFetched += r.Fetched
	case StatusPartial:
		s.PapersFetched += r.Fetched
		s.PartialFetches++
	case StatusFromCache:
		s.PapersFromCache += r.Fetched
	case StatusNoVenues:
		s.VenuesSkipped++
	}
}

// ClassifyStats mirrors the classifier's bookkeeping: every input paper is
// either evaluated or recorded as a failure, never dropped.
type ClassifyStats struct {
	Processed int
	Relevant  int
	Failed    int
	APICalls  int
}
