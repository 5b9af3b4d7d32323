package ports

import (
	"context"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
)

// VenueResolver maps a (conference, year) pair to remote venue identifiers.
// An unknown pair resolves to an empty slice, never an error that aborts a run.
type VenueResolver interface {
	Resolve(ctx context.Context, conference, year string) ([]string, error)
}

// SubmissionSource pages through all submissions of one venue. The returned
// papers carry Venue and Year stamped from the key, not from the payload.
// A partial result plus a non-nil error means fetching was truncated after
// retries; papers collected before the failure are still valid.
type SubmissionSource interface {
	Submissions(ctx context.Context, venueID string, key domain.VenueKey) ([]domain.Paper, error)
}

// PaperCache persists one record set per (conference, year) key.
type PaperCache interface {
	ShouldFetch(key domain.VenueKey, force bool) bool
	Load(key domain.VenueKey) ([]domain.Paper, error)
	Save(key domain.VenueKey, papers []domain.Paper) error
	Keys() ([]domain.VenueKey, error)
}

// Classifier scores papers against the survey scope. Every input paper
// yields exactly one Result, in input order.
type Classifier interface {
	ClassifyAll(ctx context.Context, papers []domain.Paper) ([]domain.Result, domain.ClassifyStats)
}

// PaperCatalog records collected papers in durable storage for dedup/audit
// across runs. Implementations tolerate a nil backing store.
type PaperCatalog interface {
	Known(ctx context.Context, forums []string) (map[string]bool, error)
	Record(ctx context.Context, key domain.VenueKey, papers []domain.Paper) error
}
