package openreview

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Zhang-Henry/paper-collection/internal/ports"
)

// Resolver maps (conference, year) pairs onto venue identifiers by
// matching against the remote `venues` group membership. Members are
// fetched once per run and merged across endpoints; a failing endpoint
// degrades to the members the others returned.
type Resolver struct {
	clients []*Client
	logger  *slog.Logger

	fetched bool
	members []string
}

var _ ports.VenueResolver = (*Resolver)(nil)

// NewResolver wires the API clients the resolver consults.
func NewResolver(clients []*Client, logger *slog.Logger) *Resolver {
	return &Resolver{clients: clients, logger: logger}
}

// Resolve returns every venue identifier mentioning both the conference
// (case-insensitive) and the year. Unknown pairs resolve to an empty
// slice with a warning, never an error that would abort the run.
func (r *Resolver) Resolve(ctx context.Context, conference, year string) ([]string, error) {
	members, err := r.venueMembers(ctx)
	if err != nil {
		return nil, err
	}

	confLower := strings.ToLower(conference)
	var matched []string
	for _, venue := range members {
		if !strings.Contains(venue, year) {
			continue
		}
		if strings.Contains(strings.ToLower(venue), confLower) {
			matched = append(matched, venue)
		}
	}

	if len(matched) == 0 && r.logger != nil {
		r.logger.Warn("no venues resolved", "conference", conference, "year", year)
	}
	return matched, nil
}

func (r *Resolver) venueMembers(ctx context.Context) ([]string, error) {
	if r.fetched {
		return r.members, nil
	}

	seen := map[string]struct{}{}
	var merged []string
	var reachedAny bool
	var lastErr error

	for _, client := range r.clients {
		var out struct {
			Groups []struct {
				Members []string `json:"members"`
			} `json:"groups"`
		}
		query := url.Values{"id": {"venues"}}
		if err := client.getJSON(ctx, "/groups", query, &out); err != nil {
			lastErr = err
			if r.logger != nil {
				r.logger.Warn("venue listing failed", "endpoint", client.BaseURL(), "error", err)
			}
			continue
		}
		reachedAny = true
		for _, group := range out.Groups {
			for _, member := range group.Members {
				if _, ok := seen[member]; ok {
					continue
				}
				seen[member] = struct{}{}
				merged = append(merged, member)
			}
		}
	}

	if !reachedAny {
		return nil, lastErr
	}

	r.fetched = true
	r.members = merged
	return merged, nil
}
