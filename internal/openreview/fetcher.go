package openreview

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
	"github.com/Zhang-Henry/paper-collection/internal/ports"
	"github.com/Zhang-Henry/paper-collection/internal/retry"
)

// DefaultPageSize matches the remote API's maximum notes page.
const DefaultPageSize = 1000

// RequestBudget caps the number of remote requests a run may spend.
// A zero or negative cap means unlimited.
type RequestBudget struct {
	limited   bool
	remaining int
}

// NewRequestBudget builds a budget of n requests.
func NewRequestBudget(n int) *RequestBudget {
	return &RequestBudget{limited: n > 0, remaining: n}
}

// Take consumes one request slot; false means the budget is spent.
func (b *RequestBudget) Take() bool {
	if b == nil || !b.limited {
		return true
	}
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Exhausted reports whether no request slots remain.
func (b *RequestBudget) Exhausted() bool {
	return b != nil && b.limited && b.remaining <= 0
}

// Fetcher pages through a venue's submissions on every configured API
// endpoint and normalizes the raw notes into Papers.
type Fetcher struct {
	clients  []*Client
	pageSize int
	policy   retry.Policy
	budget   *RequestBudget
	logger   *slog.Logger
}

var _ ports.SubmissionSource = (*Fetcher)(nil)

// NewFetcher wires clients, the shared retry policy and an optional
// request budget.
func NewFetcher(clients []*Client, policy retry.Policy, budget *RequestBudget, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		clients:  clients,
		pageSize: DefaultPageSize,
		policy:   policy,
		budget:   budget,
		logger:   logger,
	}
}

type rawNote struct {
	ID      string         `json:"id"`
	Forum   string         `json:"forum"`
	Content map[string]any `json:"content"`
}

type notesPage struct {
	Notes []rawNote `json:"notes"`
}

// Submissions fetches every submission of venueID, page order preserved.
// Pages are requested with a fixed limit until a short page signals
// exhaustion. A page failing after retries truncates this venue's
// contribution: the papers read so far are returned together with the
// error so the caller can record a partial fetch instead of crashing.
func (f *Fetcher) Submissions(ctx context.Context, venueID string, key domain.VenueKey) ([]domain.Paper, error) {
	seen := map[string]struct{}{}
	var papers []domain.Paper
	var partialErr error

	for _, client := range f.clients {
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				return papers, err
			}
			if !f.budget.Take() {
				f.debug("request budget exhausted", "venue", venueID, "collected", len(papers))
				return papers, domain.ErrBudgetExhausted
			}

			query := url.Values{
				"content.venueid": {venueID},
				"limit":           {strconv.Itoa(f.pageSize)},
				"offset":          {strconv.Itoa(offset)},
			}

			var page notesPage
			err := f.policy.Do(ctx, IsTransient, func() error {
				page = notesPage{}
				return client.getJSON(ctx, "/notes", query, &page)
			})
			if err != nil {
				if ctx.Err() != nil {
					return papers, ctx.Err()
				}
				partialErr = fmt.Errorf("venue %s page at offset %d on %s: %w", venueID, offset, client.BaseURL(), err)
				f.debug("page fetch failed, truncating venue", "venue", venueID, "offset", offset, "error", err)
				break
			}

			for _, note := range page.Notes {
				paper := normalizeNote(note, key)
				if paper.Forum == "" {
					continue
				}
				if _, ok := seen[paper.Forum]; ok {
					continue
				}
				seen[paper.Forum] = struct{}{}
				papers = append(papers, paper)
			}

			if len(page.Notes) < f.pageSize {
				break
			}
			offset += f.pageSize
		}
	}

	f.debug("venue fetched", "venue", venueID, "papers", len(papers))
	return papers, partialErr
}

// normalizeNote reads raw content defensively: values may be plain or
// wrapped as {"value": ...}, missing fields become empty, and Venue/Year
// come from the caller's key, overriding anything in the payload.
func normalizeNote(note rawNote, key domain.VenueKey) domain.Paper {
	forum := note.Forum
	if forum == "" {
		forum = note.ID
	}
	return domain.Paper{
		Forum:     forum,
		Title:     contentString(note.Content, "title"),
		Abstract:  contentString(note.Content, "abstract"),
		Keywords:  contentStrings(note.Content, "keywords"),
		Authors:   contentStrings(note.Content, "authors"),
		AuthorIDs: contentStrings(note.Content, "authorids"),
		PDF:       contentString(note.Content, "pdf"),
		Venue:     key.Conference,
		Year:      key.Year,
	}
}

func contentValue(content map[string]any, field string) any {
	raw, ok := content[field]
	if !ok {
		return nil
	}
	if wrapped, ok := raw.(map[string]any); ok {
		if inner, ok := wrapped["value"]; ok {
			return inner
		}
		return nil
	}
	return raw
}

func contentString(content map[string]any, field string) string {
	if s, ok := contentValue(content, field).(string); ok {
		return s
	}
	return ""
}

func contentStrings(content map[string]any, field string) []string {
	switch v := contentValue(content, field).(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

func (f *Fetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
