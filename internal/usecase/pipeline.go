package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
	"github.com/Zhang-Henry/paper-collection/internal/extract"
	"github.com/Zhang-Henry/paper-collection/internal/filter"
	"github.com/Zhang-Henry/paper-collection/internal/ports"
)

// PipelineDeps wires all driven adapters into the collection pipeline.
type PipelineDeps struct {
	Resolver   ports.VenueResolver
	Source     ports.SubmissionSource
	Cache      ports.PaperCache
	Catalog    ports.PaperCatalog
	Filters    *filter.Chain
	Transforms []extract.Transform
	Selector   extract.Selector
	Extractor  *extract.Extractor
	Logger     *slog.Logger
}

// Options carries the per-run knobs of a collection.
type Options struct {
	Force      bool
	SampleCap  int
	Groups     []string
	OutputPath string
}

// Pipeline implements the fetch-cache-filter-aggregate workflow over a
// matrix of (conference, year) keys.
type Pipeline struct {
	resolver   ports.VenueResolver
	source     ports.SubmissionSource
	cache      ports.PaperCache
	catalog    ports.PaperCatalog
	filters    *filter.Chain
	transforms []extract.Transform
	selector   extract.Selector
	extractor  *extract.Extractor
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	extractor := deps.Extractor
	if extractor == nil {
		extractor = extract.New(nil)
	}
	return &Pipeline{
		resolver:   deps.Resolver,
		source:     deps.Source,
		cache:      deps.Cache,
		catalog:    deps.Catalog,
		filters:    deps.Filters,
		transforms: deps.Transforms,
		selector:   deps.Selector,
		extractor:  extractor,
		logger:     deps.Logger,
	}
}

// Run processes each key independently: cache check, fetch on miss,
// filter, transform, persist, aggregate. A single key's failure degrades
// that key only; the run always completes and reports a summary.
func (p *Pipeline) Run(ctx context.Context, keys []domain.VenueKey, opts Options) (domain.RunSummary, error) {
	var summary domain.RunSummary

	// The aggregated output describes exactly this run, so any previous
	// file is replaced up front. Keys then append in iteration order,
	// which keeps repeat runs byte-identical.
	if opts.OutputPath != "" {
		if err := resetOutput(opts.OutputPath); err != nil {
			return summary, err
		}
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, papers := p.processKey(ctx, key, opts, summary.PapersAccepted)
		summary.Add(result)
		p.logKey(result)

		if opts.OutputPath != "" && len(papers) > 0 {
			if err := extract.AppendCSV(opts.OutputPath, p.extractor, papers); err != nil {
				return summary, fmt.Errorf("aggregate %s: %w", key, err)
			}
		}

		if errors.Is(result.Err, domain.ErrBudgetExhausted) {
			p.info("request budget exhausted, stopping run", "processed_keys", len(summary.Keys))
			break
		}
		if opts.SampleCap > 0 && summary.PapersAccepted >= opts.SampleCap {
			p.info("sample cap reached, stopping run", "accepted", summary.PapersAccepted)
			break
		}
	}

	p.logSummary(summary)
	return summary, nil
}

// processKey handles one (conference, year) key and returns its result
// together with the papers this run should aggregate for it. The cache
// always holds the complete accepted set; a sample cap narrows only the
// returned view, never what gets persisted.
func (p *Pipeline) processKey(ctx context.Context, key domain.VenueKey, opts Options, acceptedSoFar int) (domain.KeyResult, []domain.Paper) {
	if !p.cache.ShouldFetch(key, opts.Force) {
		papers, err := p.cache.Load(key)
		if err == nil {
			view := capView(papers, opts.SampleCap, acceptedSoFar)
			return domain.KeyResult{Key: key, Status: domain.StatusFromCache, Fetched: len(papers), Accepted: len(view)}, view
		}
		// Corrupt cache file: treated as a miss, falls through to refetch.
		p.warn("cache unreadable, refetching", "key", key.String(), "error", err)
	}

	venues, err := p.resolver.Resolve(ctx, key.Conference, key.Year)
	if err != nil {
		return domain.KeyResult{Key: key, Status: domain.StatusSkipped, Err: fmt.Errorf("resolve venues: %w", err)}, nil
	}
	if len(opts.Groups) > 0 {
		venues = flattenGroups(domain.GroupVenues(venues, opts.Groups), opts.Groups)
	}
	if len(venues) == 0 {
		return domain.KeyResult{Key: key, Status: domain.StatusNoVenues}, nil
	}

	var fetched []domain.Paper
	var fetchErr error
	for _, venue := range venues {
		papers, err := p.source.Submissions(ctx, venue, key)
		fetched = append(fetched, papers...)
		if err != nil {
			fetchErr = err
			if errors.Is(err, domain.ErrBudgetExhausted) || ctx.Err() != nil {
				break
			}
			// Partial fetch: this venue is truncated, the rest still run.
			p.warn("venue fetch truncated", "key", key.String(), "venue", venue, "error", err)
		}
	}

	if errors.Is(fetchErr, domain.ErrBudgetExhausted) {
		// Do not persist a half-fetched key as a fresh cache entry.
		return domain.KeyResult{Key: key, Status: domain.StatusSkipped, Fetched: len(fetched), Venues: len(venues), Err: fetchErr}, nil
	}

	accepted := p.applyFilters(fetched)
	accepted = extract.Apply(accepted, p.transforms)
	if p.selector != nil {
		accepted = p.selector(accepted)
	}

	if err := p.cache.Save(key, accepted); err != nil {
		return domain.KeyResult{Key: key, Status: domain.StatusSaveFailed, Fetched: len(fetched), Venues: len(venues), Err: err}, nil
	}

	if p.catalog != nil && len(accepted) > 0 {
		p.recordNew(ctx, key, accepted)
	}

	view := capView(accepted, opts.SampleCap, acceptedSoFar)
	status := domain.StatusFetched
	if fetchErr != nil {
		status = domain.StatusPartial
	}
	return domain.KeyResult{Key: key, Status: status, Fetched: len(fetched), Accepted: len(view), Venues: len(venues), Err: fetchErr}, view
}

// capView narrows papers to what the sample cap still allows this run.
func capView(papers []domain.Paper, limit, acceptedSoFar int) []domain.Paper {
	if limit > 0 && acceptedSoFar+len(papers) > limit {
		return papers[:limit-acceptedSoFar]
	}
	return papers
}

// recordNew writes only papers the catalog has not seen before, so repeat
// runs do not rewrite unchanged rows. Catalog trouble is logged, never
// fatal.
func (p *Pipeline) recordNew(ctx context.Context, key domain.VenueKey, papers []domain.Paper) {
	forums := make([]string, 0, len(papers))
	for _, paper := range papers {
		forums = append(forums, paper.Forum)
	}
	known, err := p.catalog.Known(ctx, forums)
	if err != nil {
		p.warn("catalog lookup failed", "key", key.String(), "error", err)
		known = map[string]bool{}
	}

	var fresh []domain.Paper
	for _, paper := range papers {
		if !known[paper.Forum] {
			fresh = append(fresh, paper)
		}
	}
	if len(fresh) == 0 {
		return
	}
	if err := p.catalog.Record(ctx, key, fresh); err != nil {
		p.warn("catalog record failed", "key", key.String(), "error", err)
	}
}

func (p *Pipeline) applyFilters(papers []domain.Paper) []domain.Paper {
	if p.filters == nil || p.filters.Len() == 0 {
		return papers
	}
	var accepted []domain.Paper
	for _, paper := range papers {
		if match := p.filters.Accepts(paper); len(match) > 0 {
			paper.Match = match
			accepted = append(accepted, paper)
		}
	}
	return accepted
}

func flattenGroups(grouped map[string][]string, bins []string) []string {
	var out []string
	for _, bin := range bins {
		out = append(out, grouped[bin]...)
	}
	return out
}

func resetOutput(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset output %s: %w", path, err)
	}
	return nil
}

func (p *Pipeline) logKey(r domain.KeyResult) {
	if p.logger == nil {
		return
	}
	args := []any{"key", r.Key.String(), "status", string(r.Status), "fetched", r.Fetched, "accepted", r.Accepted}
	if r.Err != nil {
		args = append(args, "error", r.Err)
		p.logger.Warn("key processed with degradation", args...)
		return
	}
	p.logger.Info("key processed", args...)
}

func (p *Pipeline) logSummary(s domain.RunSummary) {
	if p.logger == nil {
		return
	}
	p.logger.Info("collection run complete",
		"keys", len(s.Keys),
		"venues_resolved", s.VenuesResolved,
		"fetched", s.PapersFetched,
		"from_cache", s.PapersFromCache,
		"accepted", s.PapersAccepted,
		"partial_fetches", s.PartialFetches,
		"venues_skipped", s.VenuesSkipped,
	)
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
