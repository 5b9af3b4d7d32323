package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Zhang-Henry/paper-collection/internal/cache"
	"github.com/Zhang-Henry/paper-collection/internal/domain"
	"github.com/Zhang-Henry/paper-collection/internal/extract"
	"github.com/Zhang-Henry/paper-collection/internal/filter"
)

type fakeResolver struct {
	venues map[string][]string
	err    error
}

func (r *fakeResolver) Resolve(_ context.Context, conference, year string) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.venues[conference+"/"+year], nil
}

type fakeSource struct {
	papers map[string][]domain.Paper
	errs   map[string]error
	calls  int
}

func (s *fakeSource) Submissions(_ context.Context, venueID string, key domain.VenueKey) ([]domain.Paper, error) {
	s.calls++
	papers := append([]domain.Paper(nil), s.papers[venueID]...)
	for i := range papers {
		papers[i].Venue = key.Conference
		papers[i].Year = key.Year
	}
	return papers, s.errs[venueID]
}

func agentPaper(forum string) domain.Paper {
	return domain.Paper{
		Forum:    forum,
		Title:    "Agent Learning from Synthetic Data",
		Abstract: "We train agents with trajectory synthesis.",
		Keywords: []string{"agents"},
	}
}

func visionPaper(forum string) domain.Paper {
	return domain.Paper{
		Forum:    forum,
		Title:    "Vision Transformers",
		Abstract: "Image classification benchmarks.",
	}
}

func newTestPipeline(t *testing.T, resolver *fakeResolver, source *fakeSource) (*Pipeline, *cache.Store) {
	t.Helper()
	store := cache.NewStore(t.TempDir())
	pipeline := NewPipeline(PipelineDeps{
		Resolver: resolver,
		Source:   source,
		Cache:    store,
		Filters:  filter.Standard([]string{"agent", "trajectory"}),
	})
	return pipeline, store
}

func TestRunFetchesFiltersAndCaches(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference"},
	}}
	source := &fakeSource{papers: map[string][]domain.Paper{
		"ICLR.cc/2024/Conference": {agentPaper("f1"), visionPaper("f2"), agentPaper("f3")},
	}}
	pipeline, store := newTestPipeline(t, resolver, source)

	key := domain.VenueKey{Conference: "ICLR", Year: "2024"}
	summary, err := pipeline.Run(context.Background(), []domain.VenueKey{key}, Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.PapersFetched != 3 || summary.PapersAccepted != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	cached, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("expected 2 accepted papers cached, got %d", len(cached))
	}
	for _, p := range cached {
		if !p.Accepted() {
			t.Fatalf("cached paper lost its match set: %+v", p)
		}
	}
}

func TestWarmRunProducesIdenticalOutput(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference"},
	}}
	source := &fakeSource{papers: map[string][]domain.Paper{
		"ICLR.cc/2024/Conference": {agentPaper("f1"), agentPaper("f2")},
	}}
	pipeline, _ := newTestPipeline(t, resolver, source)

	output := filepath.Join(t.TempDir(), "papers.csv")
	key := domain.VenueKey{Conference: "ICLR", Year: "2024"}
	opts := Options{OutputPath: output}

	if _, err := pipeline.Run(context.Background(), []domain.VenueKey{key}, opts); err != nil {
		t.Fatalf("cold run: %v", err)
	}
	cold, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read cold output: %v", err)
	}
	callsAfterCold := source.calls

	if _, err := pipeline.Run(context.Background(), []domain.VenueKey{key}, opts); err != nil {
		t.Fatalf("warm run: %v", err)
	}
	warm, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read warm output: %v", err)
	}

	if source.calls != callsAfterCold {
		t.Fatalf("warm run must not refetch, calls went %d -> %d", callsAfterCold, source.calls)
	}
	if string(cold) != string(warm) {
		t.Fatalf("outputs differ between cold and warm runs:\n%s\nvs\n%s", cold, warm)
	}
}

func TestForceRedownloadBypassesCache(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference"},
	}}
	source := &fakeSource{papers: map[string][]domain.Paper{
		"ICLR.cc/2024/Conference": {agentPaper("f1")},
	}}
	pipeline, _ := newTestPipeline(t, resolver, source)

	key := domain.VenueKey{Conference: "ICLR", Year: "2024"}
	keys := []domain.VenueKey{key}

	if _, err := pipeline.Run(context.Background(), keys, Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := source.calls
	if _, err := pipeline.Run(context.Background(), keys, Options{Force: true}); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if source.calls <= before {
		t.Fatal("force must refetch even with a warm cache")
	}
}

func TestUnresolvedKeyContributesZeroPapers(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference"},
	}}
	source := &fakeSource{papers: map[string][]domain.Paper{
		"ICLR.cc/2024/Conference": {agentPaper("f1")},
	}}
	pipeline, _ := newTestPipeline(t, resolver, source)

	keys := []domain.VenueKey{
		{Conference: "KDD", Year: "2019"},
		{Conference: "ICLR", Year: "2024"},
	}
	summary, err := pipeline.Run(context.Background(), keys, Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.VenuesSkipped != 1 {
		t.Fatalf("expected 1 skipped key, got %d", summary.VenuesSkipped)
	}
	if summary.PapersAccepted != 1 {
		t.Fatalf("other keys must still be processed: %+v", summary)
	}
}

func TestPartialFetchKeepsCollectedPapers(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference", "ICLR.cc/2024/Workshop"},
	}}
	source := &fakeSource{
		papers: map[string][]domain.Paper{
			"ICLR.cc/2024/Conference": {agentPaper("f1")},
			"ICLR.cc/2024/Workshop":   {agentPaper("f2")},
		},
		errs: map[string]error{
			"ICLR.cc/2024/Workshop": fmt.Errorf("page at offset 2000: %w", errors.New("gateway timeout")),
		},
	}
	pipeline, store := newTestPipeline(t, resolver, source)

	key := domain.VenueKey{Conference: "ICLR", Year: "2024"}
	summary, err := pipeline.Run(context.Background(), []domain.VenueKey{key}, Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.PartialFetches != 1 {
		t.Fatalf("expected 1 partial fetch recorded, got %+v", summary)
	}

	cached, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cached) != 2 {
		t.Fatalf("papers collected before the failure must survive, got %d", len(cached))
	}
}

func TestSampleCapStopsRun(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference"},
		"ICML/2024": {"ICML.cc/2024/Conference"},
	}}
	source := &fakeSource{papers: map[string][]domain.Paper{
		"ICLR.cc/2024/Conference": {agentPaper("f1"), agentPaper("f2"), agentPaper("f3")},
		"ICML.cc/2024/Conference": {agentPaper("f4")},
	}}
	pipeline, _ := newTestPipeline(t, resolver, source)

	keys := []domain.VenueKey{
		{Conference: "ICLR", Year: "2024"},
		{Conference: "ICML", Year: "2024"},
	}
	summary, err := pipeline.Run(context.Background(), keys, Options{SampleCap: 2})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.PapersAccepted != 2 {
		t.Fatalf("expected exactly the cap, got %d", summary.PapersAccepted)
	}
	if len(summary.Keys) != 1 {
		t.Fatalf("run must stop once the cap is reached, processed %d keys", len(summary.Keys))
	}
}

func TestSampleCapDoesNotTruncateCache(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference"},
	}}
	source := &fakeSource{papers: map[string][]domain.Paper{
		"ICLR.cc/2024/Conference": {agentPaper("f1"), agentPaper("f2"), agentPaper("f3")},
	}}
	pipeline, store := newTestPipeline(t, resolver, source)

	key := domain.VenueKey{Conference: "ICLR", Year: "2024"}
	summary, err := pipeline.Run(context.Background(), []domain.VenueKey{key}, Options{SampleCap: 1})
	if err != nil {
		t.Fatalf("capped run: %v", err)
	}
	if summary.PapersAccepted != 1 {
		t.Fatalf("capped run must report the cap, got %d", summary.PapersAccepted)
	}

	// The cap bounds the run's output, never what gets persisted: the
	// cache must still hold every accepted paper.
	cached, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cached) != 3 {
		t.Fatalf("cache must hold the full accepted set, got %d", len(cached))
	}

	callsAfterCapped := source.calls
	summary, err = pipeline.Run(context.Background(), []domain.VenueKey{key}, Options{})
	if err != nil {
		t.Fatalf("warm run: %v", err)
	}
	if source.calls != callsAfterCapped {
		t.Fatalf("warm run must not refetch, calls went %d -> %d", callsAfterCapped, source.calls)
	}
	if summary.PapersAccepted != 3 {
		t.Fatalf("uncapped warm run must serve the complete set, got %d", summary.PapersAccepted)
	}
}

func TestBudgetExhaustionStopsWithoutTornCache(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference"},
		"ICML/2024": {"ICML.cc/2024/Conference"},
	}}
	source := &fakeSource{
		papers: map[string][]domain.Paper{
			"ICLR.cc/2024/Conference": {agentPaper("f1")},
		},
		errs: map[string]error{
			"ICLR.cc/2024/Conference": domain.ErrBudgetExhausted,
		},
	}
	pipeline, store := newTestPipeline(t, resolver, source)

	keys := []domain.VenueKey{
		{Conference: "ICLR", Year: "2024"},
		{Conference: "ICML", Year: "2024"},
	}
	summary, err := pipeline.Run(context.Background(), keys, Options{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(summary.Keys) != 1 {
		t.Fatalf("run must stop on budget exhaustion, processed %d keys", len(summary.Keys))
	}

	// The half-fetched key must not look like a fresh cache entry.
	if _, err := store.Load(domain.VenueKey{Conference: "ICLR", Year: "2024"}); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected no cache entry for truncated key, got %v", err)
	}
}

func TestTransformsAndSelectorApply(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference"},
	}}
	source := &fakeSource{papers: map[string][]domain.Paper{
		"ICLR.cc/2024/Conference": {agentPaper("f1"), agentPaper("f2")},
	}}
	store := cache.NewStore(t.TempDir())
	pipeline := NewPipeline(PipelineDeps{
		Resolver:   resolver,
		Source:     source,
		Cache:      store,
		Filters:    filter.Standard([]string{"agent"}),
		Transforms: []extract.Transform{extract.AbsoluteForumURL("https://openreview.net")},
		Selector: func(papers []domain.Paper) []domain.Paper {
			return papers[:1] // top-1 policy
		},
	})

	key := domain.VenueKey{Conference: "ICLR", Year: "2024"}
	if _, err := pipeline.Run(context.Background(), []domain.VenueKey{key}, Options{}); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	cached, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("selector must narrow the set, got %d", len(cached))
	}
	if cached[0].Forum != "https://openreview.net/forum?id=f1" {
		t.Fatalf("transform not applied: %s", cached[0].Forum)
	}
}

type fakeCatalog struct {
	known    map[string]bool
	lookups  int
	recorded []string
}

func (c *fakeCatalog) Known(_ context.Context, forums []string) (map[string]bool, error) {
	c.lookups++
	out := make(map[string]bool, len(forums))
	for _, forum := range forums {
		if c.known[forum] {
			out[forum] = true
		}
	}
	return out, nil
}

func (c *fakeCatalog) Record(_ context.Context, _ domain.VenueKey, papers []domain.Paper) error {
	for _, p := range papers {
		c.recorded = append(c.recorded, p.Forum)
	}
	return nil
}

func TestCatalogRecordsOnlyUnknownPapers(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference"},
	}}
	source := &fakeSource{papers: map[string][]domain.Paper{
		"ICLR.cc/2024/Conference": {agentPaper("f1"), agentPaper("f2")},
	}}
	catalog := &fakeCatalog{known: map[string]bool{"f1": true}}
	pipeline := NewPipeline(PipelineDeps{
		Resolver: resolver,
		Source:   source,
		Cache:    cache.NewStore(t.TempDir()),
		Catalog:  catalog,
		Filters:  filter.Standard([]string{"agent"}),
	})

	key := domain.VenueKey{Conference: "ICLR", Year: "2024"}
	if _, err := pipeline.Run(context.Background(), []domain.VenueKey{key}, Options{}); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if catalog.lookups != 1 {
		t.Fatalf("expected one catalog lookup, got %d", catalog.lookups)
	}
	if len(catalog.recorded) != 1 || catalog.recorded[0] != "f2" {
		t.Fatalf("only unseen papers should be recorded, got %v", catalog.recorded)
	}
}

func TestVenueGroupsRestrictFetch(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{venues: map[string][]string{
		"ICLR/2024": {"ICLR.cc/2024/Conference", "ICLR.cc/2024/Workshop/Agents"},
	}}
	source := &fakeSource{papers: map[string][]domain.Paper{
		"ICLR.cc/2024/Conference":      {agentPaper("f1")},
		"ICLR.cc/2024/Workshop/Agents": {agentPaper("f2")},
	}}
	pipeline, _ := newTestPipeline(t, resolver, source)

	key := domain.VenueKey{Conference: "ICLR", Year: "2024"}
	summary, err := pipeline.Run(context.Background(), []domain.VenueKey{key}, Options{Groups: []string{"conference"}})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.PapersFetched != 1 {
		t.Fatalf("workshop venues must be excluded by the conference group, got %d papers", summary.PapersFetched)
	}
}
