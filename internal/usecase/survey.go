package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Zhang-Henry/paper-collection/internal/classify"
	"github.com/Zhang-Henry/paper-collection/internal/domain"
	"github.com/Zhang-Henry/paper-collection/internal/ports"
)

// SurveyDeps wires the classification stage.
type SurveyDeps struct {
	Cache      ports.PaperCache
	Classifier ports.Classifier
	Logger     *slog.Logger
}

// SurveyOptions carries the per-run knobs of a classification pass.
type SurveyOptions struct {
	SampleCap    int
	AllEvaluated string
	Relevant     string
}

// Survey runs the second-stage relevance classification over every cached
// record set and emits the two result CSVs.
type Survey struct {
	cache      ports.PaperCache
	classifier ports.Classifier
	logger     *slog.Logger
}

// NewSurvey constructs the classification use case.
func NewSurvey(deps SurveyDeps) *Survey {
	return &Survey{cache: deps.Cache, classifier: deps.Classifier, logger: deps.Logger}
}

// Run loads all cached papers, classifies them and writes the outputs.
// Papers missing title or abstract are skipped up front: the model has
// nothing to judge them by.
func (s *Survey) Run(ctx context.Context, opts SurveyOptions) (domain.ClassifyStats, error) {
	var stats domain.ClassifyStats

	keys, err := s.cache.Keys()
	if err != nil {
		return stats, fmt.Errorf("list cached keys: %w", err)
	}
	if len(keys) == 0 {
		return stats, fmt.Errorf("no cached papers to classify")
	}

	var papers []domain.Paper
	skipped := 0
	for _, key := range keys {
		set, err := s.cache.Load(key)
		if err != nil {
			s.warn("cached set unreadable, skipping", "key", key.String(), "error", err)
			continue
		}
		for _, paper := range set {
			if paper.Title == "" || paper.Abstract == "" {
				skipped++
				continue
			}
			papers = append(papers, paper)
		}
	}

	if opts.SampleCap > 0 && len(papers) > opts.SampleCap {
		papers = papers[:opts.SampleCap]
	}

	s.info("classification starting", "papers", len(papers), "skipped_incomplete", skipped)
	if len(papers) == 0 {
		return stats, fmt.Errorf("no classifiable papers found")
	}

	results, stats := s.classifier.ClassifyAll(ctx, papers)

	if err := classify.WriteResults(opts.AllEvaluated, opts.Relevant, results); err != nil {
		return stats, err
	}

	s.info("classification complete",
		"processed", stats.Processed,
		"relevant", stats.Relevant,
		"failed", stats.Failed,
		"api_calls", stats.APICalls,
	)
	return stats, nil
}

func (s *Survey) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Survey) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
