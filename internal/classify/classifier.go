package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
	"github.com/Zhang-Henry/paper-collection/internal/ports"
	"github.com/Zhang-Henry/paper-collection/internal/retry"
)

const systemPrompt = "You are an expert research assistant."

// ParseError preserves the raw model output when the structured response
// could not be validated, so a malformed verdict is never coerced into a
// default relevance decision.
type ParseError struct {
	Raw    string
	Reason error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable evaluation: %v", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

// Options configures a survey relevance classification run.
type Options struct {
	Topic             string
	Description       string
	BatchSize         int
	RequestsPerMinute int
	Policy            retry.Policy
}

// Classifier scores papers against a survey scope via an LLM, one call
// per paper, with transport retries and a bounded reformat retry for
// malformed structured output.
type Classifier struct {
	chat     *ChatClient
	opts     Options
	logger   *slog.Logger
	apiCalls int
}

var _ ports.Classifier = (*Classifier)(nil)

// New wires a chat client into a classifier.
func New(chat *ChatClient, opts Options, logger *slog.Logger) *Classifier {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.Default()
	}
	return &Classifier{chat: chat, opts: opts, logger: logger}
}

// Evaluate classifies a single paper. Transport faults are retried with
// backoff; a malformed response earns exactly one retry with a stricter
// format instruction before the failure is recorded.
func (c *Classifier) Evaluate(ctx context.Context, paper domain.Paper) (domain.Evaluation, error) {
	raw, err := c.complete(ctx, c.prompt(paper))
	if err != nil {
		return domain.Evaluation{}, err
	}

	eval, parseErr := parseEvaluation(raw)
	if parseErr == nil {
		return eval, nil
	}

	c.debug("malformed evaluation, retrying with strict format", "title", paper.Title, "error", parseErr)
	raw2, err := c.complete(ctx, c.prompt(paper)+strictFormatReminder)
	if err != nil {
		return domain.Evaluation{}, err
	}
	eval, parseErr = parseEvaluation(raw2)
	if parseErr != nil {
		return domain.Evaluation{}, &ParseError{Raw: raw2, Reason: parseErr}
	}
	return eval, nil
}

// ClassifyAll processes papers in batches with inter-request pacing sized
// to the configured requests-per-minute budget. Every input paper yields
// exactly one Result, in input order; one paper's failure never blocks
// the rest of its batch.
func (c *Classifier) ClassifyAll(ctx context.Context, papers []domain.Paper) ([]domain.Result, domain.ClassifyStats) {
	var stats domain.ClassifyStats
	results := make([]domain.Result, 0, len(papers))

	callsBefore := c.apiCalls
	delay := c.pacing()
	for start := 0; start < len(papers); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(papers) {
			end = len(papers)
		}

		for _, paper := range papers[start:end] {
			if ctx.Err() != nil {
				// Unwound by cancellation: record the remaining papers as
				// failures so nothing silently drops out of the output.
				for _, rest := range papers[len(results):] {
					results = append(results, domain.Result{Paper: rest, Err: ctx.Err()})
					stats.Failed++
				}
				stats.APICalls = c.apiCalls - callsBefore
				return results, stats
			}

			eval, err := c.Evaluate(ctx, paper)
			result := domain.Result{Paper: paper, Evaluation: eval, Err: err}
			results = append(results, result)
			stats.Processed++
			if err != nil {
				stats.Failed++
				c.warn("paper evaluation failed", "title", paper.Title, "error", err)
			} else if eval.Relevant {
				stats.Relevant++
			}

			if delay > 0 {
				if err := retry.Sleep(ctx, delay); err != nil {
					continue
				}
			}
		}

		c.debug("batch done", "processed", stats.Processed, "relevant", stats.Relevant, "failed", stats.Failed)
	}

	stats.APICalls = c.apiCalls - callsBefore
	return results, stats
}

func (c *Classifier) complete(ctx context.Context, prompt string) (string, error) {
	var raw string
	err := c.opts.Policy.Do(ctx, isTransient, func() error {
		c.apiCalls++
		var callErr error
		raw, callErr = c.chat.Complete(ctx, systemPrompt, prompt)
		return callErr
	})
	return raw, err
}

// pacing derives the inter-request delay from the per-minute budget.
func (c *Classifier) pacing() time.Duration {
	if c.opts.RequestsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(c.opts.RequestsPerMinute)
}

const strictFormatReminder = "\n\nIMPORTANT: Respond with ONLY the raw JSON object. " +
	"No markdown, no code fences, no commentary. All five keys are required."

func (c *Classifier) prompt(p domain.Paper) string {
	return fmt.Sprintf(`You are an expert researcher evaluating papers for inclusion in a survey titled: %q

Survey Scope:
%s

Please evaluate the following paper for relevance to this survey:

Title: %s

Abstract: %s

Keywords: %s

Please respond with ONLY a JSON object in this exact format:
{
    "relevant": true/false,
    "confidence": 0.0-1.0,
    "relevance_score": 1-10,
    "reasoning": "Brief explanation of why this paper is/isn't relevant",
    "key_aspects": ["list", "of", "relevant", "aspects"]
}

Be strict but thorough in your evaluation.`,
		c.opts.Topic, c.opts.Description, p.Title, p.Abstract, strings.Join(p.Keywords, ", "))
}

// parseEvaluation validates the structured response: all five keys must be
// present, confidence in [0,1] and relevance_score in [1,10].
func parseEvaluation(raw string) (domain.Evaluation, error) {
	cleaned := stripFences(strings.TrimSpace(raw))

	var payload struct {
		Relevant       *bool           `json:"relevant"`
		Confidence     *float64        `json:"confidence"`
		RelevanceScore *int            `json:"relevance_score"`
		Reasoning      *string         `json:"reasoning"`
		KeyAspects     json.RawMessage `json:"key_aspects"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return domain.Evaluation{}, fmt.Errorf("decode json: %w", err)
	}
	if payload.Relevant == nil || payload.Confidence == nil || payload.RelevanceScore == nil ||
		payload.Reasoning == nil || payload.KeyAspects == nil {
		return domain.Evaluation{}, fmt.Errorf("response is missing required keys")
	}
	if *payload.Confidence < 0 || *payload.Confidence > 1 {
		return domain.Evaluation{}, fmt.Errorf("confidence %v out of range", *payload.Confidence)
	}
	if *payload.RelevanceScore < 1 || *payload.RelevanceScore > 10 {
		return domain.Evaluation{}, fmt.Errorf("relevance_score %d out of range", *payload.RelevanceScore)
	}

	return domain.Evaluation{
		Relevant:       *payload.Relevant,
		Confidence:     *payload.Confidence,
		RelevanceScore: *payload.RelevanceScore,
		Reasoning:      *payload.Reasoning,
		KeyAspects:     keyAspects(payload.KeyAspects),
	}, nil
}

// keyAspects accepts either a JSON string list or a single string.
func keyAspects(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (c *Classifier) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Classifier) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
