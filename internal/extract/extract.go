package extract

import (
	"strings"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
)

// ListSeparator joins multi-valued fields when flattened to one CSV cell.
const ListSeparator = "; "

// DefaultFields is the emitted column set for cache files and the
// aggregated output.
var DefaultFields = []string{
	"title", "authors", "authorids", "abstract", "keywords",
	"forum", "pdf", "venue", "year", "match",
}

// Transform is a pure adjustment applied to a paper after filtering and
// before extraction. Transforms must be total: absent optional fields are
// left as empty values, never an error.
type Transform func(domain.Paper) domain.Paper

// Selector narrows the filtered paper set before emission. A nil selector
// means identity (keep everything).
type Selector func([]domain.Paper) []domain.Paper

// AbsoluteForumURL rewrites the opaque forum id into a browsable URL.
func AbsoluteForumURL(base string) Transform {
	return func(p domain.Paper) domain.Paper {
		if p.Forum != "" && !strings.HasPrefix(p.Forum, "http") {
			p.Forum = strings.TrimSuffix(base, "/") + "/forum?id=" + p.Forum
		}
		return p
	}
}

// AbsolutePDFURL prefixes relative pdf paths with the site base URL.
func AbsolutePDFURL(base string) Transform {
	return func(p domain.Paper) domain.Paper {
		if p.PDF != "" && !strings.HasPrefix(p.PDF, "http") {
			p.PDF = strings.TrimSuffix(base, "/") + p.PDF
		}
		return p
	}
}

// Apply runs transforms left to right over each paper.
func Apply(papers []domain.Paper, transforms []Transform) []domain.Paper {
	if len(transforms) == 0 {
		return papers
	}
	out := make([]domain.Paper, len(papers))
	for i, p := range papers {
		for _, fn := range transforms {
			p = fn(p)
		}
		out[i] = p
	}
	return out
}

// Extractor projects papers into a declarative row shape. Unknown field
// names resolve to empty cells rather than failing.
type Extractor struct {
	fields []string
}

// New builds an extractor over the given ordered field names; empty input
// falls back to DefaultFields.
func New(fields []string) *Extractor {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &Extractor{fields: append([]string(nil), fields...)}
}

// Header returns the output column names in order.
func (e *Extractor) Header() []string {
	return append([]string(nil), e.fields...)
}

// Project maps one paper to a row aligned with Header.
func (e *Extractor) Project(p domain.Paper) []string {
	row := make([]string, len(e.fields))
	for i, field := range e.fields {
		row[i] = fieldValue(p, field)
	}
	return row
}

func fieldValue(p domain.Paper, field string) string {
	switch field {
	case "title":
		return p.Title
	case "abstract":
		return p.Abstract
	case "keywords":
		return strings.Join(p.Keywords, ListSeparator)
	case "authors":
		return strings.Join(p.Authors, ListSeparator)
	case "authorids":
		return strings.Join(p.AuthorIDs, ListSeparator)
	case "forum":
		return p.Forum
	case "pdf":
		return p.PDF
	case "venue":
		return p.Venue
	case "year":
		return p.Year
	case "match":
		return strings.Join(p.Match, ListSeparator)
	default:
		return ""
	}
}

// SplitList is the inverse of the list flattening above.
func SplitList(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	parts := strings.Split(cell, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
