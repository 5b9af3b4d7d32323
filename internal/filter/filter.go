package filter

import (
	"strings"

	"github.com/Zhang-Henry/paper-collection/internal/domain"
)

// Field selects which paper text a predicate inspects.
type Field string

const (
	FieldTitle    Field = "title"
	FieldAbstract Field = "abstract"
	FieldKeywords Field = "keywords"
)

// Predicate matches one paper field against a keyword list,
// case-insensitive substring semantics. Keywords are OR-combined.
type Predicate struct {
	Name     string
	Field    Field
	Keywords []string
}

// Matches reports whether any keyword occurs in the predicate's field.
// Missing fields read as empty strings and simply never match.
func (p Predicate) Matches(paper domain.Paper) bool {
	var haystack string
	switch p.Field {
	case FieldTitle:
		haystack = paper.Title
	case FieldAbstract:
		haystack = paper.Abstract
	case FieldKeywords:
		haystack = strings.Join(paper.Keywords, " ")
	default:
		return false
	}

	haystack = strings.ToLower(haystack)
	for _, kw := range p.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// Chain is an ordered registry of named predicates, OR-combined: a paper is
// accepted when at least one predicate matches. Registering a name twice
// replaces the earlier predicate in place.
type Chain struct {
	predicates []Predicate
}

// NewChain builds an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Add registers a predicate under its name.
func (c *Chain) Add(name string, field Field, keywords []string) {
	p := Predicate{Name: name, Field: field, Keywords: keywords}
	for i, existing := range c.predicates {
		if existing.Name == name {
			c.predicates[i] = p
			return
		}
	}
	c.predicates = append(c.predicates, p)
}

// Len returns the number of registered predicates.
func (c *Chain) Len() int {
	return len(c.predicates)
}

// Accepts evaluates every predicate and returns the names of those that
// matched, in registration order. An empty result means rejection.
// Acceptance is independent of registration order; only the iteration
// order of the returned names follows it.
func (c *Chain) Accepts(paper domain.Paper) []string {
	var matched []string
	for _, p := range c.predicates {
		if p.Matches(paper) {
			matched = append(matched, p.Name)
		}
	}
	return matched
}

// Standard registers the three stock predicates (title, keywords, abstract)
// over a shared keyword list, mirroring the usual survey-collection setup.
func Standard(keywords []string) *Chain {
	c := NewChain()
	c.Add("title_filter", FieldTitle, keywords)
	c.Add("keywords_filter", FieldKeywords, keywords)
	c.Add("abstract_filter", FieldAbstract, keywords)
	return c
}
