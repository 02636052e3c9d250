// Package resolve turns a user-typed server name into concrete target IDs.
// Every lookup-driven operation goes through Resolve so that track, untrack,
// status, mute and player search agree on what a query means.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hamed0406/serverwatch/internal/domain"
)

// DefaultCeiling is the match count at which a query is rejected as too broad.
const DefaultCeiling = 20

var (
	ErrNotFound        = errors.New("no server matches that name")
	ErrNeedsRefinement = errors.New("too many servers match, be more specific")
)

// AmbiguousError lists the candidates a caller can show back to the user.
type AmbiguousError struct {
	Query   string
	Matches []domain.TargetID
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		names[i] = string(m)
	}
	return fmt.Sprintf("%q matches several servers: %s", e.Query, strings.Join(names, ", "))
}

type Kind int

const (
	NotFound Kind = iota
	Unique
	Ambiguous
	NeedsRefinement
)

func (k Kind) String() string {
	switch k {
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	case NeedsRefinement:
		return "needs_refinement"
	default:
		return "not_found"
	}
}

type Result struct {
	Kind    Kind
	Query   string
	Matches []domain.TargetID // sorted; a single entry for Unique
}

// Target returns the resolved ID. It is only meaningful for Unique results.
func (r Result) Target() domain.TargetID {
	if r.Kind != Unique || len(r.Matches) == 0 {
		return ""
	}
	return r.Matches[0]
}

// Err converts a non-unique result into the error a caller should surface.
func (r Result) Err() error {
	switch r.Kind {
	case Unique:
		return nil
	case Ambiguous:
		return &AmbiguousError{Query: r.Query, Matches: r.Matches}
	case NeedsRefinement:
		return ErrNeedsRefinement
	default:
		return ErrNotFound
	}
}

type Resolver struct {
	Ceiling int
}

func New(ceiling int) *Resolver {
	if ceiling < 2 {
		ceiling = DefaultCeiling
	}
	return &Resolver{Ceiling: ceiling}
}

// Resolve matches query as a case-insensitive substring of each candidate.
func (r *Resolver) Resolve(query string, candidates []domain.TargetID) Result {
	res := Result{Query: query}
	trimmed := strings.TrimSpace(query)
	q := strings.ToLower(trimmed)
	if q == "" {
		return res
	}

	var exact []domain.TargetID
	for _, c := range candidates {
		if !strings.Contains(strings.ToLower(string(c)), q) {
			continue
		}
		res.Matches = append(res.Matches, c)
		if string(c) == trimmed {
			exact = append(exact, c)
		}
	}
	sort.Slice(res.Matches, func(i, j int) bool { return res.Matches[i] < res.Matches[j] })

	switch n := len(res.Matches); {
	case n == 0:
		res.Kind = NotFound
	case n == 1:
		res.Kind = Unique
	case n >= r.ceiling():
		res.Kind = NeedsRefinement
	case len(exact) == 1:
		res.Kind = Unique
		res.Matches = exact
	default:
		res.Kind = Ambiguous
	}
	return res
}

func (r *Resolver) ceiling() int {
	if r == nil || r.Ceiling < 2 {
		return DefaultCeiling
	}
	return r.Ceiling
}
