// Package governance evaluates artifact counts against configured limits.
package governance

import (
	"fmt"

	"github.com/leapstack-labs/qmgov/internal/rqm"
)

// Verdict is the outcome of comparing a count to its limit.
type Verdict struct {
	WithinLimit bool `json:"within_limit" yaml:"within_limit"`
	// Delta is the remaining headroom when within the limit and the excess
	// otherwise.
	Delta int `json:"delta" yaml:"delta"`
}

// Evaluate applies the governance rule: a count equal to the limit is still
// within it.
func Evaluate(count, limit int) Verdict {
	delta := limit - count
	if delta < 0 {
		delta = -delta
	}
	return Verdict{WithinLimit: count <= limit, Delta: delta}
}

// Remaining returns the headroom, or 0 when the limit is exceeded.
func (v Verdict) Remaining() int {
	if v.WithinLimit {
		return v.Delta
	}
	return 0
}

// Exceeded returns the excess, or 0 when within the limit.
func (v Verdict) Exceeded() int {
	if v.WithinLimit {
		return 0
	}
	return v.Delta
}

// Limits maps each artifact kind to its maximum allowed count.
type Limits map[rqm.ArtifactKind]int

// Limit returns the limit of kind and whether one is configured.
func (l Limits) Limit(kind rqm.ArtifactKind) (int, bool) {
	n, ok := l[kind]
	return n, ok
}

// Kinds returns the configured kinds in report order.
func (l Limits) Kinds() []rqm.ArtifactKind {
	var kinds []rqm.ArtifactKind
	for _, k := range rqm.AllKinds {
		if _, ok := l[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Result is the evaluation of one artifact kind.
type Result struct {
	Kind    rqm.ArtifactKind `json:"kind" yaml:"kind"`
	Count   int              `json:"count" yaml:"count"`
	Limit   int              `json:"limit" yaml:"limit"`
	Verdict Verdict          `json:"verdict" yaml:"verdict"`
	// Error is set when the count could not be fetched and 0 was used.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewResult evaluates count against limit.
func NewResult(kind rqm.ArtifactKind, count, limit int) Result {
	return Result{Kind: kind, Count: count, Limit: limit, Verdict: Evaluate(count, limit)}
}

// Status is "allowed" or "exceeded".
func (r Result) Status() string {
	if r.Verdict.WithinLimit {
		return "allowed"
	}
	return "exceeded"
}

// Summary is the one-line permission statement for the result.
func (r Result) Summary() string {
	if r.Verdict.WithinLimit {
		return fmt.Sprintf("Project is allowed to create %s.", r.Kind.Plural())
	}
	return fmt.Sprintf("Project is not allowed to create %s.", r.Kind.Plural())
}

// Messages are the lines written to the session log for the result.
func (r Result) Messages() []string {
	noun := r.Kind.Noun()
	lines := []string{
		r.Summary(),
		fmt.Sprintf("Current %s Count: %d", noun, r.Count),
		fmt.Sprintf("Max %s Allowed: %d", noun, r.Limit),
	}
	if r.Verdict.WithinLimit {
		lines = append(lines, fmt.Sprintf("Remaining %ss: %d", noun, r.Verdict.Delta))
	} else {
		lines = append(lines, fmt.Sprintf("Exceeded %s Value: %d", noun, r.Verdict.Delta))
	}
	if r.Error != "" {
		lines = append(lines, fmt.Sprintf("%s count unavailable, 0 used: %s", noun, r.Error))
	}
	return lines
}
