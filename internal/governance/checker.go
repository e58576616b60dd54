package governance

import (
	"context"
	"log/slog"
	"time"

	"github.com/leapstack-labs/qmgov/internal/rqm"
	"github.com/leapstack-labs/qmgov/internal/session"
)

// Counter fetches one artifact count. A failed fetch returns 0 and the
// error; session.Session satisfies it.
type Counter interface {
	Count(ctx context.Context, kind rqm.ArtifactKind, areaID, streamID string) (int, error)
}

// Report is the outcome of one governance check.
type Report struct {
	SessionID   string             `json:"session_id" yaml:"session_id"`
	GeneratedAt time.Time          `json:"generated_at" yaml:"generated_at"`
	Server      string             `json:"server,omitempty" yaml:"server,omitempty"`
	ProjectArea rqm.ProjectArea    `json:"project_area" yaml:"project_area"`
	Stream      rqm.Stream         `json:"stream" yaml:"stream"`
	Results     []Result           `json:"results" yaml:"results"`
	Incidents   []session.Incident `json:"incidents,omitempty" yaml:"incidents,omitempty"`
}

// AllWithinLimit reports whether every result is within its limit.
func (r *Report) AllWithinLimit() bool {
	for _, res := range r.Results {
		if !res.Verdict.WithinLimit {
			return false
		}
	}
	return true
}

// Exceeded returns the results over their limit.
func (r *Report) Exceeded() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Verdict.WithinLimit {
			out = append(out, res)
		}
	}
	return out
}

// Incomplete reports whether any count was downgraded after a failed fetch
// or any other request of the session failed.
func (r *Report) Incomplete() bool {
	if len(r.Incidents) > 0 {
		return true
	}
	for _, res := range r.Results {
		if res.Error != "" {
			return true
		}
	}
	return false
}

// Result returns the result for kind.
func (r *Report) Result(kind rqm.ArtifactKind) (Result, bool) {
	for _, res := range r.Results {
		if res.Kind == kind {
			return res, true
		}
	}
	return Result{}, false
}

// Checker evaluates the configured limits for one project area and stream.
type Checker struct {
	counter Counter
	limits  Limits
	logger  *slog.Logger
}

// NewChecker returns a Checker. A nil logger discards output.
func NewChecker(counter Counter, limits Limits, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Checker{counter: counter, limits: limits, logger: logger}
}

// Check fetches every configured count in report order, one request at a
// time, and evaluates each against its limit. A failed fetch is evaluated
// as 0 and noted on its result; the remaining kinds are still checked.
// Check stops early only when ctx is canceled.
func (c *Checker) Check(ctx context.Context, area rqm.ProjectArea, stream rqm.Stream) ([]Result, error) {
	kinds := c.limits.Kinds()
	results := make([]Result, 0, len(kinds))

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		limit, _ := c.limits.Limit(kind)

		count, err := c.counter.Count(ctx, kind, area.ID, stream.OSLCID)
		res := NewResult(kind, count, limit)
		if err != nil {
			res = NewResult(kind, 0, limit)
			res.Error = err.Error()
		}

		c.logger.Info("evaluated limit",
			"kind", kind.String(),
			"count", res.Count,
			"limit", res.Limit,
			"within_limit", res.Verdict.WithinLimit,
			"delta", res.Verdict.Delta,
		)
		results = append(results, res)
	}
	return results, nil
}
