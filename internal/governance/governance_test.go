package governance

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qmgov/internal/rqm"
	"github.com/leapstack-labs/qmgov/internal/session"
	"github.com/leapstack-labs/qmgov/internal/testutil"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		count  int
		limit  int
		within bool
		delta  int
	}{
		{name: "below limit", count: 150, limit: 200, within: true, delta: 50},
		{name: "above limit", count: 250, limit: 200, within: false, delta: 50},
		{name: "at limit", count: 200, limit: 200, within: true, delta: 0},
		{name: "zero count", count: 0, limit: 200, within: true, delta: 200},
		{name: "zero limit", count: 1, limit: 0, within: false, delta: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.count, tt.limit)
			assert.Equal(t, tt.within, v.WithinLimit)
			assert.Equal(t, tt.delta, v.Delta)
		})
	}
}

func TestEvaluate_Properties(t *testing.T) {
	for count := 0; count <= 60; count += 3 {
		for limit := 0; limit <= 60; limit += 4 {
			v := Evaluate(count, limit)
			assert.Equal(t, count <= limit, v.WithinLimit)
			want := limit - count
			if want < 0 {
				want = -want
			}
			assert.Equal(t, want, v.Delta)
			assert.Equal(t, v.Delta, v.Remaining()+v.Exceeded())
		}
	}
}

func TestResult_Messages(t *testing.T) {
	allowed := NewResult(rqm.TestPlan, 150, 200)
	assert.Equal(t, []string{
		"Project is allowed to create test plans.",
		"Current Test Plan Count: 150",
		"Max Test Plan Allowed: 200",
		"Remaining Test Plans: 50",
	}, allowed.Messages())
	assert.Equal(t, "allowed", allowed.Status())

	exceeded := NewResult(rqm.TestScript, 250, 200)
	assert.Equal(t, []string{
		"Project is not allowed to create test scripts.",
		"Current Test Script Count: 250",
		"Max Test Script Allowed: 200",
		"Exceeded Test Script Value: 50",
	}, exceeded.Messages())
	assert.Equal(t, "exceeded", exceeded.Status())

	failed := NewResult(rqm.TestSuite, 0, 10)
	failed.Error = "timeout"
	msgs := failed.Messages()
	assert.Equal(t, "Test Suite count unavailable, 0 used: timeout", msgs[len(msgs)-1])
}

func TestLimits_Kinds(t *testing.T) {
	l := Limits{rqm.TestCaseExecutionRecord: 1, rqm.TestPlan: 2}
	assert.Equal(t, []rqm.ArtifactKind{rqm.TestPlan, rqm.TestCaseExecutionRecord}, l.Kinds())

	_, ok := l.Limit(rqm.TestCase)
	assert.False(t, ok)
}

type stubCounter struct {
	counts map[rqm.ArtifactKind]int
	errs   map[rqm.ArtifactKind]error
	calls  []rqm.ArtifactKind
}

func (s *stubCounter) Count(_ context.Context, kind rqm.ArtifactKind, _, _ string) (int, error) {
	s.calls = append(s.calls, kind)
	if err := s.errs[kind]; err != nil {
		return 0, err
	}
	return s.counts[kind], nil
}

func allLimits(n int) Limits {
	l := Limits{}
	for _, k := range rqm.AllKinds {
		l[k] = n
	}
	return l
}

func TestChecker_Sequential(t *testing.T) {
	counter := &stubCounter{
		counts: map[rqm.ArtifactKind]int{rqm.TestPlan: 150, rqm.TestCase: 250},
		errs:   map[rqm.ArtifactKind]error{rqm.TestScript: errors.New("connection reset")},
	}
	c := NewChecker(counter, allLimits(200), testutil.NewTestLogger(t))

	results, err := c.Check(context.Background(), rqm.ProjectArea{ID: "_a"}, rqm.Stream{OSLCID: "_s"})
	require.NoError(t, err)
	assert.Equal(t, rqm.AllKinds, counter.calls, "kinds are fetched in report order")
	require.Len(t, results, 5)

	report := &Report{Results: results}
	assert.False(t, report.AllWithinLimit())
	assert.True(t, report.Incomplete())

	tp, _ := report.Result(rqm.TestPlan)
	assert.Equal(t, Verdict{WithinLimit: true, Delta: 50}, tp.Verdict)

	exceeded := report.Exceeded()
	require.Len(t, exceeded, 1)
	assert.Equal(t, rqm.TestCase, exceeded[0].Kind)
	assert.Equal(t, 50, exceeded[0].Verdict.Delta)

	ts, _ := report.Result(rqm.TestScript)
	assert.Equal(t, 0, ts.Count)
	assert.Equal(t, "connection reset", ts.Error)
	assert.True(t, ts.Verdict.WithinLimit)
	assert.Equal(t, 200, ts.Verdict.Delta)
}

func TestChecker_CanceledContext(t *testing.T) {
	counter := &stubCounter{}
	c := NewChecker(counter, allLimits(1), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := c.Check(ctx, rqm.ProjectArea{}, rqm.Stream{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Empty(t, counter.calls)
}

func TestChecker_AgainstServer(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	srv.SetCounts(testutil.BrakingArea, testutil.InitialStream, map[string]int{
		"TP": 150, "TC": 250, "TSuite": 7, "TCER": 100,
	})
	srv.FailNext("TCER", 500, 500, 500)

	client, err := rqm.New(rqm.Options{
		BaseURL:    srv.URL,
		Username:   testutil.TestUser,
		Password:   testutil.TestPassword,
		MaxRetries: 2,
		RetryWait:  1,
	})
	require.NoError(t, err)
	sess := session.New(client, session.WithLogger(testutil.NewTestLogger(t)))

	c := NewChecker(sess, allLimits(200), testutil.NewTestLogger(t))
	results, err := c.Check(context.Background(),
		rqm.ProjectArea{Name: "Braking Systems", ID: testutil.BrakingArea},
		rqm.Stream{Name: "Initial", OSLCID: testutil.InitialStream},
	)
	require.NoError(t, err)

	report := &Report{Results: results, Incidents: sess.Incidents()}
	got := map[rqm.ArtifactKind]int{}
	for _, r := range report.Results {
		got[r.Kind] = r.Count
	}
	assert.Equal(t, map[rqm.ArtifactKind]int{
		rqm.TestPlan:                150,
		rqm.TestCase:                250,
		rqm.TestScript:              0,
		rqm.TestSuite:               7,
		rqm.TestCaseExecutionRecord: 0,
	}, got, "missing totalSize and failed fetches count as zero")

	ts, _ := report.Result(rqm.TestScript)
	assert.Empty(t, ts.Error, "absent totalSize is not an error")
	assert.Equal(t, 200, ts.Verdict.Delta)

	tcer, _ := report.Result(rqm.TestCaseExecutionRecord)
	assert.NotEmpty(t, tcer.Error)
	require.Len(t, report.Incidents, 1)
	assert.True(t, report.Incomplete())
	assert.Len(t, report.Exceeded(), 1)
}

func TestReport_Incomplete(t *testing.T) {
	within := []Result{NewResult(rqm.TestPlan, 150, 200)}
	failed := NewResult(rqm.TestCase, 0, 200)
	failed.Error = "count test cases: timeout"

	tests := []struct {
		name   string
		report Report
		want   bool
	}{
		{name: "all fetched", report: Report{Results: within}},
		{name: "failed count", report: Report{Results: append([]Result{failed}, within...)}, want: true},
		{
			name: "failed stream listing",
			report: Report{
				Results:   within,
				Incidents: []session.Incident{{Op: "fetch streams", Area: "_brake", Error: "fetch streams: 503"}},
			},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.Incomplete())
			assert.True(t, tt.report.AllWithinLimit())
		})
	}
}
