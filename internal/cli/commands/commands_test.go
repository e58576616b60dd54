package commands

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qmgov/internal/cli/config"
	"github.com/leapstack-labs/qmgov/internal/cli/testutil"
	"github.com/leapstack-labs/qmgov/internal/governance"
	"github.com/leapstack-labs/qmgov/internal/rqm"
	"github.com/leapstack-labs/qmgov/internal/session"
	rqmtest "github.com/leapstack-labs/qmgov/internal/testutil"
)

func TestNewCheckCommand(t *testing.T) {
	cmd := NewCheckCommand()

	assert.Equal(t, "check", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"project-area", "stream", "fail-on-exceed", "no-log"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Equal(t, "p", cmd.Flags().Lookup("project-area").Shorthand)
	assert.Equal(t, "s", cmd.Flags().Lookup("stream").Shorthand)
}

func TestNewCountCommand(t *testing.T) {
	cmd := NewCountCommand()

	assert.Equal(t, "count <kind>", cmd.Use)
	assert.Equal(t, rqm.KindNames(), cmd.ValidArgs)
	assert.NotNil(t, cmd.Flags().Lookup("oslc"))
	require.Error(t, cmd.Args(cmd, nil), "a kind is required")
}

func TestNewStreamsCommand(t *testing.T) {
	cmd := NewStreamsCommand()

	assert.Equal(t, "streams", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("project-area"))
	assert.Nil(t, cmd.Flags().Lookup("stream"), "streams lists every stream of the area")
}

func TestNewInventoryCommand(t *testing.T) {
	cmd := NewInventoryCommand()

	assert.Equal(t, "inventory", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("concurrency"))
}

func TestNewAuthAndAreasCommands(t *testing.T) {
	for _, cmd := range []*cobra.Command{NewAuthCommand(), NewAreasCommand()} {
		assert.NotEmpty(t, cmd.Short, "Short should not be empty")
		assert.NotEmpty(t, cmd.Long, "Long should not be empty")
		require.Error(t, cmd.Args(cmd, []string{"extra"}), "%s takes no arguments", cmd.Use)
	}
}

func TestExitCode(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "plain", err: base, want: ExitError},
		{name: "config", err: WithCode(ExitConfig, base), want: ExitConfig},
		{name: "auth", err: WithCode(ExitAuth, base), want: ExitAuth},
		{name: "wrapped", err: errors.Wrap(WithCode(ExitLimitExceeded, base), "check"), want: ExitLimitExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}

	assert.NoError(t, WithCode(ExitConfig, nil))
	err := WithCode(ExitAuth, base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "boom", err.Error())
}

func TestPromptCredentials(t *testing.T) {
	t.Run("nothing missing", func(t *testing.T) {
		cfg := &config.Config{Username: "u", Password: "p"}
		assert.NoError(t, promptCredentials(strings.NewReader(""), &bytes.Buffer{}, cfg))
	})

	t.Run("not a terminal", func(t *testing.T) {
		cfg := &config.Config{Username: "u"}
		prompt := &bytes.Buffer{}
		err := promptCredentials(strings.NewReader("secret\n"), prompt, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "QMGOV_PASSWORD")
		assert.Empty(t, prompt.String(), "nothing is prompted off a terminal")
		assert.Empty(t, cfg.Password)
	})
}

func TestAuthError(t *testing.T) {
	rejected := authError(rqm.AuthResult{Status: rqm.AuthRejected, Username: "jdoe", Server: "https://rqm", Err: errors.New("401")})
	assert.Contains(t, rejected.Error(), "login failed for jdoe on https://rqm")

	unreachable := authError(rqm.AuthResult{Status: rqm.AuthUnreachable, Err: errors.New("connection refused")})
	assert.Contains(t, unreachable.Error(), "server unreachable")
	assert.Contains(t, unreachable.Error(), "connection refused")
}

// newTestContext returns a command context talking to srv with output
// captured by tr.
func newTestContext(t *testing.T, srv *rqmtest.RQMServer, tr *testutil.TestRenderer, cfg *config.Config) (*CommandContext, *cobra.Command) {
	t.Helper()
	cfg.ServerURL = srv.URL
	cfg.Username, cfg.Password = rqmtest.TestUser, rqmtest.TestPassword

	opts := cfg.ClientOptions()
	opts.Logger = rqmtest.NewTestLogger(t)
	client, err := rqm.New(opts)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	cmd := &cobra.Command{}
	cmd.SetContext(config.WithConfig(context.Background(), cfg))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   opts.Logger,
		Renderer: tr.Renderer,
		Client:   client,
		Session:  session.New(client, session.WithLogger(opts.Logger)),
	}, cmd
}

func TestResolveStream(t *testing.T) {
	srv := rqmtest.NewRQMServer(t)
	braking := rqm.ProjectArea{Name: "Braking Systems", ID: rqmtest.BrakingArea}
	steering := rqm.ProjectArea{Name: "Steering", ID: rqmtest.SteeringArea}

	t.Run("by name", func(t *testing.T) {
		cc, cmd := newTestContext(t, srv, testutil.NewTestRendererMarkdown(), &config.Config{StreamID: "release 2.0"})
		st, err := cc.resolveStream(cmd, braking)
		require.NoError(t, err)
		assert.Equal(t, rqmtest.ReleaseStream, st.OSLCID)
	})

	t.Run("single stream is the default", func(t *testing.T) {
		cc, cmd := newTestContext(t, srv, testutil.NewTestRendererMarkdown(), &config.Config{})
		st, err := cc.resolveStream(cmd, steering)
		require.NoError(t, err)
		assert.Equal(t, rqmtest.SteeringMain, st.OSLCID)
	})

	t.Run("several streams need a choice", func(t *testing.T) {
		cc, cmd := newTestContext(t, srv, testutil.NewTestRendererMarkdown(), &config.Config{})
		_, err := cc.resolveStream(cmd, braking)
		require.Error(t, err)
		assert.Equal(t, ExitConfig, ExitCode(err))
		assert.Contains(t, err.Error(), "Release 2.0")
	})

	t.Run("unknown stream", func(t *testing.T) {
		cc, cmd := newTestContext(t, srv, testutil.NewTestRendererMarkdown(), &config.Config{StreamID: "nope"})
		_, err := cc.resolveStream(cmd, braking)
		require.ErrorIs(t, err, session.ErrNotFound)
		assert.Equal(t, ExitConfig, ExitCode(err))
	})

	for _, ref := range []string{"", "Initial Stream"} {
		t.Run("failed listing with stream "+strconv.Quote(ref), func(t *testing.T) {
			failing := rqmtest.NewRQMServer(t)
			failing.FailNext("streams", 503)
			cc, cmd := newTestContext(t, failing, testutil.NewTestRendererMarkdown(), &config.Config{StreamID: ref})

			st, err := cc.resolveStream(cmd, braking)
			require.Error(t, err)
			assert.True(t, rqm.IsTransport(err))
			assert.Equal(t, ExitError, ExitCode(err))
			assert.NotErrorIs(t, err, session.ErrNotFound)
			assert.Empty(t, st.OSLCID)
		})
	}
}

func TestResolveArea_ListingFailed(t *testing.T) {
	srv := rqmtest.NewRQMServer(t)
	srv.FailNext("areas", 503)
	cc, cmd := newTestContext(t, srv, testutil.NewTestRendererMarkdown(), &config.Config{ProjectAreaID: "Braking Systems"})

	_, err := cc.resolveArea(cmd)
	require.Error(t, err)
	assert.True(t, rqm.IsTransport(err))
	assert.Equal(t, ExitError, ExitCode(err))
	assert.NotContains(t, err.Error(), "not found")
}

func TestResolveArea_NotSelected(t *testing.T) {
	srv := rqmtest.NewRQMServer(t)
	cc, cmd := newTestContext(t, srv, testutil.NewTestRendererMarkdown(), &config.Config{})

	_, err := cc.resolveArea(cmd)
	require.Error(t, err)
	assert.Equal(t, ExitConfig, ExitCode(err))
	assert.Empty(t, srv.Requests(), "nothing is fetched without a selection")
}

func sampleReport() *governance.Report {
	return &governance.Report{
		SessionID:   "0d7c7a36-4a0e-4c4e-9a53-2f0c1c9d3b11",
		ProjectArea: rqm.ProjectArea{Name: "Braking Systems", ID: "_brake"},
		Stream:      rqm.Stream{Name: "Initial Stream", OSLCID: "_init"},
		Results: []governance.Result{
			governance.NewResult(rqm.TestPlan, 150, 200),
			governance.NewResult(rqm.TestCase, 250, 200),
		},
	}
}

func TestRenderReport(t *testing.T) {
	t.Run("markdown", func(t *testing.T) {
		tr := testutil.NewTestRendererMarkdown()
		cc := &CommandContext{Renderer: tr.Renderer}
		require.NoError(t, renderReport(cc, sampleReport()))

		out := tr.Output()
		testutil.AssertValidMarkdown(t, out)
		testutil.AssertNoANSI(t, out)
		testutil.AssertContains(t, out, "# Governance Check")
		testutil.AssertContains(t, out, "- **Project Area**: Braking Systems (_brake)")
		testutil.AssertContains(t, out, "| Test Plan | 150 | 200 | allowed | 50 | 0 |")
		testutil.AssertContains(t, out, "| Test Case | 250 | 200 | exceeded | 0 | 50 |")
		testutil.AssertContains(t, out, "✓ Project is allowed to create test plans.")
		testutil.AssertContains(t, out, "✗ Project is not allowed to create test cases.")
		testutil.AssertContains(t, out, "1 of 2 counts exceed their governance limits.")
	})

	t.Run("csv", func(t *testing.T) {
		tr := testutil.NewTestRenderer("csv", false)
		cc := &CommandContext{Renderer: tr.Renderer}
		require.NoError(t, renderReport(cc, sampleReport()))

		lines := strings.Split(strings.TrimSpace(tr.Output()), "\n")
		assert.Equal(t, []string{
			"Artifact,Count,Limit,Status,Remaining,Exceeded",
			"Test Plan,150,200,allowed,50,0",
			"Test Case,250,200,exceeded,0,50",
		}, lines)
	})

	t.Run("incidents go to stderr", func(t *testing.T) {
		rep := sampleReport()
		rep.Results = rep.Results[:1]
		rep.Results[0].Error = "status 500"
		rep.Incidents = []session.Incident{{Op: "count test plans", Error: "status 500"}}

		tr := testutil.NewTestRendererText()
		cc := &CommandContext{Renderer: tr.Renderer}
		require.NoError(t, renderReport(cc, rep))

		testutil.AssertContains(t, tr.ErrorOutput(), "count test plans: status 500")
		testutil.AssertContains(t, tr.Output(), "but some requests failed")
		testutil.AssertNotContains(t, tr.Output(), "status 500")
	})
}

func TestRenderCount(t *testing.T) {
	area := rqm.ProjectArea{Name: "Braking Systems", ID: "_brake"}

	t.Run("json without limit", func(t *testing.T) {
		tr := testutil.NewTestRendererJSON()
		cc := &CommandContext{Renderer: tr.Renderer}
		require.NoError(t, renderCount(cc, countResult{Kind: rqm.TestScript, Source: "rest", ProjectArea: area, Count: 7}))

		testutil.AssertNoANSI(t, tr.Output())
		assert.JSONEq(t, `{
  "kind": "test-script",
  "source": "rest",
  "project_area": {"name": "Braking Systems", "id": "_brake"},
  "count": 7
}`, tr.Output())
	})

	t.Run("markdown with limit", func(t *testing.T) {
		limit := 5
		v := governance.Evaluate(7, limit)
		tr := testutil.NewTestRendererMarkdown()
		cc := &CommandContext{Renderer: tr.Renderer}
		require.NoError(t, renderCount(cc, countResult{Kind: rqm.TestScript, ProjectArea: area, Count: 7, Limit: &limit, Verdict: &v}))

		out := tr.Output()
		testutil.AssertContains(t, out, "Current Test Script Count: 7")
		testutil.AssertContains(t, out, "Max Test Script Allowed: 5")
		testutil.AssertContains(t, out, "Exceeded Test Script Value: 2")
		testutil.AssertContains(t, out, "✗ Project is not allowed to create test scripts.")
	})
}

func TestRenderInventory(t *testing.T) {
	srv := rqmtest.NewRQMServer(t)
	tr := testutil.NewTestRendererMarkdown()
	cc, cmd := newTestContext(t, srv, tr, &config.Config{Concurrency: 2})

	entries, err := collectInventory(cmd, cc)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NoError(t, renderInventory(cc, entries))

	out := tr.Output()
	testutil.AssertValidMarkdown(t, out)
	testutil.AssertContains(t, out, "# Inventory")
	testutil.AssertContains(t, out, "| Braking Systems | "+rqmtest.BrakingArea+" | Release 2.0 | "+rqmtest.ReleaseStream+" |")
	testutil.AssertContains(t, out, "| Total | 2 areas | 3 streams |  |")
	assert.Empty(t, tr.ErrorOutput())
}
