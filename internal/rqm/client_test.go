package rqm

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/qmgov/internal/testutil"
	"github.com/leapstack-labs/qmgov/pkg/normalize"
)

func newTestClient(t *testing.T, srv *testutil.RQMServer, opts ...func(*Options)) *Client {
	t.Helper()
	o := Options{
		BaseURL:    srv.URL,
		Username:   testutil.TestUser,
		Password:   testutil.TestPassword,
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
		Logger:     testutil.NewTestLogger(t),
	}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := New(o)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "rqm.example.com", "ftp://rqm.example.com", "://bad"} {
		_, err := New(Options{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}

func TestFetchProjectAreas(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	c := newTestClient(t, srv)

	areas, err := c.FetchProjectAreas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ProjectArea{
		{Name: "Braking Systems", ID: testutil.BrakingArea},
		{Name: "Steering", ID: testutil.SteeringArea},
	}, areas)

	reqs := srv.RequestsTo("areas")
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, testutil.TestUser, reqs[0].User)
}

func TestFetchStreams(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	c := newTestClient(t, srv)

	streams, err := c.FetchStreams(context.Background(), testutil.BrakingArea)
	require.NoError(t, err)
	assert.Equal(t, []Stream{
		{Name: "Braking Systems Initial Stream", OSLCID: testutil.InitialStream},
		{Name: "Release 2.0", OSLCID: testutil.ReleaseStream},
	}, streams)

	reqs := srv.RequestsTo("streams")
	require.Len(t, reqs, 1)
	assert.Equal(t, testutil.BrakingArea, reqs[0].Query.Get("projectArea"))
	assert.Equal(t, "100", reqs[0].Query.Get("pageSize"))
	assert.Equal(t, "0", reqs[0].Query.Get("page"))
}

func TestFetchStreams_MissingArea(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	c := newTestClient(t, srv)

	_, err := c.FetchStreams(context.Background(), " ")
	require.Error(t, err)
	assert.Empty(t, srv.Requests(), "no request is made without an area id")
}

func TestFetchCount_AllKinds(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	srv.SetCounts(testutil.BrakingArea, testutil.InitialStream, map[string]int{
		"TP": 150, "TC": 1875, "TS": 12, "TSuite": 3, "TCER": 4312,
	})
	c := newTestClient(t, srv)

	want := map[ArtifactKind]int{
		TestPlan:                150,
		TestCase:                1875,
		TestScript:              12,
		TestSuite:               3,
		TestCaseExecutionRecord: 4312,
	}
	for _, kind := range AllKinds {
		t.Run(kind.String(), func(t *testing.T) {
			n, err := c.FetchCount(context.Background(), kind, testutil.BrakingArea, testutil.InitialStream)
			require.NoError(t, err)
			assert.Equal(t, want[kind], n)
		})
	}
}

func TestFetchCount_AbsentTotalIsZero(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	c := newTestClient(t, srv)

	for _, kind := range AllKinds {
		n, err := c.FetchCount(context.Background(), kind, testutil.SteeringArea, testutil.SteeringMain)
		require.NoError(t, err, kind.String())
		assert.Zero(t, n, kind.String())
	}
}

func TestFetchCount_RequestShapes(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.FetchCount(ctx, TestCase, testutil.BrakingArea, testutil.ReleaseStream)
	require.NoError(t, err)
	_, err = c.FetchCount(ctx, TestCaseExecutionRecord, testutil.BrakingArea, testutil.ReleaseStream)
	require.NoError(t, err)
	_, err = c.FetchCount(ctx, TestPlan, testutil.BrakingArea, testutil.ReleaseStream)
	require.NoError(t, err)

	tc := srv.RequestsTo("TC")
	require.Len(t, tc, 1)
	assert.Equal(t, http.MethodPost, tc[0].Method)
	assert.Equal(t, "application/json", tc[0].Accept)
	assert.Contains(t, tc[0].ContentType, "application/x-www-form-urlencoded")
	assert.Len(t, tc[0].Form, 17)
	assert.Equal(t, testutil.BrakingArea, tc[0].Form.Get("processArea"))
	assert.Equal(t, testutil.ReleaseStream, tc[0].Form.Get("oslc_config.context"))
	assert.Equal(t, "-1", tc[0].Form.Get("resultLimit"))
	assert.Equal(t, "true", tc[0].Form.Get("isWebUI"))

	tcer := srv.RequestsTo("TCER")
	require.Len(t, tcer, 1)
	assert.Equal(t, "text/json", tcer[0].Accept)

	tp := srv.RequestsTo("TP")
	require.Len(t, tp, 1)
	assert.Equal(t, http.MethodGet, tp[0].Method)
	assert.Equal(t, "500", tp[0].Query.Get("pageSize"))
	assert.Equal(t, testutil.ReleaseStream, tp[0].Query.Get("oslc_config.context"))
}

func TestFetchCount_UnknownKind(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	c := newTestClient(t, srv)

	_, err := c.FetchCount(context.Background(), ArtifactKind(99), testutil.BrakingArea, testutil.InitialStream)
	require.Error(t, err)
}

func TestFetchCount_ParseError(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	srv.SetBody("TCER", `{"soapenv:Body": {`)
	c := newTestClient(t, srv)

	_, err := c.FetchCount(context.Background(), TestCaseExecutionRecord, testutil.BrakingArea, testutil.InitialStream)
	require.Error(t, err)
	assert.True(t, IsParse(err))
	assert.False(t, IsTransport(err))
}

func TestFetchCount_MalformedXML(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	srv.SetBody("TP", "<r><totalSize>5</r>")
	c := newTestClient(t, srv)

	n, err := c.FetchCount(context.Background(), TestPlan, testutil.BrakingArea, testutil.InitialStream)
	require.Error(t, err)
	assert.Zero(t, n)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, normalize.ShapeDocument, perr.Shape)
	assert.False(t, IsTransport(err))
}

func TestDo_ZeroMaxRetriesSendsOnce(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	srv.FailNext("areas", 503, 503)
	c := newTestClient(t, srv, func(o *Options) { o.MaxRetries = 0 })

	_, err := c.FetchProjectAreas(context.Background())
	require.Error(t, err)
	assert.Len(t, srv.RequestsTo("areas"), 1)
}

func TestFetchOSLCCount(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	srv.SetCount("oslc-TC", testutil.BrakingArea, "", 977)
	c := newTestClient(t, srv)

	n, err := c.FetchOSLCCount(context.Background(), TestCase, testutil.BrakingArea)
	require.NoError(t, err)
	assert.Equal(t, 977, n)

	_, err = c.FetchOSLCCount(context.Background(), TestPlan, testutil.BrakingArea)
	require.Error(t, err)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	srv.FailNext("areas", http.StatusServiceUnavailable, http.StatusBadGateway)
	c := newTestClient(t, srv)

	areas, err := c.FetchProjectAreas(context.Background())
	require.NoError(t, err)
	assert.Len(t, areas, 2)
	assert.Len(t, srv.RequestsTo("areas"), 3)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	srv.FailNext("areas", 503, 503, 503, 503)
	c := newTestClient(t, srv, func(o *Options) { o.MaxRetries = 1 })

	_, err := c.FetchProjectAreas(context.Background())
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Len(t, srv.RequestsTo("areas"), 2)
}

func TestDo_NoRetryOnClientErrors(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	c := newTestClient(t, srv, func(o *Options) { o.Password = "wrong" })

	_, err := c.FetchProjectAreas(context.Background())
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.False(t, te.Temporary())
	assert.Len(t, srv.RequestsTo("areas"), 1)
}

func TestDo_CanceledContext(t *testing.T) {
	srv := testutil.NewRQMServer(t)
	c := newTestClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchProjectAreas(ctx)
	require.Error(t, err)
}

func TestTLSVerification(t *testing.T) {
	srv := testutil.NewRQMTLSServer(t)

	strict := newTestClient(t, srv, func(o *Options) { o.MaxRetries = 0 })
	_, err := strict.FetchProjectAreas(context.Background())
	require.Error(t, err, "self-signed certificate is rejected by default")
	assert.True(t, IsTransport(err))

	insecure := newTestClient(t, srv, func(o *Options) { o.InsecureSkipVerify = true })
	areas, err := insecure.FetchProjectAreas(context.Background())
	require.NoError(t, err)
	assert.Len(t, areas, 2)
}

func TestTransportError_Temporary(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		e := &TransportError{Op: "op", URL: "u", StatusCode: tt.status}
		assert.Equal(t, tt.want, e.Temporary(), tt.status)
	}
}
