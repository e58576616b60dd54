package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// Test credentials accepted by RQMServer.
const (
	TestUser     = "tester"
	TestPassword = "s3cret"
)

// Fixture identifiers served by NewRQMServer.
const (
	BrakingArea   = "_Lx7fEHaQEeeHQLB3qMZX2g"
	SteeringArea  = "_a1b2c3d4EeeHQLB3qMZX2g"
	InitialStream = "_N4VyNHaQEeeHQLB3qMZX2g"
	ReleaseStream = "_R2D2NHaQEeeHQLB3qMZX2g"
	SteeringMain  = "_S7eeRiNgEeeHQLB3qMZX2g"
)

// Service path suffixes mapped to the governance code of the count they serve.
var countServices = map[string]string{
	"ITestPlanRestService/pagedSearchResult":                "TP",
	"ITestCaseRestService/pagedSearchResult":                "TC",
	"IExecutionScriptSearchRestService/pagedSearchResult":   "TS",
	"ITestSuiteRestService/pagedSearchResult":               "TSuite",
	"ITestcaseExecutionRecordRestService/pagedSearchResult": "TCER",
	"IWebUIInitializerRestService/initializationData":       "areas",
	"IConfigurationManagementRestService/pagedSearchResult": "streams",
	"resources/com.ibm.rqm.planning.VersionedTestCase":      "oslc-TC",
}

// RecordedRequest is a request observed by RQMServer.
type RecordedRequest struct {
	Method      string
	Path        string
	Query       url.Values
	Form        url.Values
	Accept      string
	ContentType string
	User        string
}

type fakeArea struct{ name, id string }
type fakeStream struct{ name, id string }

// RQMServer is an in-process stand-in for the RQM services the client uses.
type RQMServer struct {
	*httptest.Server

	mu       sync.Mutex
	areas    []fakeArea
	streams  map[string][]fakeStream
	counts   map[string]int
	bodies   map[string]string
	failures map[string][]int
	requests []RecordedRequest
}

// NewRQMServer starts a server with two project areas and a few streams.
// Braking Systems has two streams; Steering has one. No counts are set.
func NewRQMServer(t testing.TB) *RQMServer {
	t.Helper()
	s := newRQMServer()
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// NewRQMTLSServer is NewRQMServer over TLS with a self-signed certificate.
func NewRQMTLSServer(t testing.TB) *RQMServer {
	t.Helper()
	s := newRQMServer()
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func newRQMServer() *RQMServer {
	return &RQMServer{
		areas: []fakeArea{
			{name: "Braking Systems", id: BrakingArea},
			{name: "Steering", id: SteeringArea},
		},
		streams: map[string][]fakeStream{
			BrakingArea: {
				{name: "Braking Systems Initial Stream", id: InitialStream},
				{name: "Release 2.0", id: ReleaseStream},
			},
			SteeringArea: {
				{name: "Steering Main", id: SteeringMain},
			},
		},
		counts:   map[string]int{},
		bodies:   map[string]string{},
		failures: map[string][]int{},
	}
}

// SetCount makes the count service for code ("TP", "TC", "TS", "TSuite",
// "TCER" or "oslc-TC") report n for the area and stream.
func (s *RQMServer) SetCount(code, areaID, streamID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[countKey(code, areaID, streamID)] = n
}

// SetCounts sets the counts of several codes for one area and stream.
func (s *RQMServer) SetCounts(areaID, streamID string, counts map[string]int) {
	for code, n := range counts {
		s.SetCount(code, areaID, streamID, n)
	}
}

// SetBody replaces the response of the service identified by code with a
// raw body.
func (s *RQMServer) SetBody(code, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[code] = body
}

// FailNext makes the next requests to the service identified by code fail
// with the given statuses, one per request. Use "auth" for the /qm root.
func (s *RQMServer) FailNext(code string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[code] = append(s.failures[code], statuses...)
}

// Requests returns the requests received so far.
func (s *RQMServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the requests received by the service identified by code.
func (s *RQMServer) RequestsTo(code string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range s.Requests() {
		if serviceCode(r.Path) == code {
			out = append(out, r)
		}
	}
	return out
}

func countKey(code, areaID, streamID string) string {
	return code + "|" + areaID + "|" + streamID
}

func serviceCode(path string) string {
	if path == "/qm" || path == "/qm/" {
		return "auth"
	}
	for suffix, code := range countServices {
		if strings.HasSuffix(path, suffix) {
			return code
		}
	}
	return ""
}

func (s *RQMServer) handle(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	user, pass, _ := r.BasicAuth()

	rec := RecordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.Query(),
		Form:        r.PostForm,
		Accept:      r.Header.Get("Accept"),
		ContentType: r.Header.Get("Content-Type"),
		User:        user,
	}
	code := serviceCode(r.URL.Path)

	s.mu.Lock()
	s.requests = append(s.requests, rec)
	var fail int
	if queue := s.failures[code]; len(queue) > 0 {
		fail, s.failures[code] = queue[0], queue[1:]
	}
	body, override := s.bodies[code]
	s.mu.Unlock()

	if user != TestUser || pass != TestPassword {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if fail != 0 {
		http.Error(w, http.StatusText(fail), fail)
		return
	}
	if code == "" {
		http.NotFound(w, r)
		return
	}
	if override {
		_, _ = fmt.Fprint(w, body)
		return
	}

	area := r.Form.Get("processArea")
	stream := r.Form.Get("oslc_config.context")

	switch code {
	case "auth":
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html><body>Quality Management</body></html>")
	case "areas":
		s.writeAreas(w)
	case "streams":
		s.writeStreams(w, r.Form.Get("projectArea"))
	case "TP", "TS", "TSuite":
		n, ok := s.count(code, area, stream)
		writeXMLCount(w, n, ok)
	case "TC", "TCER":
		n, ok := s.count(code, area, stream)
		writeEnvelopeCount(w, n, ok)
	case "oslc-TC":
		area = oslcArea(r.URL.Path)
		n, ok := s.count(code, area, "")
		w.Header().Set("Content-Type", "application/rdf+xml")
		if !ok {
			n = 0
		}
		_, _ = fmt.Fprintf(w, `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns:oslc="http://open-services.net/ns/core#">
  <oslc:ResponseInfo><oslc:totalCount>%d</oslc:totalCount></oslc:ResponseInfo>
</rdf:RDF>`, n)
	}
}

func (s *RQMServer) count(code, area, stream string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.counts[countKey(code, area, stream)]
	return n, ok
}

func (s *RQMServer) writeAreas(w http.ResponseWriter) {
	s.mu.Lock()
	items := make([]map[string]any, len(s.areas))
	for i, a := range s.areas {
		items[i] = map[string]any{"name": a.name, "itemId": a.id, "archived": false}
	}
	s.mu.Unlock()

	doc := map[string]any{
		"soapenv:Body": map[string]any{
			"response": map[string]any{
				"returnValue": map[string]any{
					"value": map[string]any{
						"com.ibm.rqm.planning.service.permissionsWebUIInitializer": map[string]any{
							"userProjectAreas": items,
						},
					},
				},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (s *RQMServer) writeStreams(w http.ResponseWriter, areaID string) {
	s.mu.Lock()
	streams := s.streams[areaID]
	s.mu.Unlock()

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><response>`)
	fmt.Fprintf(&b, "<resultSetSize>%d</resultSetSize><totalSize>%d</totalSize>", len(streams), len(streams))
	for _, st := range streams {
		fmt.Fprintf(&b, "<results><itemId>%s</itemId><name>%s</name></results>", st.id, st.name)
	}
	b.WriteString("</response>")

	w.Header().Set("Content-Type", "application/xml")
	_, _ = fmt.Fprint(w, b.String())
}

func writeXMLCount(w http.ResponseWriter, n int, ok bool) {
	w.Header().Set("Content-Type", "application/xml")
	if !ok {
		_, _ = fmt.Fprint(w, `<?xml version="1.0"?><response><pageSize>500</pageSize></response>`)
		return
	}
	_, _ = fmt.Fprintf(w, `<?xml version="1.0"?><response><pageSize>500</pageSize><totalSize>%d</totalSize></response>`, n)
}

func writeEnvelopeCount(w http.ResponseWriter, n int, ok bool) {
	value := map[string]any{"pageSize": 50}
	if ok {
		value["totalSize"] = n
	}
	doc := map[string]any{
		"soapenv:Body": map[string]any{
			"response": map[string]any{
				"returnValue": map[string]any{"value": value},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func oslcArea(path string) string {
	const prefix = "/qm/oslc_qm/contexts/"
	rest := strings.TrimPrefix(path, prefix)
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	area, err := url.PathUnescape(rest)
	if err != nil {
		return rest
	}
	return area
}
