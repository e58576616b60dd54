// Package session holds the state of one governance session: the client,
// the project areas and streams fetched so far, and the errors that were
// downgraded along the way.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/leapstack-labs/qmgov/internal/rqm"
)

// ErrNotFound is returned when a project area or stream reference matches
// nothing.
var ErrNotFound = errors.New("not found")

// ErrAmbiguous is returned when a name matches more than one item.
var ErrAmbiguous = errors.New("ambiguous name")

// Client is the subset of rqm.Client a session needs.
type Client interface {
	Authenticate(ctx context.Context) rqm.AuthResult
	FetchProjectAreas(ctx context.Context) ([]rqm.ProjectArea, error)
	FetchStreams(ctx context.Context, areaID string) ([]rqm.Stream, error)
	FetchCount(ctx context.Context, kind rqm.ArtifactKind, areaID, streamID string) (int, error)
	FetchOSLCCount(ctx context.Context, kind rqm.ArtifactKind, areaID string) (int, error)
}

// Incident is a fetch error that was downgraded to an empty value.
type Incident struct {
	Op    string    `json:"op" yaml:"op"`
	Area  string    `json:"area,omitempty" yaml:"area,omitempty"`
	Error string    `json:"error" yaml:"error"`
	At    time.Time `json:"at" yaml:"at"`

	err error
}

// Unwrap returns the original error.
func (i Incident) Unwrap() error { return i.err }

// Message describes the incident in one line. Client errors already start
// with their operation, so Op is only added when missing.
func (i Incident) Message() string {
	msg := i.Error
	if !strings.HasPrefix(msg, i.Op+":") {
		msg = i.Op + ": " + msg
	}
	if i.Area != "" {
		msg = "project area " + i.Area + ": " + msg
	}
	return msg
}

// Session caches what has been fetched from one server. Project areas are
// fetched once; streams are fetched once per area. It is safe for
// concurrent use.
type Session struct {
	ID        string
	StartedAt time.Time

	client Client
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	areas     []rqm.ProjectArea
	hasAreas  bool
	streams   map[string][]rqm.Stream
	incidents []Incident
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the logger used for downgraded errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New starts a session.
func New(client Client, opts ...Option) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		client:  client,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
		streams: make(map[string][]rqm.Stream),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.StartedAt = s.now()
	s.logger = s.logger.With("session", s.ID)
	return s
}

// Now returns the session clock's current time.
func (s *Session) Now() time.Time {
	return s.now()
}

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Authenticate checks the client's credentials. The result is not
// downgraded; callers decide whether to continue.
func (s *Session) Authenticate(ctx context.Context) rqm.AuthResult {
	res := s.client.Authenticate(ctx)
	if !res.OK() {
		s.logger.Warn("credential check failed", "status", res.Status.String(), "code", res.StatusCode, "error", res.Err)
	}
	return res
}

// ProjectAreas returns the project areas visible to the user. A failed
// fetch yields an empty list together with the error, which has already
// been recorded as an incident; it is retried on next call.
func (s *Session) ProjectAreas(ctx context.Context) ([]rqm.ProjectArea, error) {
	s.mu.Lock()
	if s.hasAreas {
		areas := s.areas
		s.mu.Unlock()
		return areas, nil
	}
	s.mu.Unlock()

	areas, err := s.client.FetchProjectAreas(ctx)
	if err != nil {
		s.downgrade("fetch project areas", "", err)
		return []rqm.ProjectArea{}, err
	}

	s.mu.Lock()
	s.areas, s.hasAreas = areas, true
	s.mu.Unlock()
	return areas, nil
}

// Streams returns the streams of a project area, with the same caching and
// downgrade rules as ProjectAreas. An empty list without error means the
// area has no streams.
func (s *Session) Streams(ctx context.Context, areaID string) ([]rqm.Stream, error) {
	s.mu.Lock()
	if streams, ok := s.streams[areaID]; ok {
		s.mu.Unlock()
		return streams, nil
	}
	s.mu.Unlock()

	streams, err := s.client.FetchStreams(ctx, areaID)
	if err != nil {
		s.downgrade("fetch streams", areaID, err)
		return []rqm.Stream{}, err
	}

	s.mu.Lock()
	s.streams[areaID] = streams
	s.mu.Unlock()
	return streams, nil
}

// Count fetches one artifact count. On failure it returns 0 together with
// the error, which has already been logged and recorded as an incident.
func (s *Session) Count(ctx context.Context, kind rqm.ArtifactKind, areaID, streamID string) (int, error) {
	n, err := s.client.FetchCount(ctx, kind, areaID, streamID)
	if err != nil {
		s.downgrade("count "+kind.Plural(), areaID, err)
		return 0, err
	}
	s.logger.Debug("fetched count", "kind", kind.String(), "area", areaID, "stream", streamID, "count", n)
	return n, nil
}

// OSLCCount is Count through the OSLC query service.
func (s *Session) OSLCCount(ctx context.Context, kind rqm.ArtifactKind, areaID string) (int, error) {
	n, err := s.client.FetchOSLCCount(ctx, kind, areaID)
	if err != nil {
		s.downgrade("oslc count "+kind.Plural(), areaID, err)
		return 0, err
	}
	return n, nil
}

// ResolveArea finds a project area by id, or by name ignoring case. A
// failed listing is returned as is, so only a listing that succeeded can
// yield ErrNotFound.
func (s *Session) ResolveArea(ctx context.Context, ref string) (rqm.ProjectArea, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return rqm.ProjectArea{}, errors.New("no project area given")
	}
	areas, err := s.ProjectAreas(ctx)
	if err != nil {
		return rqm.ProjectArea{}, err
	}

	idx, err := resolve(len(areas), ref,
		func(i int) string { return areas[i].ID },
		func(i int) string { return areas[i].Name },
	)
	if err != nil {
		return rqm.ProjectArea{}, errors.Wrapf(err, "project area %q", ref)
	}
	return areas[idx], nil
}

// ResolveStream finds a stream of a project area by OSLC id, or by name
// ignoring case.
func (s *Session) ResolveStream(ctx context.Context, areaID, ref string) (rqm.Stream, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return rqm.Stream{}, errors.New("no stream given")
	}
	streams, err := s.Streams(ctx, areaID)
	if err != nil {
		return rqm.Stream{}, err
	}

	idx, err := resolve(len(streams), ref,
		func(i int) string { return streams[i].OSLCID },
		func(i int) string { return streams[i].Name },
	)
	if err != nil {
		return rqm.Stream{}, errors.Wrapf(err, "stream %q", ref)
	}
	return streams[idx], nil
}

// resolve returns the index of the item whose id equals ref or, failing
// that, the single item whose name matches ref case-insensitively.
func resolve(n int, ref string, id, name func(int) string) (int, error) {
	for i := 0; i < n; i++ {
		if id(i) == ref {
			return i, nil
		}
	}
	found := -1
	for i := 0; i < n; i++ {
		if strings.EqualFold(name(i), ref) {
			if found >= 0 {
				return -1, ErrAmbiguous
			}
			found = i
		}
	}
	if found < 0 {
		return -1, ErrNotFound
	}
	return found, nil
}

// Incidents returns the downgraded errors in the order they occurred.
func (s *Session) Incidents() []Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Incident, len(s.incidents))
	copy(out, s.incidents)
	return out
}

func (s *Session) downgrade(op, areaID string, err error) {
	kind := "error"
	switch {
	case rqm.IsTransport(err):
		kind = "transport"
	case rqm.IsParse(err):
		kind = "parse"
	}
	s.logger.Error("request failed, using empty value", "op", op, "area", areaID, "kind", kind, "error", err)

	s.mu.Lock()
	s.incidents = append(s.incidents, Incident{Op: op, Area: areaID, Error: err.Error(), At: s.now(), err: err})
	s.mu.Unlock()
}
