package core

import (
	"time"
)

// DefaultIngestTimeout bounds one batch transaction.
const DefaultIngestTimeout = 2 * time.Minute

// Service provides ingestion, audit and operator operations over a Store.
type Service struct {
	store         Store
	resolver      *resolver
	limiter       *IngestLimiter
	metrics       MetricsRecorder
	ingestTimeout time.Duration
	location      *time.Location
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIngestLimits bounds concurrent batches and how long a batch waits for
// a slot.
func WithIngestLimits(maxConcurrent int, maxWait time.Duration) Option {
	return func(s *Service) {
		s.limiter = NewIngestLimiter(maxConcurrent, maxWait)
	}
}

// WithIngestTimeout bounds one batch transaction. Zero disables the timeout.
func WithIngestTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.ingestTimeout = d
	}
}

// WithMetrics sets the recorder notified of batch and repair outcomes.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock replaces time.Now for created_at/updated_at stamping.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone that defines calendar days for day filters and
// TodaySummary. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		metrics:       nopRecorder{},
		ingestTimeout: DefaultIngestTimeout,
		location:      time.Local,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewIngestLimiter(DefaultMaxConcurrentIngests, DefaultMaxIngestWait)
	}

	now := s.now
	s.now = func() time.Time { return now().UTC() }
	s.resolver = &resolver{now: s.now}
	return s
}

// Limiter returns the ingest limiter, used by shutdown to wait for
// in-flight batches and by health checks.
func (s *Service) Limiter() *IngestLimiter {
	return s.limiter
}

// Location returns the zone that defines calendar days.
func (s *Service) Location() *time.Location {
	return s.location
}
