// Package scheduler waits for the reply that drives the next round.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/events"
)

// Default pacing.
const (
	DefaultBoundedInterval   = 60 * time.Second
	DefaultBoundedMaxWait    = 60 * time.Minute
	DefaultUnboundedInterval = 30 * time.Second
)

// ErrFallbackExhausted is returned when the bounded wait ran out and the public
// search fallback produced no candidate either.
var ErrFallbackExhausted = errors.New("no qualifying candidate in fallback search")

// Source fetches raw replies from the platform.
type Source interface {
	FetchMentions(ctx context.Context) ([]command.RawReply, error)
	Search(ctx context.Context, query string) ([]command.RawReply, error)
}

// Policy is either Bounded or Unbounded.
type Policy interface {
	interval() time.Duration
}

// Bounded retries every Interval until MaxWait elapsed, then falls back to the
// public search feed.
type Bounded struct {
	Interval time.Duration
	MaxWait  time.Duration
}

func (b Bounded) interval() time.Duration { return b.Interval }

// Unbounded retries every Interval until a candidate appears.
type Unbounded struct {
	Interval time.Duration
}

func (u Unbounded) interval() time.Duration { return u.Interval }

// Clock abstracts time so tests can drive the wait loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Poll outcomes reported in events.
const (
	OutcomeFound    = "found"
	OutcomeNone     = "none"
	OutcomeError    = "error"
	OutcomeFallback = "fallback"
)

// Scheduler polls the Source until a qualifying candidate appears.
type Scheduler struct {
	source   Source
	policy   Policy
	parser   command.Parser
	selector *command.Selector
	rng      *rand.Rand
	clock    Clock
	logger   *log.Logger
	observe  func(events.ProgressEvent)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithParser sets the reply parser.
func WithParser(p command.Parser) Option {
	return func(s *Scheduler) { s.parser = p }
}

// WithSelector sets the candidate selector.
func WithSelector(sel *command.Selector) Option {
	return func(s *Scheduler) { s.selector = sel }
}

// WithRand sets the source used to pick fallback search keywords.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = rng }
}

// WithClock sets the clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithObserver receives one poll event per attempt.
func WithObserver(fn func(events.ProgressEvent)) Option {
	return func(s *Scheduler) { s.observe = fn }
}

// New creates a Scheduler. Zero intervals in policy fall back to the defaults.
func New(source Source, policy Policy, opts ...Option) *Scheduler {
	s := &Scheduler{
		source: source,
		policy: normalize(policy),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:  RealClock(),
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.selector == nil {
		s.selector = &command.Selector{Rand: s.rng}
	}
	return s
}

func normalize(p Policy) Policy {
	switch v := p.(type) {
	case Bounded:
		if v.Interval <= 0 {
			v.Interval = DefaultBoundedInterval
		}
		if v.MaxWait <= 0 {
			v.MaxWait = DefaultBoundedMaxWait
		}
		return v
	case Unbounded:
		if v.Interval <= 0 {
			v.Interval = DefaultUnboundedInterval
		}
		return v
	default:
		return Unbounded{Interval: DefaultUnboundedInterval}
	}
}

// Policy returns the effective policy.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Next blocks until a qualifying reply to anchor is found, the bounded wait
// budget is spent, or ctx is cancelled. Fetch failures are retried like an
// empty batch. Cancellation returns ctx.Err().
func (s *Scheduler) Next(ctx context.Context, anchor string) (command.Candidate, error) {
	start := s.clock.Now()
	bounded, isBounded := s.policy.(Bounded)

	for attempt := 1; ; attempt++ {
		if cand, ok := s.attempt(ctx, anchor, attempt); ok {
			return cand, nil
		}
		if err := ctx.Err(); err != nil {
			return command.Candidate{}, err
		}

		if isBounded && s.clock.Now().Sub(start) >= bounded.MaxWait {
			s.logger.Printf("No reply to %s after %v, falling back to public search", anchor, bounded.MaxWait)
			return s.fallback(ctx, attempt+1)
		}

		select {
		case <-ctx.Done():
			return command.Candidate{}, ctx.Err()
		case <-s.clock.After(s.policy.interval()):
		}
	}
}

func (s *Scheduler) attempt(ctx context.Context, anchor string, attempt int) (command.Candidate, bool) {
	raws, err := s.source.FetchMentions(ctx)
	if err != nil {
		s.logger.Printf("Warning: fetching mentions failed (attempt %d): %v", attempt, err)
		s.emit(events.ProgressEvent{Attempt: attempt, Anchor: anchor, Outcome: OutcomeError, Error: err.Error()})
		return command.Candidate{}, false
	}

	cand, ok := s.selector.Select(s.parser.ParseAll(raws), anchor)
	ev := events.ProgressEvent{Attempt: attempt, Anchor: anchor, BatchSize: len(raws), Outcome: OutcomeNone}
	if ok {
		ev.Outcome = OutcomeFound
		ev.CandidateID = cand.ID
		ev.Author = cand.Author
	}
	s.emit(ev)
	return cand, ok
}

func (s *Scheduler) fallback(ctx context.Context, attempt int) (command.Candidate, error) {
	keyword := command.RandomKeyword(s.rng)
	raws, err := s.source.Search(ctx, string(keyword))
	if err != nil {
		s.emit(events.ProgressEvent{Attempt: attempt, Outcome: OutcomeFallback, Summary: string(keyword), Error: err.Error()})
		return command.Candidate{}, fmt.Errorf("%w: search %q failed: %v", ErrFallbackExhausted, keyword, err)
	}

	cand, ok := s.selector.SelectAny(s.parser.ParseAll(raws))
	ev := events.ProgressEvent{Attempt: attempt, BatchSize: len(raws), Outcome: OutcomeFallback, Summary: string(keyword)}
	if !ok {
		s.emit(ev)
		return command.Candidate{}, fmt.Errorf("%w: search %q returned %d results", ErrFallbackExhausted, keyword, len(raws))
	}
	ev.CandidateID = cand.ID
	ev.Author = cand.Author
	s.emit(ev)
	return cand, nil
}

func (s *Scheduler) emit(ev events.ProgressEvent) {
	if s.observe == nil {
		return
	}
	ev.Type = events.EventPoll
	ev.Timestamp = s.clock.Now().UTC()
	s.observe(ev)
}
