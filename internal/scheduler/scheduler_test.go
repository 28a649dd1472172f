package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/events"
)

// fakeClock advances by the requested duration every time After is called.
type fakeClock struct {
	now    time.Time
	waits  []time.Duration
	onWait func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	if c.onWait != nil {
		c.onWait()
	}
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// fakeSource returns the batches in order, repeating the last one, and the
// search results for any query.
type fakeSource struct {
	batches   [][]command.RawReply
	errs      []error
	search    []command.RawReply
	searchErr error

	fetches  int
	searches []string
}

func (f *fakeSource) FetchMentions(_ context.Context) ([]command.RawReply, error) {
	i := f.fetches
	f.fetches++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	if i >= len(f.batches) {
		i = len(f.batches) - 1
	}
	return f.batches[i], nil
}

func (f *fakeSource) Search(_ context.Context, query string) ([]command.RawReply, error) {
	f.searches = append(f.searches, query)
	return f.search, f.searchErr
}

func reply(id, parent, text string) command.RawReply {
	return command.RawReply{ID: id, Author: "user" + id, Text: text, InReplyToID: parent}
}

func newTestScheduler(src Source, policy Policy, clock Clock, rec *events.Recorder) *Scheduler {
	opts := []Option{WithClock(clock), WithRand(rand.New(rand.NewSource(3)))}
	if rec != nil {
		opts = append(opts, WithObserver(func(ev events.ProgressEvent) { _ = rec.WriteOne(ev) }))
	}
	return New(src, policy, opts...)
}

func TestNext_FoundImmediately(t *testing.T) {
	src := &fakeSource{batches: [][]command.RawReply{{
		reply("101", "100", "UP!"),
		reply("102", "999", "DOWN"),
	}}}
	clock := newFakeClock()
	rec := &events.Recorder{}

	cand, err := newTestScheduler(src, Unbounded{}, clock, rec).Next(context.Background(), "100")
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if cand.ID != "101" {
		t.Errorf("Next() = %s, want 101", cand.ID)
	}
	if len(clock.waits) != 0 {
		t.Errorf("waited %v, want no waits", clock.waits)
	}
	if len(rec.Events) != 1 || rec.Events[0].Outcome != OutcomeFound || rec.Events[0].BatchSize != 2 {
		t.Errorf("poll events = %+v", rec.Events)
	}
}

func TestNext_UnboundedRetriesThroughErrorsAndEmptyBatches(t *testing.T) {
	src := &fakeSource{
		errs: []error{errors.New("rate limited"), nil, nil},
		batches: [][]command.RawReply{
			nil,
			{reply("5", "100", "no commands here")},
			{reply("6", "100", "go left")},
		},
	}
	clock := newFakeClock()
	rec := &events.Recorder{}

	cand, err := newTestScheduler(src, Unbounded{}, clock, rec).Next(context.Background(), "100")
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if cand.ID != "6" {
		t.Errorf("Next() = %s, want 6", cand.ID)
	}
	if src.fetches != 3 {
		t.Errorf("fetches = %d, want 3", src.fetches)
	}
	for _, w := range clock.waits {
		if w != DefaultUnboundedInterval {
			t.Errorf("wait = %v, want %v", w, DefaultUnboundedInterval)
		}
	}
	outcomes := []string{rec.Events[0].Outcome, rec.Events[1].Outcome, rec.Events[2].Outcome}
	want := []string{OutcomeError, OutcomeNone, OutcomeFound}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("outcome[%d] = %s, want %s", i, outcomes[i], want[i])
		}
	}
	if len(src.searches) != 0 {
		t.Errorf("unbounded policy searched %v", src.searches)
	}
}

func TestNext_BoundedFallsBackToSearch(t *testing.T) {
	src := &fakeSource{
		batches: [][]command.RawReply{{reply("7", "55", "UP")}},
		search:  []command.RawReply{reply("900", "", "nothing"), reply("901", "", "press START now")},
	}
	clock := newFakeClock()
	policy := Bounded{Interval: time.Minute, MaxWait: 10 * time.Minute}

	cand, err := newTestScheduler(src, policy, clock, nil).Next(context.Background(), "100")
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if cand.ID != "901" {
		t.Errorf("Next() = %s, want fallback candidate 901", cand.ID)
	}
	if src.fetches != 11 {
		t.Errorf("fetches = %d, want 11 (t=0..10m)", src.fetches)
	}
	if len(src.searches) != 1 {
		t.Fatalf("searches = %v, want one", src.searches)
	}
	if _, ok := command.Lookup(src.searches[0]); !ok {
		t.Errorf("search query %q is not a vocabulary keyword", src.searches[0])
	}
}

func TestNext_BoundedFallbackExhausted(t *testing.T) {
	clock := newFakeClock()
	policy := Bounded{Interval: time.Minute, MaxWait: 2 * time.Minute}

	t.Run("empty search", func(t *testing.T) {
		src := &fakeSource{search: []command.RawReply{reply("1", "", "hello")}}
		_, err := newTestScheduler(src, policy, clock, nil).Next(context.Background(), "100")
		if !errors.Is(err, ErrFallbackExhausted) {
			t.Errorf("Next() error = %v, want ErrFallbackExhausted", err)
		}
	})

	t.Run("search error", func(t *testing.T) {
		src := &fakeSource{searchErr: errors.New("503")}
		_, err := newTestScheduler(src, policy, clock, nil).Next(context.Background(), "100")
		if !errors.Is(err, ErrFallbackExhausted) {
			t.Errorf("Next() error = %v, want ErrFallbackExhausted", err)
		}
	})
}

func TestNext_CancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{}
	clock := newFakeClock()
	clock.onWait = cancel

	_, err := newTestScheduler(src, Unbounded{Interval: time.Second}, clock, nil).Next(ctx, "100")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestNext_RealClockCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s := New(&fakeSource{}, Unbounded{Interval: time.Hour})
	start := time.Now()
	_, err := s.Next(ctx, "100")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Next() did not return promptly after cancellation")
	}
}

func TestNew_NormalizesPolicy(t *testing.T) {
	tests := []struct {
		name string
		in   Policy
		want Policy
	}{
		{"bounded defaults", Bounded{}, Bounded{Interval: DefaultBoundedInterval, MaxWait: DefaultBoundedMaxWait}},
		{"unbounded defaults", Unbounded{}, Unbounded{Interval: DefaultUnboundedInterval}},
		{"nil policy", nil, Unbounded{Interval: DefaultUnboundedInterval}},
		{"explicit kept", Bounded{Interval: time.Second, MaxWait: time.Minute}, Bounded{Interval: time.Second, MaxWait: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(&fakeSource{}, tt.in).Policy(); got != tt.want {
				t.Errorf("Policy() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
