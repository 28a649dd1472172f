package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/andywolf/crowdplay/internal/scheduler"
)

// Kind classifies why a round stopped.
type Kind string

const (
	// KindTransientFetch is a failed mentions fetch. The scheduler retries these.
	KindTransientFetch Kind = "transient_fetch"
	// KindFallbackExhausted means the public search fallback found nothing.
	KindFallbackExhausted Kind = "fallback_exhausted"
	KindApply             Kind = "apply"
	// KindPersist failures are logged and never stop the round.
	KindPersist Kind = "persist"
	KindCapture Kind = "capture"
	KindPublish Kind = "publish"
	KindLoad    Kind = "load"
	// KindCancelled is a shutdown during a round.
	KindCancelled Kind = "cancelled"
)

// IsFatal reports whether an error of kind k stops Run. Run retries a
// round that failed with a non-fatal kind after the cooldown.
func IsFatal(k Kind) bool {
	switch k {
	case KindTransientFetch, KindPersist, KindCancelled:
		return false
	default:
		return true
	}
}

// RoundError is the error returned by RunRound and Run.
type RoundError struct {
	Kind  Kind
	Round int
	Err   error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %d: %s failed: %v", e.Round, e.Kind, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}

// Is matches another *RoundError of the same kind, so callers can write
// errors.Is(err, &RoundError{Kind: KindPublish}).
func (e *RoundError) Is(target error) bool {
	t, ok := target.(*RoundError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first RoundError in err's chain.
func KindOf(err error) (Kind, bool) {
	var rerr *RoundError
	if errors.As(err, &rerr) {
		return rerr.Kind, true
	}
	return "", false
}

// newRoundError builds a RoundError, turning any failure that happened while
// ctx was being cancelled into KindCancelled.
func newRoundError(ctx context.Context, kind Kind, round int, err error) *RoundError {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		kind = KindCancelled
	}
	return &RoundError{Kind: kind, Round: round, Err: err}
}

// pollError classifies an error returned by the scheduler.
func pollError(ctx context.Context, round int, err error) *RoundError {
	kind := KindTransientFetch
	if errors.Is(err, scheduler.ErrFallbackExhausted) {
		kind = KindFallbackExhausted
	}
	return newRoundError(ctx, kind, round, err)
}
