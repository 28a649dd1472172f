// Package controller runs the crowd-play game loop: wait for a reply to the
// current anchor post, press its buttons on the emulator, save, capture and
// publish the result as the new anchor.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/andywolf/crowdplay/internal/alert"
	"github.com/andywolf/crowdplay/internal/cloud/gcp"
	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/events"
	"github.com/andywolf/crowdplay/internal/scheduler"
	"github.com/andywolf/crowdplay/internal/status"
	"github.com/google/uuid"
)

// Default timings.
const (
	DefaultSettleDelay = 5 * time.Second
	DefaultCooldown    = 5 * time.Minute
)

const (
	// ShutdownTimeout bounds the whole shutdown sequence.
	ShutdownTimeout = 30 * time.Second
	// LogFlushTimeout bounds the log flush step of the shutdown sequence.
	LogFlushTimeout = 3 * time.Second
	// alertTimeout bounds delivery of the failure alert.
	alertTimeout = 10 * time.Second
)

// Emulator is the game being played.
type Emulator interface {
	Apply(ctx context.Context, action command.Action) error
	Persist(ctx context.Context) error
	Load(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// Publisher posts round results.
type Publisher interface {
	UploadMedia(ctx context.Context, image []byte) (string, error)
	PublishReply(ctx context.Context, parentID, text, mediaID string) (string, error)
}

// Platform is the social platform: the reply source and the publisher.
type Platform interface {
	scheduler.Source
	Publisher
}

// Poller finds the next candidate reply to an anchor.
type Poller interface {
	Next(ctx context.Context, anchor string) (command.Candidate, error)
}

// State is carried from one round to the next.
type State struct {
	// Anchor is the id of the most recently published post.
	Anchor string
	// Round is the number of the last completed round.
	Round int
}

// Round records one resolve, apply and publish cycle.
type Round struct {
	ID            string
	Number        int
	AnchorAtStart string
	Candidate     command.Candidate
	Applied       []command.Action
	PostID        string
}

// RoundState names the steps of a round.
type RoundState string

const (
	StateAwaitCommand  RoundState = "AWAIT_COMMAND"
	StateApplyActions  RoundState = "APPLY_ACTIONS"
	StatePersistState  RoundState = "PERSIST_STATE"
	StateCaptureResult RoundState = "CAPTURE_RESULT"
	StatePublish       RoundState = "PUBLISH"
	StateAdvanceAnchor RoundState = "ADVANCE_ANCHOR"
	StateCooldown      RoundState = "COOLDOWN"
)

// Config is the controller's game configuration.
type Config struct {
	SessionID       string
	Anchor          string
	MaxRounds       int
	SettleDelay     time.Duration
	Cooldown        time.Duration
	LoadSaveOnStart bool
}

// ShutdownHook runs during graceful shutdown.
type ShutdownHook func(ctx context.Context) error

// Controller owns the anchor and the round lifecycle.
type Controller struct {
	config    Config
	poller    Poller
	emulator  Emulator
	publisher Publisher
	composer  status.Composer
	clock     scheduler.Clock
	newID     func() string

	state   State
	current Round

	logger          *log.Logger
	cloudLogger     gcp.LoggerInterface
	sinks           []events.Sink
	notifier        alert.Notifier
	metadataUpdater gcp.MetadataUpdater
	secretManager   gcp.SecretFetcher

	shutdownHooks []ShutdownHook
	logFlushFn    func() error
	shutdownOnce  sync.Once
	shutdownCh    chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the operator log.
func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithCloudLogger sets the structured logger.
func WithCloudLogger(l gcp.LoggerInterface) Option {
	return func(c *Controller) {
		c.cloudLogger = l
	}
}

// WithSinks adds progress event sinks.
func WithSinks(sinks ...events.Sink) Option {
	return func(c *Controller) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// WithNotifier sets where the failure alert goes.
func WithNotifier(n alert.Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithComposer sets the status text composer.
func WithComposer(comp status.Composer) Option {
	return func(c *Controller) {
		c.composer = comp
	}
}

// WithClock sets the clock used for settle and cooldown waits.
func WithClock(clock scheduler.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithMetadataUpdater reports round status to instance metadata.
func WithMetadataUpdater(u gcp.MetadataUpdater) Option {
	return func(c *Controller) {
		c.metadataUpdater = u
	}
}

// WithSecretManager hands the secret client to the controller so it is
// closed on shutdown.
func WithSecretManager(s gcp.SecretFetcher) Option {
	return func(c *Controller) {
		c.secretManager = s
	}
}

// WithIDGenerator replaces the round id generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

// New creates a controller. The anchor in cfg seeds the first round.
func New(cfg Config, poller Poller, emu Emulator, pub Publisher, opts ...Option) (*Controller, error) {
	if poller == nil || emu == nil || pub == nil {
		return nil, fmt.Errorf("poller, emulator and publisher are required")
	}
	if cfg.Anchor == "" {
		return nil, fmt.Errorf("an anchor post id is required to start")
	}
	if cfg.MaxRounds < 0 {
		return nil, fmt.Errorf("max rounds must not be negative, got %d", cfg.MaxRounds)
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	c := &Controller{
		config:     cfg,
		poller:     poller,
		emulator:   emu,
		publisher:  pub,
		clock:      scheduler.RealClock(),
		newID:      uuid.NewString,
		state:      State{Anchor: cfg.Anchor},
		logger:     log.New(os.Stdout, "[controller] ", log.LstdFlags),
		notifier:   alert.Nop{},
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the state after the last completed round.
func (c *Controller) State() State {
	return c.state
}

// Run plays rounds until ctx is cancelled, MaxRounds rounds complete, or a
// round fails. A failure is reported to the notifier once and returned.
// Cancellation is a clean stop and returns nil.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := c.setupSignalHandler(ctx)
	defer cancel()
	defer c.gracefulShutdown()

	c.logInfo("Session %s starting at anchor %s", c.config.SessionID, c.state.Anchor)

	if c.config.LoadSaveOnStart {
		c.logInfo("Loading emulator save state")
		if err := c.emulator.Load(ctx); err != nil {
			rerr := newRoundError(ctx, KindLoad, c.state.Round, fmt.Errorf("failed to load save state: %w", err))
			if rerr.Kind == KindCancelled {
				return nil
			}
			return c.fail(rerr)
		}
	}

	completed := 0
	for {
		next, round, err := c.RunRound(ctx, c.state)
		if err != nil {
			kind, _ := KindOf(err)
			if kind == KindCancelled {
				c.logInfo("Shutdown requested during round %d", round.Number)
				return nil
			}
			if IsFatal(kind) {
				return c.fail(err)
			}
			c.logWarning("%v, retrying after cooldown", err)
			c.emit(events.ProgressEvent{Type: events.EventWarning, Error: err.Error(), Anchor: c.state.Anchor})
		} else {
			c.state = next
			completed++

			if c.config.MaxRounds > 0 && completed >= c.config.MaxRounds {
				c.logInfo("Completed %d rounds, stopping", completed)
				return nil
			}
		}

		c.transition(round, StateCooldown, fmt.Sprintf("next round in %s", c.config.Cooldown))
		if err := c.wait(ctx, c.config.Cooldown); err != nil {
			c.logInfo("Shutdown requested during cooldown")
			return nil
		}
	}
}

// fail reports err to the notifier and returns it.
func (c *Controller) fail(err error) error {
	c.logError("%v", err)
	c.emit(events.ProgressEvent{Type: events.EventError, Error: err.Error(), Anchor: c.state.Anchor})

	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	msg := fmt.Sprintf("crowdplay session %s stopped at anchor %s: %v", c.config.SessionID, c.state.Anchor, err)
	if nerr := c.notifier.Notify(ctx, msg); nerr != nil {
		c.logWarning("failed to send alert: %v", nerr)
	}
	return err
}

// RunRound plays one round from st. On success the returned state carries
// the new anchor; on any error it is st unchanged.
func (c *Controller) RunRound(ctx context.Context, st State) (State, Round, error) {
	round := Round{
		ID:            c.newID(),
		Number:        st.Round + 1,
		AnchorAtStart: st.Anchor,
	}
	c.current = round
	if c.cloudLogger != nil {
		c.cloudLogger.SetRound(round.Number)
	}

	c.transition(round, StateAwaitCommand, "waiting for a reply to "+st.Anchor)
	cand, err := c.poller.Next(ctx, st.Anchor)
	if err != nil {
		return st, round, pollError(ctx, round.Number, err)
	}
	round.Candidate = cand
	c.current = round
	c.logInfo("Round %d: @%s sent %v (reply %s)", round.Number, cand.Author, cand.Actions, cand.ID)

	c.transition(round, StateApplyActions, fmt.Sprintf("applying %d inputs", len(cand.Expanded())))
	for _, action := range cand.Expanded() {
		if err := c.emulator.Apply(ctx, action); err != nil {
			return st, round, newRoundError(ctx, KindApply, round.Number, fmt.Errorf("failed to apply %s: %w", action, err))
		}
		round.Applied = append(round.Applied, action)
		if err := c.wait(ctx, c.config.SettleDelay); err != nil {
			return st, round, newRoundError(ctx, KindCancelled, round.Number, err)
		}
	}
	c.current = round

	c.transition(round, StatePersistState, "saving game")
	if err := c.emulator.Persist(ctx); err != nil {
		// The round's value is the post, not the save.
		rerr := newRoundError(ctx, KindPersist, round.Number, err)
		c.logWarning("%v", rerr)
		c.emit(events.ProgressEvent{Type: events.EventWarning, Error: rerr.Error(), Anchor: st.Anchor})
	}

	c.transition(round, StateCaptureResult, "capturing screenshot")
	image, err := c.emulator.Screenshot(ctx)
	if err != nil {
		return st, round, newRoundError(ctx, KindCapture, round.Number, fmt.Errorf("failed to capture screenshot: %w", err))
	}
	mediaID, err := c.publisher.UploadMedia(ctx, image)
	if err != nil {
		return st, round, newRoundError(ctx, KindCapture, round.Number, err)
	}

	text := c.composer.Compose(cand)
	c.transition(round, StatePublish, text)
	postID, err := c.publisher.PublishReply(ctx, st.Anchor, text, mediaID)
	if err != nil {
		return st, round, newRoundError(ctx, KindPublish, round.Number, err)
	}
	round.PostID = postID
	c.current = round

	next := State{Anchor: postID, Round: round.Number}
	c.transition(round, StateAdvanceAnchor, fmt.Sprintf("anchor %s -> %s", st.Anchor, postID))
	c.logInfo("Round %d complete: published %s", round.Number, postID)
	c.reportStatus(ctx, round)

	return next, round, nil
}

// wait blocks for d or until ctx is done.
func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

func (c *Controller) reportStatus(ctx context.Context, round Round) {
	if c.metadataUpdater == nil {
		return
	}
	err := c.metadataUpdater.UpdateStatus(ctx, gcp.RoundStatusMetadata{
		Round:       round.Number,
		MaxRounds:   c.config.MaxRounds,
		Anchor:      round.PostID,
		LastAuthor:  round.Candidate.Author,
		LastActions: actionNames(round.Applied),
		LastPostID:  round.PostID,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logWarning("failed to update instance status: %v", err)
	}
}
