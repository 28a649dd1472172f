package controller

import (
	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/events"
)

// Observe records an event raised outside the controller, such as the
// scheduler's poll events, tagged with the current session and round.
func (c *Controller) Observe(ev events.ProgressEvent) {
	c.emit(ev)
}

// transition emits the event for entering state.
func (c *Controller) transition(round Round, state RoundState, summary string) {
	ev := events.ProgressEvent{
		Type:        events.EventTransition,
		State:       string(state),
		Summary:     summary,
		Anchor:      round.AnchorAtStart,
		CandidateID: round.Candidate.ID,
		Author:      round.Candidate.Author,
		Actions:     actionNames(round.Candidate.Actions),
		PostID:      round.PostID,
	}
	c.emit(ev)
}

func (c *Controller) emit(ev events.ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.clock.Now().UTC()
	}
	ev.SessionID = c.config.SessionID
	if ev.RoundID == "" {
		ev.RoundID = c.current.ID
		ev.Round = c.current.Number
	}
	for _, sink := range c.sinks {
		if err := sink.WriteOne(ev); err != nil {
			c.logger.Printf("Warning: failed to record %s event: %v", ev.Type, err)
		}
	}
}

func actionNames(actions []command.Action) []string {
	if len(actions) == 0 {
		return nil
	}
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return names
}
