package command

import (
	"fmt"
	"strings"
)

// DefaultMaxActions caps the number of actions one reply can contribute.
const DefaultMaxActions = 10

// ParseMode selects how reply text becomes actions.
type ParseMode string

const (
	// ParseMulti keeps every matching token in source order.
	ParseMulti ParseMode = "multi"
	// ParseLegacy keeps the first matching token and honors the
	// "double"/"triple" modifiers as a repeat count.
	ParseLegacy ParseMode = "legacy"
)

// ValidParseMode reports whether m is a known parse mode.
func ValidParseMode(m string) bool {
	return m == string(ParseMulti) || m == string(ParseLegacy)
}

// RawReply is a reply record as returned by the platform.
type RawReply struct {
	ID          string
	Author      string
	Text        string
	InReplyToID string // empty when the post is not a reply
	Favorited   bool
	Retweeted   bool
}

// Candidate is a normalized reply carrying zero or more actions.
type Candidate struct {
	ID          string
	Author      string
	Permalink   string
	ParentID    string
	Text        string
	Actions     []Action
	RepeatCount int
}

// Qualifies reports whether the candidate carries at least one action.
func (c Candidate) Qualifies() bool {
	return len(c.Actions) > 0
}

// Expanded returns the actions with each entry repeated RepeatCount times.
func (c Candidate) Expanded() []Action {
	repeat := c.RepeatCount
	if repeat < 1 {
		repeat = 1
	}
	out := make([]Action, 0, len(c.Actions)*repeat)
	for _, a := range c.Actions {
		for i := 0; i < repeat; i++ {
			out = append(out, a)
		}
	}
	return out
}

// Permalink builds the public URL of a post from its author and id.
func Permalink(author, id string) string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", author, id)
}

// Parser normalizes raw replies. The zero value parses in multi mode with the
// default action cap.
type Parser struct {
	Mode       ParseMode
	MaxActions int
}

// Parse converts one raw reply into a candidate. It never fails: text without
// recognized actions yields a candidate with no actions.
func (p Parser) Parse(raw RawReply) Candidate {
	c := Candidate{
		ID:          raw.ID,
		Author:      raw.Author,
		Permalink:   Permalink(raw.Author, raw.ID),
		ParentID:    raw.InReplyToID,
		Text:        raw.Text,
		RepeatCount: 1,
	}

	if p.Mode == ParseLegacy {
		if a, ok := firstAction(raw.Text); ok {
			c.Actions = []Action{a}
			c.RepeatCount = repeatModifier(raw.Text)
		}
		return c
	}

	c.Actions = allActions(raw.Text, p.maxActions())
	return c
}

// ParseAll parses a batch, preserving order.
func (p Parser) ParseAll(raws []RawReply) []Candidate {
	out := make([]Candidate, 0, len(raws))
	for _, r := range raws {
		out = append(out, p.Parse(r))
	}
	return out
}

func (p Parser) maxActions() int {
	if p.MaxActions <= 0 {
		return DefaultMaxActions
	}
	return p.MaxActions
}

func allActions(text string, limit int) []Action {
	var actions []Action
	for _, tok := range Tokenize(text) {
		if a, ok := Lookup(tok); ok {
			actions = append(actions, a)
			if len(actions) == limit {
				break
			}
		}
	}
	return actions
}

func firstAction(text string) (Action, bool) {
	for _, tok := range Tokenize(text) {
		if a, ok := Lookup(tok); ok {
			return a, true
		}
	}
	return "", false
}

// repeatModifier reads "triple" before "double" so that text mentioning both
// takes the larger count.
func repeatModifier(text string) int {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "triple"):
		return 3
	case strings.Contains(lower, "double"):
		return 2
	default:
		return 1
	}
}
