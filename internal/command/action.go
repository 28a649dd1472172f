// Package command turns social replies into game actions and picks the reply
// that drives the next round.
package command

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode"
)

// Action is one recognized game input or emulator control command.
type Action string

// Player actions, in vocabulary order.
const (
	ActionStart  Action = "START"
	ActionSelect Action = "SELECT"
	ActionUp     Action = "UP"
	ActionDown   Action = "DOWN"
	ActionLeft   Action = "LEFT"
	ActionRight  Action = "RIGHT"
	ActionA      Action = "A"
	ActionB      Action = "B"
	ActionL      Action = "L"
	ActionR      Action = "R"
)

// Control commands understood by the emulator endpoint. They are never parsed
// from reply text.
const (
	ActionScreenshot   Action = "SCREENSHOT"
	ActionLoadSave     Action = "LOAD_SAVE"
	ActionDownloadSave Action = "DOWNLOAD_SAVE"
)

// Control keys used by the local key-injection emulator.
const (
	ActionPrint     Action = "PRINT"
	ActionPause     Action = "PAUSE"
	ActionSaveState Action = "SAVE_STATE"
)

// PlayerActions returns the player actions in vocabulary order.
func PlayerActions() []Action {
	return []Action{
		ActionStart,
		ActionSelect,
		ActionUp,
		ActionDown,
		ActionLeft,
		ActionRight,
		ActionA,
		ActionB,
		ActionL,
		ActionR,
	}
}

// IsPlayerAction reports whether a is part of the player vocabulary.
func IsPlayerAction(a Action) bool {
	_, ok := Lookup(string(a))
	return ok
}

// Lookup resolves a single token to a player action. Matching is
// case-insensitive and whole-token.
func Lookup(code string) (Action, bool) {
	upper := strings.ToUpper(strings.TrimSpace(code))
	for _, a := range PlayerActions() {
		if string(a) == upper {
			return a, true
		}
	}
	return "", false
}

// Tokenize splits text on every non-letter rune and upper-cases the pieces.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for i, f := range fields {
		fields[i] = strings.ToUpper(f)
	}
	return fields
}

// RandomKeyword picks a player action uniformly, used to seed public searches.
func RandomKeyword(rng *rand.Rand) Action {
	actions := PlayerActions()
	return actions[rng.Intn(len(actions))]
}

// Vocabulary maps every action it knows to an emulator-side input code.
type Vocabulary struct {
	Name  string
	codes map[Action]string
}

// NewVocabulary builds a vocabulary from an explicit code table.
func NewVocabulary(name string, codes map[Action]string) *Vocabulary {
	copied := make(map[Action]string, len(codes))
	for a, c := range codes {
		copied[a] = c
	}
	return &Vocabulary{Name: name, codes: copied}
}

// RemoteVocabulary is the execute-endpoint mapping: the code is the action name.
func RemoteVocabulary() *Vocabulary {
	codes := make(map[Action]string)
	for _, a := range PlayerActions() {
		codes[a] = string(a)
	}
	for _, a := range []Action{ActionScreenshot, ActionLoadSave, ActionDownloadSave} {
		codes[a] = string(a)
	}
	return NewVocabulary("remote", codes)
}

// Code returns the input code for a.
func (v *Vocabulary) Code(a Action) (string, bool) {
	c, ok := v.codes[a]
	return c, ok && c != ""
}

// Validate checks that every required action has a mapping.
func (v *Vocabulary) Validate(required ...Action) error {
	if len(required) == 0 {
		required = PlayerActions()
	}
	var missing []string
	for _, a := range required {
		if _, ok := v.Code(a); !ok {
			missing = append(missing, string(a))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s vocabulary has no code for: %s", v.Name, strings.Join(missing, ", "))
	}
	return nil
}
