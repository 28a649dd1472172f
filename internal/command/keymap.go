package command

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyboardVocabulary is the default key-injection mapping, in X keysym names.
// Face buttons and controls sit on the numeric keypad.
func KeyboardVocabulary() *Vocabulary {
	return NewVocabulary("keyboard", map[Action]string{
		ActionUp:        "Up",
		ActionDown:      "Down",
		ActionLeft:      "Left",
		ActionRight:     "Right",
		ActionA:         "KP_1",
		ActionB:         "KP_2",
		ActionL:         "KP_4",
		ActionR:         "KP_5",
		ActionStart:     "KP_3",
		ActionSelect:    "KP_6",
		ActionPrint:     "KP_7",
		ActionPause:     "KP_8",
		ActionSaveState: "KP_9",
	})
}

// KeyboardControls lists the control keys a keyboard vocabulary must map.
func KeyboardControls() []Action {
	return []Action{ActionPrint, ActionPause, ActionSaveState}
}

// keyMapFile is the on-disk key map layout:
//
//	keys:
//	  UP: Up
//	  A: KP_1
type keyMapFile struct {
	Keys map[string]string `yaml:"keys"`
}

// LoadKeyMap reads a YAML key map and overlays it on the default keyboard
// vocabulary. The result must still map every player action and control key.
func LoadKeyMap(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key map %s: %w", path, err)
	}
	return ParseKeyMap(data)
}

// ParseKeyMap parses YAML key map content.
func ParseKeyMap(data []byte) (*Vocabulary, error) {
	var file keyMapFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse key map: %w", err)
	}

	vocab := KeyboardVocabulary()
	known := append(PlayerActions(), KeyboardControls()...)
	for name, key := range file.Keys {
		action := Action(strings.ToUpper(strings.TrimSpace(name)))
		if !containsAction(known, action) {
			return nil, fmt.Errorf("unknown action in key map: %q", name)
		}
		vocab.codes[action] = strings.TrimSpace(key)
	}

	if err := vocab.Validate(known...); err != nil {
		return nil, err
	}
	return vocab, nil
}

func containsAction(actions []Action, a Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}
