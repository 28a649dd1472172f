// Package status builds the text posted after each round.
package status

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/andywolf/crowdplay/internal/command"
)

// DefaultHashtag is appended to every result post.
const DefaultHashtag = "#CrowdPlaysPokemon"

// callToAction asks the audience for the next input.
const callToAction = "Reply with your next move!"

// Composer renders result posts. The zero value uses DefaultTemplate and
// DefaultHashtag.
type Composer struct {
	Hashtag string
	// Template overrides DefaultTemplate; see ValidateTemplate.
	Template string
}

// Compose renders the result text for a candidate whose actions were applied.
func (c Composer) Compose(cand command.Candidate) string {
	tmpl := c.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}

	expanded := cand.Expanded()
	names := make([]string, len(expanded))
	for i, a := range expanded {
		names[i] = string(a)
	}

	return render(tmpl, map[string]string{
		"author":    cand.Author,
		"pressed":   pressed(cand),
		"permalink": cand.Permalink,
		"hashtag":   c.hashtag(),
		"actions":   strings.Join(names, " "),
		"count":     strconv.Itoa(len(expanded)),
	})
}

func pressed(cand command.Candidate) string {
	if len(cand.Actions) == 0 {
		return "pressed nothing!"
	}
	first := cand.Actions[0]
	if len(cand.Actions) > 1 {
		others := len(cand.Actions) - 1
		noun := "inputs"
		if others == 1 {
			noun = "input"
		}
		return fmt.Sprintf("pressed %s and other %d %s!", first, others, noun)
	}
	if cand.RepeatCount > 1 {
		return fmt.Sprintf("pressed %s %d times!", first, cand.RepeatCount)
	}
	return fmt.Sprintf("pressed %s!", first)
}

func (c Composer) hashtag() string {
	tag := strings.TrimSpace(c.Hashtag)
	if tag == "" {
		return DefaultHashtag
	}
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return tag
}
