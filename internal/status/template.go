package status

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultTemplate renders the standard result post.
const DefaultTemplate = "@{{author}} {{pressed}} {{permalink}} {{hashtag}}\n" + callToAction

// placeholderPattern matches {{field}} placeholders.
var placeholderPattern = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// requiredFields must appear in every result post template so the post
// always credits the player and links the reply it played.
var requiredFields = []string{"author", "permalink", "hashtag"}

// Fields lists the placeholders a template may use.
func Fields() []string {
	return []string{"author", "pressed", "permalink", "hashtag", "actions", "count"}
}

// ValidateTemplate checks that tmpl uses only known fields and includes the
// required ones. An empty template selects DefaultTemplate and is valid.
func ValidateTemplate(tmpl string) error {
	if tmpl == "" {
		return nil
	}

	known := make(map[string]bool)
	for _, f := range Fields() {
		known[f] = true
	}
	used := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		if !known[m[1]] {
			return fmt.Errorf("unknown template field {{%s}} (known: %s)", m[1], strings.Join(Fields(), ", "))
		}
		used[m[1]] = true
	}

	var missing []string
	for _, f := range requiredFields {
		if !used[f] {
			missing = append(missing, "{{"+f+"}}")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("template must include %s", strings.Join(missing, ", "))
	}
	return nil
}

// render substitutes {{field}} placeholders. Unknown fields are left as-is.
func render(tmpl string, fields map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[2 : len(match)-2]
		if v, ok := fields[name]; ok {
			return v
		}
		return match
	})
}
