package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/andywolf/crowdplay/internal/config"
	"github.com/andywolf/crowdplay/internal/events"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recorded round progress",
	Long: `Show the progress events recorded by 'crowdplay run'.

Example:
  crowdplay events
  crowdplay events --round 12
  crowdplay events --type error,warning`,
	Args: cobra.NoArgs,
	RunE: showEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().String("file", "", "Events file (default is <events.dir>/rounds.jsonl)")
	eventsCmd.Flags().Int("round", 0, "Only show events for this round")
	eventsCmd.Flags().String("type", "", "Comma-separated event types to show (transition, poll, warning, error)")
	eventsCmd.Flags().Int("tail", 0, "Number of events to show from the end (0 shows all)")
}

func showEvents(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		path = filepath.Join(cfg.Events.Dir, events.DefaultFilename)
	}

	typeStr, _ := cmd.Flags().GetString("type")
	types, err := parseEventTypes(typeStr)
	if err != nil {
		return err
	}
	round, _ := cmd.Flags().GetInt("round")
	tail, _ := cmd.Flags().GetInt("tail")

	all, err := events.ReadEvents(path)
	if err != nil {
		return err
	}

	shown := events.FilterByRound(events.FilterByType(all, types...), round)
	if tail > 0 && len(shown) > tail {
		shown = shown[len(shown)-tail:]
	}

	out := cmd.OutOrStdout()
	for _, ev := range shown {
		formatEvent(out, ev)
	}
	return nil
}

func parseEventTypes(s string) ([]events.EventType, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var types []events.EventType
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !events.IsValidEventType(part) {
			return nil, fmt.Errorf("invalid event type: %s", part)
		}
		types = append(types, events.EventType(part))
	}
	return types, nil
}

// formatEvent prints one event as a single line.
func formatEvent(w io.Writer, ev events.ProgressEvent) {
	var b strings.Builder
	if !ev.Timestamp.IsZero() {
		fmt.Fprintf(&b, "[%s] ", ev.Timestamp.Format("15:04:05"))
	}
	fmt.Fprintf(&b, "round %d ", ev.Round)

	switch ev.Type {
	case events.EventTransition:
		fmt.Fprintf(&b, "%s", ev.State)
	case events.EventPoll:
		fmt.Fprintf(&b, "[POLL #%d] %d replies, %s", ev.Attempt, ev.BatchSize, ev.Outcome)
	case events.EventWarning:
		b.WriteString("[WARN]")
	case events.EventError:
		b.WriteString("[ERROR]")
	default:
		fmt.Fprintf(&b, "[%s]", ev.Type)
	}

	if ev.Summary != "" {
		fmt.Fprintf(&b, " %s", ev.Summary)
	}
	if len(ev.Actions) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ev.Actions, " "))
	}
	if ev.PostID != "" {
		fmt.Fprintf(&b, " post=%s", ev.PostID)
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, ": %s", ev.Error)
	}

	fmt.Fprintln(w, b.String())
}
