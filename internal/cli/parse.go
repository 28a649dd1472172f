package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/config"
	"github.com/andywolf/crowdplay/internal/status"
	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse <reply text>",
	Short: "Show how a reply would be played",
	Long: `Parse reply text the way the game does and print the resulting inputs
and the result post that would follow.

Example:
  crowdplay parse "up up a"
  crowdplay parse --mode legacy "double left please"`,
	Args: cobra.MinimumNArgs(1),
	RunE: parseReply,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().String("mode", string(command.ParseMulti), "Parse mode (multi, legacy)")
	parseCmd.Flags().Int("max-actions", command.DefaultMaxActions, "Maximum inputs kept per reply")
	parseCmd.Flags().String("author", "player", "Author shown in the preview")
	parseCmd.Flags().String("hashtag", "", "Hashtag shown in the preview")
	parseCmd.Flags().String("template", "", "Result post template shown in the preview")
}

func parseReply(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	if !command.ValidParseMode(mode) {
		return fmt.Errorf("invalid mode: %s (must be multi or legacy)", mode)
	}
	maxActions, _ := cmd.Flags().GetInt("max-actions")
	if maxActions < 1 {
		return fmt.Errorf("max-actions must be at least 1, got %d", maxActions)
	}
	author, _ := cmd.Flags().GetString("author")
	hashtag, _ := cmd.Flags().GetString("hashtag")
	if hashtag == "" {
		cfg := config.Default()
		hashtag = cfg.Game.Hashtag
	}
	tmpl, _ := cmd.Flags().GetString("template")
	if err := status.ValidateTemplate(tmpl); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	parser := command.Parser{Mode: command.ParseMode(mode), MaxActions: maxActions}
	cand := parser.Parse(command.RawReply{
		ID:     "0",
		Author: author,
		Text:   strings.Join(args, " "),
	})

	printCandidate(cmd.OutOrStdout(), cand, status.Composer{Hashtag: hashtag, Template: tmpl})
	return nil
}

func printCandidate(w io.Writer, cand command.Candidate, comp status.Composer) {
	if !cand.Qualifies() {
		fmt.Fprintln(w, "No recognized inputs; this reply would be skipped.")
		return
	}

	fmt.Fprintf(w, "Inputs:  %s\n", joinActions(cand.Actions))
	if cand.RepeatCount > 1 {
		fmt.Fprintf(w, "Repeat:  x%d\n", cand.RepeatCount)
	}
	fmt.Fprintf(w, "Applied: %s\n\n", joinActions(cand.Expanded()))
	fmt.Fprintln(w, "Result post:")
	fmt.Fprintln(w, comp.Compose(cand))
}

func joinActions(actions []command.Action) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, " ")
}
