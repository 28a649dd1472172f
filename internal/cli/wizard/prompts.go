// Package wizard provides interactive prompts for CLI commands.
package wizard

import (
	"fmt"
	"strings"

	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/config"
	"github.com/charmbracelet/huh"
)

// PromptGameSetup walks the operator through the settings a new game needs
// and writes the answers into cfg.
func PromptGameSetup(cfg *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Anchor Post ID").
				Description("The post the first round replies under").
				Value(&cfg.Game.AnchorID).
				Validate(validateAnchorID),

			huh.NewInput().
				Title("Hashtag").
				Value(&cfg.Game.Hashtag),

			huh.NewSelect[string]().
				Title("Command Parsing").
				Options(
					huh.NewOption("Multi (every command in the reply, with repeats)", string(command.ParseMulti)),
					huh.NewOption("Legacy (first command only)", string(command.ParseLegacy)),
				).
				Value(&cfg.Game.ParseMode),

			huh.NewSelect[string]().
				Title("Wait Policy").
				Options(
					huh.NewOption("Bounded (fall back to search after max wait)", config.PolicyBounded),
					huh.NewOption("Unbounded (wait for a reply forever)", config.PolicyUnbounded),
				).
				Value(&cfg.Schedule.Policy),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Emulator").
				Options(
					huh.NewOption("Remote execute endpoint", config.EmulatorRemote),
					huh.NewOption("Local key injection", config.EmulatorLocal),
				).
				Value(&cfg.Emulator.Mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Emulator Base URL").
				Value(&cfg.Emulator.BaseURL).
				Validate(required("base URL")),
		).WithHideFunc(func() bool { return cfg.Emulator.Mode != config.EmulatorRemote }),
		huh.NewGroup(
			huh.NewInput().
				Title("Screenshot Directory").
				Value(&cfg.Emulator.ScreenshotDir).
				Validate(required("screenshot directory")),
		).WithHideFunc(func() bool { return cfg.Emulator.Mode != config.EmulatorLocal }),
		huh.NewGroup(
			huh.NewNote().
				Title("Platform Credentials").
				Description("Literal values or Secret Manager paths (projects/PROJECT/secrets/NAME)"),

			huh.NewInput().
				Title("Consumer Key").
				Value(&cfg.Platform.ConsumerKey),

			huh.NewInput().
				Title("Consumer Secret").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Platform.ConsumerSecret),

			huh.NewInput().
				Title("Access Token").
				Value(&cfg.Platform.AccessToken),

			huh.NewInput().
				Title("Access Token Secret").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Platform.AccessTokenSecret),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("prompt cancelled: %w", err)
	}

	cfg.Game.AnchorID = strings.TrimSpace(cfg.Game.AnchorID)
	cfg.Game.Hashtag = normalizeHashtag(cfg.Game.Hashtag)
	return nil
}

// ConfirmOverwrite asks before replacing an existing config file.
func ConfirmOverwrite(path string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Existing Config Found").
				Description(fmt.Sprintf("%s already exists.", path)),

			huh.NewConfirm().
				Title("Overwrite it?").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}

// validateAnchorID accepts numeric post ids.
func validateAnchorID(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("anchor post id is required")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return fmt.Errorf("anchor post id must be numeric")
		}
	}
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

// normalizeHashtag trims the tag and adds a leading '#'. Empty stays empty
// so the default applies.
func normalizeHashtag(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "#") {
		return s
	}
	return "#" + s
}
