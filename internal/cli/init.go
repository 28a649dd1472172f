package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andywolf/crowdplay/internal/cli/wizard"
	"github.com/andywolf/crowdplay/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const configFileName = ".crowdplay.yaml"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize game configuration",
	Long: `Initialize crowdplay configuration in the current directory.

This creates a .crowdplay.yaml file with sensible defaults that you can customize.

Example:
  crowdplay init --anchor 1234567890
  crowdplay init --interactive`,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("anchor", "", "Post ID the first round replies under")
	initCmd.Flags().String("emulator", config.EmulatorRemote, "Emulator mode (remote, local)")
	initCmd.Flags().String("emulator-url", "", "Remote emulator base URL")
	initCmd.Flags().String("screenshot-dir", "", "Local emulator capture directory")
	initCmd.Flags().String("hashtag", "", "Hashtag appended to result posts")
	initCmd.Flags().BoolP("interactive", "i", false, "Prompt for each setting")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

func initProject(cmd *cobra.Command, args []string) error {
	configPath := filepath.Join(".", configFileName)

	force, _ := cmd.Flags().GetBool("force")
	interactive, _ := cmd.Flags().GetBool("interactive")
	if _, err := os.Stat(configPath); err == nil && !force {
		if !interactive {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
		ok, err := wizard.ConfirmOverwrite(configPath)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	cfg := &config.Config{}
	cfg.Game.AnchorID, _ = cmd.Flags().GetString("anchor")
	cfg.Emulator.Mode, _ = cmd.Flags().GetString("emulator")
	cfg.Emulator.BaseURL, _ = cmd.Flags().GetString("emulator-url")
	cfg.Emulator.ScreenshotDir, _ = cmd.Flags().GetString("screenshot-dir")
	cfg.Game.Hashtag, _ = cmd.Flags().GetString("hashtag")
	seedProjectConfig(cfg)

	if interactive {
		if err := wizard.PromptGameSetup(cfg); err != nil {
			return err
		}
		seedProjectConfig(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := writeProjectConfig(configPath, cfg); err != nil {
		return err
	}

	printNextSteps(cmd.OutOrStdout(), configPath, cfg)
	return nil
}

// seedProjectConfig fills defaults and secret placeholders for whatever the
// operator left blank.
func seedProjectConfig(cfg *config.Config) {
	config.ApplyDefaults(cfg)

	placeholders := []struct {
		value *string
		name  string
	}{
		{&cfg.Platform.ConsumerKey, "consumer-key"},
		{&cfg.Platform.ConsumerSecret, "consumer-secret"},
		{&cfg.Platform.AccessToken, "access-token"},
		{&cfg.Platform.AccessTokenSecret, "access-token-secret"},
	}
	for _, p := range placeholders {
		if *p.value == "" {
			*p.value = fmt.Sprintf("projects/YOUR_PROJECT/secrets/crowdplay-%s", p.name)
		}
	}
}

func writeProjectConfig(path string, cfg *config.Config) error {
	out := cfg.Persistable()
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# crowdplay configuration
# Credentials may be literal values or Secret Manager paths.
# Every key can be overridden by a CROWDPLAY_ environment variable,
# e.g. CROWDPLAY_GAME_ANCHOR_ID.

`

	if err := os.WriteFile(path, append([]byte(header), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func printNextSteps(w io.Writer, path string, cfg *config.Config) {
	fmt.Fprintf(w, "Created %s\n\n", path)
	fmt.Fprintln(w, "Next steps:")
	step := 1
	if cfg.Game.AnchorID == "" {
		fmt.Fprintf(w, "  %d. Set game.anchor_id to the post the first round replies under\n", step)
		step++
	}
	fmt.Fprintf(w, "  %d. Replace the platform credential placeholders\n", step)
	step++
	if cfg.Emulator.Mode == config.EmulatorLocal {
		fmt.Fprintf(w, "  %d. Point emulator.screenshot_dir at the emulator's capture folder\n", step)
	} else {
		fmt.Fprintf(w, "  %d. Start the emulator at %s\n", step, cfg.Emulator.BaseURL)
	}
	step++
	fmt.Fprintf(w, "  %d. Run 'crowdplay run' to start the game\n", step)
}
