package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/andywolf/crowdplay/internal/alert"
	"github.com/andywolf/crowdplay/internal/cloud/gcp"
	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/config"
	"github.com/andywolf/crowdplay/internal/controller"
	"github.com/andywolf/crowdplay/internal/emulator"
	"github.com/andywolf/crowdplay/internal/events"
	"github.com/andywolf/crowdplay/internal/platform/twitter"
	"github.com/andywolf/crowdplay/internal/ratelimit"
	"github.com/andywolf/crowdplay/internal/scheduler"
	"github.com/andywolf/crowdplay/internal/status"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the game loop",
	Long: `Start playing rounds from the configured anchor post.

Each round waits for a reply to the anchor, applies its inputs to the
emulator, and publishes a screenshot as the next anchor. The loop runs until
interrupted, until --max-rounds rounds complete, or until a round fails.

Example:
  crowdplay run --anchor 1234567890
  crowdplay run --emulator local --screenshot-dir ~/shots --policy unbounded`,
	RunE: runGame,
}

func init() {
	rootCmd.AddCommand(runCmd)
	registerRunFlags(runCmd)
}

func registerRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("anchor", "", "Post ID the first round replies under")
	cmd.Flags().Int("max-rounds", 0, "Stop after this many rounds (0 runs until interrupted)")
	cmd.Flags().String("emulator", "", "Emulator mode (remote, local)")
	cmd.Flags().String("emulator-url", "", "Remote emulator base URL")
	cmd.Flags().String("screenshot-dir", "", "Local emulator capture directory")
	cmd.Flags().String("parse-mode", "", "Reply parse mode (multi, legacy)")
	cmd.Flags().String("policy", "", "Wait policy (bounded, unbounded)")
	cmd.Flags().Bool("load-save", false, "Load the emulator save state before the first round")
}

func runGame(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyRunFlags(cmd, cfg)

	if err = cfg.ValidateForRun(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctrl, err := buildGame(ctx, cfg, viper.GetBool("verbose"))
	if err != nil {
		return err
	}
	return ctrl.Run(ctx)
}

// applyRunFlags overrides configuration with flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if anchor, _ := flags.GetString("anchor"); anchor != "" {
		cfg.Game.AnchorID = anchor
	}
	if flags.Changed("max-rounds") {
		cfg.Game.MaxRounds, _ = flags.GetInt("max-rounds")
	}
	if mode, _ := flags.GetString("emulator"); mode != "" {
		cfg.Emulator.Mode = mode
	}
	if url, _ := flags.GetString("emulator-url"); url != "" {
		cfg.Emulator.BaseURL = url
	}
	if dir, _ := flags.GetString("screenshot-dir"); dir != "" {
		cfg.Emulator.ScreenshotDir = dir
	}
	if mode, _ := flags.GetString("parse-mode"); mode != "" {
		cfg.Game.ParseMode = mode
	}
	if policy, _ := flags.GetString("policy"); policy != "" {
		cfg.Schedule.Policy = policy
	}
	if flags.Changed("load-save") {
		cfg.Game.LoadSaveOnStart, _ = flags.GetBool("load-save")
	}
	// Mode flags may leave mode-specific fields unset.
	config.ApplyDefaults(cfg)
}

// buildGame wires the platform client, emulator, scheduler and sinks into a
// controller ready to run.
func buildGame(ctx context.Context, cfg *config.Config, verbose bool) (*controller.Controller, error) {
	sessionID := "crowdplay-" + uuid.NewString()[:8]
	logger := log.New(os.Stdout, "[controller] ", log.LstdFlags)

	var fetcher gcp.SecretFetcher
	if needsSecretManager(cfg) {
		client, err := gcp.NewSecretManagerClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
		}
		fetcher = client
	}

	creds, authSecret, err := resolveCredentials(ctx, cfg, fetcher)
	if err != nil {
		closeFetcher(fetcher)
		return nil, err
	}

	platform := twitter.NewClient(creds,
		twitter.WithAPIURL(cfg.Platform.APIBaseURL),
		twitter.WithUploadURL(cfg.Platform.UploadBaseURL),
		twitter.WithLimiter(ratelimit.New(cfg.Platform.CallsPerWindow, config.Duration(cfg.Platform.Window))),
	)

	emu, err := buildEmulator(cfg, authSecret, logger)
	if err != nil {
		closeFetcher(fetcher)
		return nil, err
	}

	sink, err := events.NewFileSink(cfg.Events.Dir)
	if err != nil {
		closeFetcher(fetcher)
		return nil, err
	}

	var ctrl *controller.Controller
	sched := scheduler.New(platform, buildPolicy(cfg),
		scheduler.WithParser(command.Parser{
			Mode:       command.ParseMode(cfg.Game.ParseMode),
			MaxActions: cfg.Game.MaxActions,
		}),
		scheduler.WithLogger(log.New(os.Stdout, "[scheduler] ", log.LstdFlags)),
		scheduler.WithObserver(func(ev events.ProgressEvent) {
			if ctrl != nil {
				ctrl.Observe(ev)
			}
		}),
	)

	opts := []controller.Option{
		controller.WithLogger(logger),
		controller.WithSinks(sink),
		controller.WithNotifier(alert.New(cfg.Alert.WebhookURL, alert.WithLogger(logger))),
		controller.WithComposer(status.Composer{Hashtag: cfg.Game.Hashtag, Template: cfg.Game.StatusTemplate}),
	}
	if fetcher != nil {
		opts = append(opts, controller.WithSecretManager(fetcher))
	}
	// Off GCP the operator log and the events file cover what the
	// structured logger would repeat on stdout.
	var cloudLogger *gcp.CloudLogger
	if gcp.IsRunningOnGCP() {
		cloudLogger = gcp.NewLogger(sessionID, gcp.WithLabels(map[string]string{
			"emulator_mode": cfg.Emulator.Mode,
			"policy":        cfg.Schedule.Policy,
		}))
		opts = append(opts, controller.WithCloudLogger(cloudLogger))

		updater, uerr := gcp.NewComputeMetadataUpdater(ctx)
		if uerr != nil {
			logger.Printf("Warning: instance status reporting disabled: %v", uerr)
		} else {
			opts = append(opts, controller.WithMetadataUpdater(updater))
		}
	}

	ctrl, err = controller.New(controller.Config{
		SessionID:       sessionID,
		Anchor:          cfg.Game.AnchorID,
		MaxRounds:       cfg.Game.MaxRounds,
		SettleDelay:     config.Duration(cfg.Schedule.SettleDelay),
		Cooldown:        config.Duration(cfg.Schedule.Cooldown),
		LoadSaveOnStart: cfg.Game.LoadSaveOnStart,
	}, sched, emu, platform, opts...)
	if err != nil {
		closeFetcher(fetcher)
		_ = sink.Close()
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}
	if cloudLogger != nil {
		ctrl.SetLogFlushFunc(cloudLogger.Flush)
	}

	if verbose {
		logger.Printf("Session %s: emulator=%s policy=%s parse_mode=%s events=%s",
			sessionID, cfg.Emulator.Mode, cfg.Schedule.Policy, cfg.Game.ParseMode, sink.Path())
	}
	return ctrl, nil
}

// needsSecretManager reports whether any credential is a Secret Manager path.
func needsSecretManager(cfg *config.Config) bool {
	for _, v := range []string{
		cfg.Platform.ConsumerKey,
		cfg.Platform.ConsumerSecret,
		cfg.Platform.AccessToken,
		cfg.Platform.AccessTokenSecret,
		cfg.Emulator.AuthSecret,
	} {
		if gcp.IsSecretPath(v) {
			return true
		}
	}
	return false
}

// resolveCredentials turns every credential setting into its secret value.
func resolveCredentials(ctx context.Context, cfg *config.Config, fetcher gcp.SecretFetcher) (twitter.Credentials, string, error) {
	var creds twitter.Credentials
	fields := []struct {
		name  string
		value string
		dst   *string
	}{
		{"platform.consumer_key", cfg.Platform.ConsumerKey, &creds.ConsumerKey},
		{"platform.consumer_secret", cfg.Platform.ConsumerSecret, &creds.ConsumerSecret},
		{"platform.access_token", cfg.Platform.AccessToken, &creds.AccessToken},
		{"platform.access_token_secret", cfg.Platform.AccessTokenSecret, &creds.AccessTokenSecret},
	}
	for _, f := range fields {
		v, err := gcp.ResolveSecret(ctx, fetcher, f.value)
		if err != nil {
			return twitter.Credentials{}, "", fmt.Errorf("failed to resolve %s: %w", f.name, err)
		}
		*f.dst = v
	}
	if err := creds.Validate(); err != nil {
		return twitter.Credentials{}, "", err
	}

	var authSecret string
	if cfg.Emulator.AuthSecret != "" {
		v, err := gcp.ResolveSecret(ctx, fetcher, cfg.Emulator.AuthSecret)
		if err != nil {
			return twitter.Credentials{}, "", fmt.Errorf("failed to resolve emulator.auth_secret: %w", err)
		}
		authSecret = v
	}
	return creds, authSecret, nil
}

// buildEmulator returns the driver selected by emulator.mode.
func buildEmulator(cfg *config.Config, authSecret string, logger *log.Logger) (controller.Emulator, error) {
	switch cfg.Emulator.Mode {
	case config.EmulatorRemote:
		opts := []emulator.RemoteOption{
			emulator.WithHTTPClient(&http.Client{Timeout: config.Duration(cfg.Emulator.Timeout)}),
		}
		if authSecret != "" {
			opts = append(opts, emulator.WithSigningKey([]byte(authSecret)))
		}
		return emulator.NewRemoteClient(cfg.Emulator.BaseURL, opts...), nil
	case config.EmulatorLocal:
		var vocab *command.Vocabulary
		if cfg.Emulator.KeyMapFile != "" {
			v, err := command.LoadKeyMap(cfg.Emulator.KeyMapFile)
			if err != nil {
				return nil, err
			}
			vocab = v
		}
		kb, err := emulator.NewKeyboard(emulator.KeyboardConfig{
			Tool:          cfg.Emulator.KeyTool,
			Vocabulary:    vocab,
			ScreenshotDir: cfg.Emulator.ScreenshotDir,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create keyboard emulator: %w", err)
		}
		return kb, nil
	default:
		return nil, fmt.Errorf("invalid emulator mode: %s", cfg.Emulator.Mode)
	}
}

// buildPolicy converts the schedule settings into a wait policy.
func buildPolicy(cfg *config.Config) scheduler.Policy {
	interval := config.Duration(cfg.Schedule.Interval)
	if cfg.Schedule.Policy == config.PolicyUnbounded {
		return scheduler.Unbounded{Interval: interval}
	}
	return scheduler.Bounded{Interval: interval, MaxWait: config.Duration(cfg.Schedule.MaxWait)}
}

func closeFetcher(f gcp.SecretFetcher) {
	if f != nil {
		_ = f.Close()
	}
}
