package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/status"
	"github.com/spf13/viper"
)

// Emulator modes.
const (
	EmulatorRemote = "remote"
	EmulatorLocal  = "local"
)

// Schedule policies.
const (
	PolicyBounded   = "bounded"
	PolicyUnbounded = "unbounded"
)

// EnvPrefix prefixes every environment override, e.g.
// CROWDPLAY_PLATFORM_CONSUMER_KEY for platform.consumer_key.
const EnvPrefix = "CROWDPLAY"

// envKeys are the settings that may come from the environment alone, with no
// config file entry.
var envKeys = []string{
	"platform.consumer_key",
	"platform.consumer_secret",
	"platform.access_token",
	"platform.access_token_secret",
	"emulator.mode",
	"emulator.base_url",
	"emulator.auth_secret",
	"emulator.screenshot_dir",
	"game.anchor_id",
	"game.parse_mode",
	"game.max_rounds",
	"schedule.policy",
	"alert.webhook_url",
	"events.dir",
}

// BindEnv binds the nested settings to their environment variables.
func BindEnv() error {
	for _, key := range envKeys {
		if err := viper.BindEnv(key, EnvVar(key)); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// EnvVar returns the environment variable for a settings key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Config represents the full crowdplay configuration
type Config struct {
	Platform PlatformConfig `mapstructure:"platform" yaml:"platform"`
	Emulator EmulatorConfig `mapstructure:"emulator" yaml:"emulator"`
	Game     GameConfig     `mapstructure:"game" yaml:"game"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Alert    AlertConfig    `mapstructure:"alert" yaml:"alert"`
	Events   EventsConfig   `mapstructure:"events" yaml:"events"`
}

// PlatformConfig contains the social platform credentials and endpoints.
// Each credential is either the literal value or a Secret Manager path
// (projects/PROJECT/secrets/NAME).
type PlatformConfig struct {
	ConsumerKey       string `mapstructure:"consumer_key" yaml:"consumer_key"`
	ConsumerSecret    string `mapstructure:"consumer_secret" yaml:"consumer_secret"`
	AccessToken       string `mapstructure:"access_token" yaml:"access_token"`
	AccessTokenSecret string `mapstructure:"access_token_secret" yaml:"access_token_secret"`
	APIBaseURL        string `mapstructure:"api_base_url" yaml:"api_base_url,omitempty"`
	UploadBaseURL     string `mapstructure:"upload_base_url" yaml:"upload_base_url,omitempty"`
	CallsPerWindow    int    `mapstructure:"calls_per_window" yaml:"calls_per_window,omitempty"`
	Window            string `mapstructure:"window" yaml:"window,omitempty"`
}

// EmulatorConfig selects and configures the emulator driver
type EmulatorConfig struct {
	Mode          string `mapstructure:"mode" yaml:"mode"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	AuthSecret    string `mapstructure:"auth_secret" yaml:"auth_secret,omitempty"`
	KeyTool       string `mapstructure:"key_tool" yaml:"key_tool,omitempty"`
	KeyMapFile    string `mapstructure:"key_map_file" yaml:"key_map_file,omitempty"`
	ScreenshotDir string `mapstructure:"screenshot_dir" yaml:"screenshot_dir,omitempty"`
	Timeout       string `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// GameConfig contains per-game settings
type GameConfig struct {
	AnchorID        string `mapstructure:"anchor_id" yaml:"anchor_id"`
	ParseMode       string `mapstructure:"parse_mode" yaml:"parse_mode,omitempty"`
	MaxActions      int    `mapstructure:"max_actions" yaml:"max_actions,omitempty"`
	Hashtag         string `mapstructure:"hashtag" yaml:"hashtag,omitempty"`
	StatusTemplate  string `mapstructure:"status_template" yaml:"status_template,omitempty"`
	LoadSaveOnStart bool   `mapstructure:"load_save_on_start" yaml:"load_save_on_start,omitempty"`
	MaxRounds       int    `mapstructure:"max_rounds" yaml:"max_rounds,omitempty"`
}

// ScheduleConfig contains polling and round timing
type ScheduleConfig struct {
	Policy      string `mapstructure:"policy" yaml:"policy,omitempty"`
	Interval    string `mapstructure:"interval" yaml:"interval,omitempty"`
	MaxWait     string `mapstructure:"max_wait" yaml:"max_wait,omitempty"`
	SettleDelay string `mapstructure:"settle_delay" yaml:"settle_delay,omitempty"`
	Cooldown    string `mapstructure:"cooldown" yaml:"cooldown,omitempty"`

	// defaultInterval is the Interval last filled in by ApplyDefaults. While
	// Interval still holds it, a policy change picks the matching default.
	defaultInterval string
}

// AlertConfig contains operator alerting settings
type AlertConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url,omitempty"`
}

// EventsConfig contains progress event settings
type EventsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	cfg := &Config{}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Persistable returns a copy of c for writing to a config file. A defaulted
// interval is left out so loading the file picks it by policy again.
func (c *Config) Persistable() Config {
	out := *c
	if out.Schedule.Interval == out.Schedule.defaultInterval {
		out.Schedule.Interval = ""
	}
	out.Schedule.defaultInterval = ""
	return out
}

// ApplyDefaults sets default values for unset fields
func ApplyDefaults(cfg *Config) {
	if cfg.Platform.APIBaseURL == "" {
		cfg.Platform.APIBaseURL = "https://api.twitter.com"
	}
	if cfg.Platform.UploadBaseURL == "" {
		cfg.Platform.UploadBaseURL = "https://upload.twitter.com"
	}
	if cfg.Platform.CallsPerWindow == 0 {
		cfg.Platform.CallsPerWindow = 75
	}
	if cfg.Platform.Window == "" {
		cfg.Platform.Window = "15m"
	}

	if cfg.Emulator.Mode == "" {
		cfg.Emulator.Mode = EmulatorRemote
	}
	if cfg.Emulator.Mode == EmulatorRemote && cfg.Emulator.BaseURL == "" {
		cfg.Emulator.BaseURL = "http://localhost:3535"
	}
	if cfg.Emulator.Mode == EmulatorLocal && cfg.Emulator.KeyTool == "" {
		cfg.Emulator.KeyTool = "xdotool"
	}
	if cfg.Emulator.Timeout == "" {
		cfg.Emulator.Timeout = "30s"
	}

	if cfg.Game.ParseMode == "" {
		cfg.Game.ParseMode = string(command.ParseMulti)
	}
	if cfg.Game.MaxActions == 0 {
		cfg.Game.MaxActions = command.DefaultMaxActions
	}
	if cfg.Game.Hashtag == "" {
		cfg.Game.Hashtag = "#CrowdPlaysPokemon"
	}

	if cfg.Schedule.Policy == "" {
		cfg.Schedule.Policy = PolicyBounded
	}
	if cfg.Schedule.Interval == "" || cfg.Schedule.Interval == cfg.Schedule.defaultInterval {
		if cfg.Schedule.Policy == PolicyUnbounded {
			cfg.Schedule.Interval = "30s"
		} else {
			cfg.Schedule.Interval = "60s"
		}
		cfg.Schedule.defaultInterval = cfg.Schedule.Interval
	}
	if cfg.Schedule.MaxWait == "" {
		cfg.Schedule.MaxWait = "60m"
	}
	if cfg.Schedule.SettleDelay == "" {
		cfg.Schedule.SettleDelay = "5s"
	}
	if cfg.Schedule.Cooldown == "" {
		cfg.Schedule.Cooldown = "5m"
	}

	if cfg.Events.Dir == "" {
		cfg.Events.Dir = ".crowdplay"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Emulator.Mode {
	case EmulatorRemote:
		if c.Emulator.BaseURL == "" {
			return fmt.Errorf("emulator base_url is required in remote mode")
		}
	case EmulatorLocal:
		if c.Emulator.ScreenshotDir == "" {
			return fmt.Errorf("emulator screenshot_dir is required in local mode")
		}
	default:
		return fmt.Errorf("invalid emulator mode: %s (must be remote or local)", c.Emulator.Mode)
	}

	if !command.ValidParseMode(c.Game.ParseMode) {
		return fmt.Errorf("invalid parse_mode: %s (must be multi or legacy)", c.Game.ParseMode)
	}
	if c.Game.MaxActions < 1 {
		return fmt.Errorf("max_actions must be at least 1, got %d", c.Game.MaxActions)
	}
	if err := status.ValidateTemplate(c.Game.StatusTemplate); err != nil {
		return fmt.Errorf("invalid status_template: %w", err)
	}
	if c.Game.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must not be negative, got %d", c.Game.MaxRounds)
	}

	switch c.Schedule.Policy {
	case PolicyBounded, PolicyUnbounded:
	default:
		return fmt.Errorf("invalid schedule policy: %s (must be bounded or unbounded)", c.Schedule.Policy)
	}

	durations := []struct {
		name  string
		value string
	}{
		{"platform.window", c.Platform.Window},
		{"emulator.timeout", c.Emulator.Timeout},
		{"schedule.interval", c.Schedule.Interval},
		{"schedule.max_wait", c.Schedule.MaxWait},
		{"schedule.settle_delay", c.Schedule.SettleDelay},
		{"schedule.cooldown", c.Schedule.Cooldown},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if parsed < 0 {
			return fmt.Errorf("invalid %s: must not be negative", d.name)
		}
	}

	return nil
}

// ValidateForRun performs additional validation required before starting a game
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Game.AnchorID == "" {
		return fmt.Errorf("game anchor_id is required (the id of the post to start replying to)")
	}

	missing := []string{}
	if c.Platform.ConsumerKey == "" {
		missing = append(missing, "consumer_key")
	}
	if c.Platform.ConsumerSecret == "" {
		missing = append(missing, "consumer_secret")
	}
	if c.Platform.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if c.Platform.AccessTokenSecret == "" {
		missing = append(missing, "access_token_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("platform credentials missing: %v", missing)
	}

	return nil
}

// Duration parses a validated duration string. Empty or invalid values
// yield zero, which callers treat as "use the default".
func Duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
