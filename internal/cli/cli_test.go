package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andywolf/crowdplay/internal/command"
	"github.com/andywolf/crowdplay/internal/config"
	"github.com/andywolf/crowdplay/internal/controller"
	"github.com/andywolf/crowdplay/internal/emulator"
	"github.com/andywolf/crowdplay/internal/events"
	"github.com/andywolf/crowdplay/internal/scheduler"
	"github.com/andywolf/crowdplay/internal/status"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func TestParseCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"parse", "--author", "ash", "go", "up,", "then", "A!"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Inputs:  UP A\n",
		"Applied: UP A\n",
		"@ash pressed UP and other 1 input!",
		"#CrowdPlaysPokemon",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintCandidate(t *testing.T) {
	tests := []struct {
		name string
		cand command.Candidate
		want []string
		not  []string
	}{
		{
			name: "no inputs",
			cand: command.Candidate{Author: "ash", RepeatCount: 1},
			want: []string{"would be skipped"},
			not:  []string{"Result post:"},
		},
		{
			name: "legacy repeat",
			cand: command.Candidate{
				Author:      "misty",
				Permalink:   "https://twitter.com/misty/status/9",
				Actions:     []command.Action{command.ActionLeft},
				RepeatCount: 3,
			},
			want: []string{"Repeat:  x3\n", "Applied: LEFT LEFT LEFT\n", "pressed LEFT 3 times!", "#PlayTogether"},
		},
		{
			name: "single input",
			cand: command.Candidate{Author: "brock", Actions: []command.Action{command.ActionB}, RepeatCount: 1},
			want: []string{"Inputs:  B\n", "pressed B!"},
			not:  []string{"Repeat:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printCandidate(&buf, tt.cand, status.Composer{Hashtag: "#PlayTogether"})
			got := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output missing %q:\n%s", w, got)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(got, n) {
					t.Errorf("output should not contain %q:\n%s", n, got)
				}
			}
		})
	}
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)
	tests := []struct {
		name string
		ev   events.ProgressEvent
		want string
	}{
		{
			name: "transition",
			ev:   events.ProgressEvent{Timestamp: ts, Round: 3, Type: events.EventTransition, State: "APPLY_INPUTS", Actions: []string{"UP", "A"}},
			want: "[14:30:45] round 3 APPLY_INPUTS (UP A)\n",
		},
		{
			name: "poll",
			ev:   events.ProgressEvent{Round: 1, Type: events.EventPoll, Attempt: 2, BatchSize: 5, Outcome: "none_qualifying"},
			want: "round 1 [POLL #2] 5 replies, none_qualifying\n",
		},
		{
			name: "publish with post id",
			ev:   events.ProgressEvent{Round: 4, Type: events.EventTransition, State: "ADVANCE_ANCHOR", PostID: "555"},
			want: "round 4 ADVANCE_ANCHOR post=555\n",
		},
		{
			name: "warning",
			ev:   events.ProgressEvent{Round: 2, Type: events.EventWarning, Summary: "save failed", Error: "disk full"},
			want: "round 2 [WARN] save failed: disk full\n",
		},
		{
			name: "error",
			ev:   events.ProgressEvent{Round: 7, Type: events.EventError, Error: "publish failed"},
			want: "round 7 [ERROR]: publish failed\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatEvent(&buf, tt.ev)
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseEventTypes(t *testing.T) {
	types, err := parseEventTypes("error, warning,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(types) != 2 || types[0] != events.EventError || types[1] != events.EventWarning {
		t.Errorf("types = %v", types)
	}

	if types, err := parseEventTypes(""); err != nil || types != nil {
		t.Errorf("empty = %v, %v", types, err)
	}
	if _, err := parseEventTypes("poll,bogus"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestWriteProjectConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)

	cfg := &config.Config{}
	cfg.Game.AnchorID = "42"
	cfg.Platform.AccessToken = "literal-token"
	seedProjectConfig(cfg)

	if err := writeProjectConfig(path, cfg); err != nil {
		t.Fatalf("writeProjectConfig() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("# crowdplay configuration")) {
		t.Errorf("missing header:\n%s", data)
	}

	var got config.Config
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if got.Game.AnchorID != "42" || got.Game.Hashtag != "#CrowdPlaysPokemon" {
		t.Errorf("game = %+v", got.Game)
	}
	if got.Platform.AccessToken != "literal-token" {
		t.Errorf("access token = %q, want the literal kept", got.Platform.AccessToken)
	}
	if got.Platform.ConsumerKey != "projects/YOUR_PROJECT/secrets/crowdplay-consumer-key" {
		t.Errorf("consumer key placeholder = %q", got.Platform.ConsumerKey)
	}
	if got.Schedule.Interval != "" || got.Schedule.Cooldown != "5m" {
		t.Errorf("schedule = %+v, want the policy-dependent interval left out", got.Schedule)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config mode = %o, want 600", perm)
	}
}

func TestPrintNextSteps(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	printNextSteps(&buf, ".crowdplay.yaml", cfg)

	got := buf.String()
	if !strings.Contains(got, "1. Set game.anchor_id") {
		t.Errorf("missing anchor step:\n%s", got)
	}
	if !strings.Contains(got, "Start the emulator at http://localhost:3535") {
		t.Errorf("missing emulator step:\n%s", got)
	}
	if !strings.Contains(got, "4. Run 'crowdplay run'") {
		t.Errorf("missing run step:\n%s", got)
	}
}

func TestApplyRunFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	registerRunFlags(cmd)
	if err := cmd.Flags().Parse([]string{
		"--anchor", "900",
		"--max-rounds", "0",
		"--emulator", "local",
		"--screenshot-dir", "/tmp/shots",
		"--policy", "unbounded",
	}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Game.MaxRounds = 5
	applyRunFlags(cmd, cfg)

	if cfg.Game.AnchorID != "900" {
		t.Errorf("anchor = %q", cfg.Game.AnchorID)
	}
	if cfg.Game.MaxRounds != 0 {
		t.Errorf("max rounds = %d, want explicit 0", cfg.Game.MaxRounds)
	}
	if cfg.Emulator.Mode != config.EmulatorLocal || cfg.Emulator.ScreenshotDir != "/tmp/shots" {
		t.Errorf("emulator = %+v", cfg.Emulator)
	}
	if cfg.Emulator.KeyTool != "xdotool" {
		t.Errorf("key tool = %q, want local default", cfg.Emulator.KeyTool)
	}
	if cfg.Schedule.Policy != config.PolicyUnbounded {
		t.Errorf("policy = %q", cfg.Schedule.Policy)
	}
	if p, ok := buildPolicy(cfg).(scheduler.Unbounded); !ok || p.Interval != 30*time.Second {
		t.Errorf("policy = %#v, want Unbounded{30s}", buildPolicy(cfg))
	}
	if cfg.Game.LoadSaveOnStart {
		t.Error("load-save should stay unset")
	}
}

type fakeFetcher struct {
	secrets map[string]string
	calls   []string
}

func (f *fakeFetcher) FetchSecret(_ context.Context, path string) (string, error) {
	f.calls = append(f.calls, path)
	v, ok := f.secrets[path]
	if !ok {
		return "", errors.New("secret not found")
	}
	return v, nil
}

func (f *fakeFetcher) Close() error { return nil }

func credentialConfig() *config.Config {
	cfg := config.Default()
	cfg.Platform.ConsumerKey = "ck"
	cfg.Platform.ConsumerSecret = "projects/p/secrets/cs"
	cfg.Platform.AccessToken = "at"
	cfg.Platform.AccessTokenSecret = "projects/p/secrets/ats"
	return cfg
}

func TestResolveCredentials(t *testing.T) {
	fetcher := &fakeFetcher{secrets: map[string]string{
		"projects/p/secrets/cs":  "consumer-secret",
		"projects/p/secrets/ats": "token-secret",
		"projects/p/secrets/emu": "signing-key",
	}}
	cfg := credentialConfig()
	cfg.Emulator.AuthSecret = "projects/p/secrets/emu"

	creds, authSecret, err := resolveCredentials(context.Background(), cfg, fetcher)
	if err != nil {
		t.Fatalf("resolveCredentials() error: %v", err)
	}
	if creds.ConsumerKey != "ck" || creds.ConsumerSecret != "consumer-secret" ||
		creds.AccessToken != "at" || creds.AccessTokenSecret != "token-secret" {
		t.Errorf("creds = %+v", creds)
	}
	if authSecret != "signing-key" {
		t.Errorf("auth secret = %q", authSecret)
	}
	if len(fetcher.calls) != 3 {
		t.Errorf("fetched %v, want only the three secret paths", fetcher.calls)
	}
}

func TestResolveCredentials_Errors(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		_, _, err := resolveCredentials(context.Background(), credentialConfig(), &fakeFetcher{})
		if err == nil || !strings.Contains(err.Error(), "platform.consumer_secret") {
			t.Errorf("err = %v, want naming the setting", err)
		}
	})

	t.Run("secret path without fetcher", func(t *testing.T) {
		if _, _, err := resolveCredentials(context.Background(), credentialConfig(), nil); err == nil {
			t.Error("expected error")
		}
	})
}

func TestNeedsSecretManager(t *testing.T) {
	cfg := config.Default()
	cfg.Platform.ConsumerKey = "literal"
	if needsSecretManager(cfg) {
		t.Error("literal values should not need Secret Manager")
	}
	cfg.Emulator.AuthSecret = "projects/p/secrets/emu"
	if !needsSecretManager(cfg) {
		t.Error("auth secret path should need Secret Manager")
	}
}

func TestBuildEmulator(t *testing.T) {
	t.Run("remote", func(t *testing.T) {
		emu, err := buildEmulator(config.Default(), "key", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := emu.(*emulator.RemoteClient); !ok {
			t.Errorf("emulator = %T, want *emulator.RemoteClient", emu)
		}
	})

	t.Run("local", func(t *testing.T) {
		cfg := &config.Config{Emulator: config.EmulatorConfig{Mode: config.EmulatorLocal, ScreenshotDir: t.TempDir()}}
		config.ApplyDefaults(cfg)
		emu, err := buildEmulator(cfg, "", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := emu.(*emulator.Keyboard); !ok {
			t.Errorf("emulator = %T, want *emulator.Keyboard", emu)
		}
	})

	t.Run("local with bad key map", func(t *testing.T) {
		cfg := &config.Config{Emulator: config.EmulatorConfig{
			Mode:          config.EmulatorLocal,
			ScreenshotDir: t.TempDir(),
			KeyMapFile:    filepath.Join(t.TempDir(), "missing.yaml"),
		}}
		if _, err := buildEmulator(cfg, "", nil); err == nil {
			t.Error("expected error for missing key map")
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := &config.Config{Emulator: config.EmulatorConfig{Mode: "serial"}}
		if _, err := buildEmulator(cfg, "", nil); err == nil {
			t.Error("expected error")
		}
	})
}

func TestApplyRunFlags_PolicyKeepsExplicitInterval(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	registerRunFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--policy", "unbounded"}); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{Schedule: config.ScheduleConfig{Interval: "2m"}}
	config.ApplyDefaults(cfg)
	applyRunFlags(cmd, cfg)

	if p, ok := buildPolicy(cfg).(scheduler.Unbounded); !ok || p.Interval != 2*time.Minute {
		t.Errorf("policy = %#v, want Unbounded{2m}", buildPolicy(cfg))
	}
}

func TestDefaultTimingsMatchController(t *testing.T) {
	cfg := config.Default()
	if got := config.Duration(cfg.Schedule.Cooldown); got != controller.DefaultCooldown {
		t.Errorf("cooldown = %s, want %s", got, controller.DefaultCooldown)
	}
	if got := config.Duration(cfg.Schedule.SettleDelay); got != controller.DefaultSettleDelay {
		t.Errorf("settle delay = %s, want %s", got, controller.DefaultSettleDelay)
	}
}

func TestBuildPolicy(t *testing.T) {
	cfg := config.Default()
	bounded, ok := buildPolicy(cfg).(scheduler.Bounded)
	if !ok {
		t.Fatalf("policy = %T, want Bounded", buildPolicy(cfg))
	}
	if bounded.Interval != 60*time.Second || bounded.MaxWait != 60*time.Minute {
		t.Errorf("bounded = %+v", bounded)
	}

	cfg.Schedule.Policy = config.PolicyUnbounded
	cfg.Schedule.Interval = "45s"
	unbounded, ok := buildPolicy(cfg).(scheduler.Unbounded)
	if !ok || unbounded.Interval != 45*time.Second {
		t.Errorf("policy = %#v, want Unbounded{45s}", buildPolicy(cfg))
	}
}
