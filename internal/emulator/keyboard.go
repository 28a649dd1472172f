package emulator

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/andywolf/crowdplay/internal/command"
)

// DefaultKeyTool is the program used to tap keys on the emulator window.
const DefaultKeyTool = "xdotool"

// Screenshot polling while the emulator writes the capture file.
const (
	screenshotPollInterval = 100 * time.Millisecond
	screenshotWait         = 3 * time.Second
)

// Keyboard drives an emulator running on the local desktop by tapping keys.
// The game is kept paused between rounds: the first Apply of a round resumes
// it and Screenshot pauses it again.
type Keyboard struct {
	tool          string
	vocab         *command.Vocabulary
	screenshotDir string
	logger        *log.Logger
	paused        bool

	// cmdRunner creates commands; tests replace it.
	cmdRunner func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// KeyboardConfig configures a Keyboard.
type KeyboardConfig struct {
	Tool          string
	Vocabulary    *command.Vocabulary
	ScreenshotDir string
	Logger        *log.Logger
}

// NewKeyboard validates cfg and returns a Keyboard.
func NewKeyboard(cfg KeyboardConfig) (*Keyboard, error) {
	if cfg.ScreenshotDir == "" {
		return nil, fmt.Errorf("screenshot directory is required for local key injection")
	}
	vocab := cfg.Vocabulary
	if vocab == nil {
		vocab = command.KeyboardVocabulary()
	}
	if err := vocab.Validate(append(command.PlayerActions(), command.KeyboardControls()...)...); err != nil {
		return nil, err
	}
	tool := cfg.Tool
	if tool == "" {
		tool = DefaultKeyTool
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[keyboard] ", log.LstdFlags)
	}
	return &Keyboard{
		tool:          tool,
		vocab:         vocab,
		screenshotDir: cfg.ScreenshotDir,
		logger:        logger,
		paused:        true,
		cmdRunner:     exec.CommandContext,
	}, nil
}

// Apply resumes the game if it is paused and taps the key for action.
func (k *Keyboard) Apply(ctx context.Context, action command.Action) error {
	if !command.IsPlayerAction(action) {
		return fmt.Errorf("not a player action: %q", action)
	}
	if k.paused {
		if err := k.tap(ctx, command.ActionPause); err != nil {
			return err
		}
		k.paused = false
	}
	return k.tap(ctx, action)
}

// Persist taps the save-state key.
func (k *Keyboard) Persist(ctx context.Context) error {
	return k.tap(ctx, command.ActionSaveState)
}

// Load is not supported by key injection; the emulator loads its own state.
func (k *Keyboard) Load(_ context.Context) error {
	k.logger.Printf("Load ignored: key injection relies on the emulator's own save state")
	return nil
}

// Screenshot taps the print key, pauses the game and returns the single
// capture found in the screenshot directory. The file is removed afterwards
// so the next round finds exactly one image again.
func (k *Keyboard) Screenshot(ctx context.Context) ([]byte, error) {
	if err := k.tap(ctx, command.ActionPrint); err != nil {
		return nil, err
	}
	if !k.paused {
		if err := k.tap(ctx, command.ActionPause); err != nil {
			return nil, err
		}
		k.paused = true
	}

	path, err := k.waitForCapture(ctx)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshot: %w", err)
	}
	if err := os.Remove(path); err != nil {
		k.logger.Printf("Warning: failed to remove screenshot %s: %v", path, err)
	}
	return data, nil
}

func (k *Keyboard) tap(ctx context.Context, action command.Action) error {
	key, ok := k.vocab.Code(action)
	if !ok {
		return fmt.Errorf("no key mapped for %s", action)
	}
	cmd := k.cmdRunner(ctx, k.tool, "key", key)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s key %s failed: %w (output: %s)", k.tool, key, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// waitForCapture waits until the screenshot directory holds files, then
// requires exactly one.
func (k *Keyboard) waitForCapture(ctx context.Context) (string, error) {
	deadline := time.Now().Add(screenshotWait)
	for {
		files, err := listFiles(k.screenshotDir)
		if err != nil {
			return "", err
		}
		switch {
		case len(files) == 1:
			return files[0], nil
		case len(files) > 1:
			return "", fmt.Errorf("%d image files in %s, want exactly one", len(files), k.screenshotDir)
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no image file appeared in %s", k.screenshotDir)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(screenshotPollInterval):
		}
	}
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshot dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}
