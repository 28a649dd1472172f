package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	if got := Short(); got != Version {
		t.Errorf("Short() = %q, want %q", got, Version)
	}
}

func TestInfo(t *testing.T) {
	result := Info()

	for _, want := range []string{"crowdplay", Version, "commit:", "built:", runtime.Version()} {
		if !strings.Contains(result, want) {
			t.Errorf("Info() = %q, want containing %q", result, want)
		}
	}
}

func TestCommitTruncation(t *testing.T) {
	tests := []struct {
		name   string
		commit string
		want   string
	}{
		{name: "long sha is truncated", commit: "abc123456789abcdef", want: "abc1234"},
		{name: "short sha kept", commit: "abc", want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := Commit
			defer func() { Commit = original }()
			Commit = tt.commit

			info := Info()
			if !strings.Contains(info, "commit: "+tt.want+",") {
				t.Errorf("Info() = %q, want commit %q", info, tt.want)
			}
			if ua := UserAgent(); !strings.HasSuffix(ua, "("+tt.want+")") {
				t.Errorf("UserAgent() = %q, want commit %q", ua, tt.want)
			}
		})
	}
}

func TestFull(t *testing.T) {
	result := Full()

	for _, want := range []string{"crowdplay", "Commit:", "Built:", "Go version:", "OS/Arch:", runtime.GOOS, runtime.GOARCH} {
		if !strings.Contains(result, want) {
			t.Errorf("Full() = %q, want containing %q", result, want)
		}
	}
	if lines := strings.Split(result, "\n"); len(lines) < 5 {
		t.Errorf("Full() should have at least 5 lines, got %d", len(lines))
	}
}

func TestUserAgent(t *testing.T) {
	original := Version
	defer func() { Version = original }()
	Version = "v1.2.3"

	if got := UserAgent(); !strings.HasPrefix(got, "crowdplay/v1.2.3 ") {
		t.Errorf("UserAgent() = %q", got)
	}
}
