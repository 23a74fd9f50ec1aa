package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" {
		t.Fatal("expected non-empty version")
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Fatalf("expected go version, got %s", info.GoVersion)
	}
}

func TestShortTruncatesCommit(t *testing.T) {
	orig := GitCommit
	defer func() { GitCommit = orig }()

	GitCommit = "0123456789abcdef"
	if got := Short(); got != Version+" (0123456)" {
		t.Fatalf("unexpected short version: %s", got)
	}
}
