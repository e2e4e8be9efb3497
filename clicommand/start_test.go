package clicommand

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eosc-synergy/sqaaas/logger"
)

func TestReadSecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := readSecretFile(path)
	if err != nil {
		t.Fatalf("readSecretFile() error = %v", err)
	}
	if got != "s3cret" {
		t.Errorf("readSecretFile() = %q, want s3cret", got)
	}
}

func TestReadSecretFileMissing(t *testing.T) {
	if _, err := readSecretFile(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("readSecretFile() of missing file did not error")
	}
	if _, err := readSecretFile(""); err == nil {
		t.Error("readSecretFile() of empty path did not error")
	}
}

func TestCreateLogger(t *testing.T) {
	l, err := createLogger(StartConfig{LogLevel: "debug"})
	if err != nil {
		t.Fatalf("createLogger() error = %v", err)
	}
	if l.Level() != logger.DEBUG {
		t.Errorf("level = %v, want DEBUG", l.Level())
	}

	if _, err := createLogger(StartConfig{LogLevel: "loud"}); err == nil {
		t.Error("createLogger() with unknown level did not error")
	}
}

func TestStartRejectsUnknownBackend(t *testing.T) {
	err := start(StartConfig{LogLevel: "notice", SCMBackend: "gitlab"})
	if err == nil || !strings.Contains(err.Error(), "unsupported repository backend") {
		t.Errorf("start() error = %v, want unsupported backend", err)
	}
}

func TestStartRequiresFlags(t *testing.T) {
	err := start(StartConfig{LogLevel: "notice", SCMBackend: "github"})
	if err == nil || !strings.Contains(err.Error(), "missing required flag") {
		t.Errorf("start() error = %v, want missing flag", err)
	}
}
