package logx

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelNames(t *testing.T) {
	t.Parallel()
	cases := map[slog.Level]string{
		LevelSuccess:    "SUCCESS",
		LevelMarket:     "MARKET",
		LevelStatus:     "STATUS",
		slog.LevelInfo:  "INFO",
		slog.LevelError: "ERROR",
	}
	for lvl, want := range cases {
		if got := levelName(lvl); got != want {
			t.Errorf("levelName(%v) = %q, want %q", lvl, got, want)
		}
	}
}

func TestCustomLevelsBelowWarn(t *testing.T) {
	t.Parallel()
	for _, lvl := range []slog.Level{LevelSuccess, LevelMarket, LevelStatus} {
		if lvl <= slog.LevelInfo || lvl >= slog.LevelWarn {
			t.Errorf("level %v must sit between Info and Warn", lvl)
		}
	}
}

func TestSetupWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mm.log")

	logger, err := Setup(path, "error") // console quiet
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	Success(logger, "round settled", "round", 1)
	Market(logger, "price tick", "price", 2.0)
	Status(logger, "no fills")
	logger.Info("plain info")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{"SUCCESS", "MARKET", "STATUS", "round settled", "price tick"} {
		if !strings.Contains(out, want) {
			t.Errorf("log file missing %q:\n%s", want, out)
		}
	}
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mm.log")

	w, err := newRotatingWriter(path, 64, 3)
	if err != nil {
		t.Fatalf("newRotatingWriter: %v", err)
	}
	defer w.Close()

	line := strings.Repeat("x", 30) + "\n"
	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated backup %s.1: %v", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current: %v", err)
	}
	if info.Size() > 64 {
		t.Errorf("current log over size cap: %d bytes", info.Size())
	}
}
