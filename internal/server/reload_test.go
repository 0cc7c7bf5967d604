package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestApplyLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	if err := ApplyLogLevel("warn"); err != nil {
		t.Fatalf("ApplyLogLevel: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("level = %v", zerolog.GlobalLevel())
	}
	if err := ApplyLogLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestConfigReloadAppliesLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	path := filepath.Join(t.TempDir(), "csw.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	reloaded := make(chan Config, 1)
	d := NewDaemon(cfg, zerolog.Nop())
	d.reloaded = func(c Config) {
		select {
		case reloaded <- c:
		default:
		}
	}
	if err := d.watchConfig(); err != nil {
		t.Fatalf("watchConfig: %v", err)
	}
	defer d.watcher.Close()

	if err := os.WriteFile(path, []byte("[log]\nlevel = \"error\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-reloaded:
		if c.Log.Level != "error" {
			t.Errorf("reloaded level = %q", c.Log.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	if zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Errorf("global level = %v, want error", zerolog.GlobalLevel())
	}
}
