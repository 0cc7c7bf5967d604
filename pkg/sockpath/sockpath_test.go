package sockpath

import (
	"path/filepath"
	"testing"
)

func TestDefaultSocketPathXDG(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got, want := DefaultSocketPath(), filepath.Join("/run/user/1000", "csw", "cswd.sock"); got != want {
		t.Errorf("DefaultSocketPath() = %q, want %q", got, want)
	}
}

func TestDefaultSocketPathHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("HOME", home)
	if got, want := DefaultSocketPath(), filepath.Join(home, ".config", "csw", "cswd.sock"); got != want {
		t.Errorf("DefaultSocketPath() = %q, want %q", got, want)
	}
}
