// Package sockpath provides the default Unix socket path for the cswd daemon.
// All binaries (cswd, cswctl, csw-mcp) use this to agree on the default.
package sockpath

import (
	"os"
	"path/filepath"
)

// DefaultSocketPath returns the default path for the cswd Unix socket.
// It prefers $XDG_RUNTIME_DIR/csw/cswd.sock, falling back to
// ~/.config/csw/cswd.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "csw", "cswd.sock")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "csw", "cswd.sock")
}
