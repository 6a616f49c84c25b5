package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResourcePaths is the set of session-scoped filesystem paths, each a
// deterministic function of the identity. Two invocations with the
// same identity always resolve to the same paths, which is how a new
// invocation discovers an already-running session.
type ResourcePaths struct {
	RuntimeDir    string
	DataSocket    string // wprsc data channel, forwarded to the remote wprsd socket
	ControlSocket string // wprsc control channel, queried for capabilities
	PidFile       string // supervised companion pid
	TransportDir  string // ssh control files, created 0700
	EventDB       string // shared event log
}

// RuntimeDir resolves the per-user runtime directory: the explicit
// override, then $XDG_RUNTIME_DIR, then a uid-scoped tmp directory.
func RuntimeDir(override string) string {
	if override != "" {
		return override
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("wprsctl-%d", os.Getuid()))
}

// PathsFor computes the resource paths for an identity under the given
// runtime directory.
func PathsFor(runtimeDir string, id Identity) ResourcePaths {
	base := filepath.Join(runtimeDir, "wprsc-"+id.String())
	return ResourcePaths{
		RuntimeDir:    runtimeDir,
		DataSocket:    base + ".sock",
		ControlSocket: base + ".ctrl",
		PidFile:       base + ".pid",
		TransportDir:  filepath.Join(runtimeDir, "ssh-"+id.String()),
		EventDB:       filepath.Join(runtimeDir, "wprsctl-events.db"),
	}
}

// ControlPath returns the ssh ControlMaster socket path inside the
// transport directory.
func (p ResourcePaths) ControlPath() string {
	return filepath.Join(p.TransportDir, "mux.sock")
}
