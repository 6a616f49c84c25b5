package session

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/godbus/dbus/v5"
)

// pulseLookup is swapped out in tests; the real lookup talks to the
// session bus.
var pulseLookup = dbusPulseLookup

// ResolveAudioSocket returns the path of the local PulseAudio native
// socket, or "" when no forwardable socket can be found. Precedence:
// $PULSE_SERVER, the D-Bus server lookup, then the runtime-dir
// default. Only unix sockets are forwardable.
func ResolveAudioSocket() string {
	if server := os.Getenv("PULSE_SERVER"); server != "" {
		if path, ok := strings.CutPrefix(server, "unix:"); ok {
			return path
		}
		slog.Debug("PULSE_SERVER is not a unix socket, skipping audio forwarding", "server", server)
		return ""
	}

	if addr := pulseLookup(); addr != "" {
		if path, ok := strings.CutPrefix(addr, "unix:"); ok {
			return path
		}
	}

	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		path := filepath.Join(runtimeDir, "pulse", "native")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// dbusPulseLookup asks the session bus where the PulseAudio server
// listens. Any failure (no bus, no PulseAudio) yields "".
func dbusPulseLookup() string {
	conn, err := dbus.SessionBus()
	if err != nil {
		return ""
	}

	obj := conn.Object("org.PulseAudio1", "/org/pulseaudio/server_lookup1")
	variant, err := obj.GetProperty("org.PulseAudio.ServerLookup1.Address")
	if err != nil {
		return ""
	}

	addr, _ := variant.Value().(string)
	return addr
}
