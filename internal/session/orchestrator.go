package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"go.olrik.dev/wprsctl/internal/control"
	"go.olrik.dev/wprsctl/internal/core"
	"go.olrik.dev/wprsctl/internal/db"
	"go.olrik.dev/wprsctl/internal/transport"
)

// ErrRemoteSetup indicates that remote-side session preparation
// failed in a way that blocks remote commands.
var ErrRemoteSetup = errors.New("remote setup failed")

// Remote-side well-known paths, relative to the remote home directory.
const (
	remoteDir       = ".wprsctl"
	remoteDataSock  = ".wprsctl/wprsd.sock"
	remoteCtrlSock  = ".wprsctl/wprsc.ctrl"
	remoteAudioSock = ".wprsctl/pulse.sock"
	remoteAuthSock  = ".wprsctl/auth.sock"
)

// Transport is the control surface of the multiplexed connection the
// orchestrator drives.
type Transport interface {
	Check(destination string) bool
	Start(destination string, extraArgs []string) error
	Stop(destination string)
	Forward(destination string, forwards []transport.Forward) error
	Exec(destination, script string) error
	Run(destination string, argv []string, env map[string]string, interactive bool) error
}

// CapabilityQuerier fetches the capability descriptor from the
// companion once it is live.
type CapabilityQuerier interface {
	QueryCapabilities() (*control.Capabilities, error)
}

// Orchestrator composes the identity, transport, supervisor,
// reconciler and control client into the attach/detach/run operations.
// All operations are idempotent: rerunning attach against an unchanged
// session changes nothing.
type Orchestrator struct {
	cfg        *core.Config
	dest       string
	profile    *core.Profile
	id         Identity
	paths      ResourcePaths
	transport  Transport
	supervisor *Supervisor
	reconciler *Reconciler
	control    CapabilityQuerier
	events     *db.DB // optional; nil disables event logging

	resolveAudio func() string
	interactive  func() bool

	audioForwarded bool
}

// New derives the session identity for the destination and wires up
// the session components.
func New(cfg *core.Config, destination string) (*Orchestrator, error) {
	profile := cfg.Profile(destination)

	id, err := NewDeriver().Derive(destination, profile.SSHArgs)
	if err != nil {
		return nil, err
	}

	runtimeDir := RuntimeDir(cfg.RuntimeDir)
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}
	paths := PathsFor(runtimeDir, id)

	events, err := db.Open(paths.EventDB)
	if err != nil {
		slog.Warn("Event log unavailable", "error", err)
		events = nil
	}

	sup := NewSupervisor(paths.PidFile)

	return &Orchestrator{
		cfg:        cfg,
		dest:       destination,
		profile:    profile,
		id:         id,
		paths:      paths,
		transport:  transport.NewController(paths.ControlPath(), paths.DataSocket, paths.ControlSocket),
		supervisor: sup,
		reconciler: NewReconciler(sup),
		control:    control.NewClient(paths.ControlSocket, cfg.ControlRetries, cfg.ControlRetryDelay),
		events:     events,
		resolveAudio: ResolveAudioSocket,
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}, nil
}

// Identity returns the session identity.
func (o *Orchestrator) Identity() Identity { return o.id }

// Paths returns the session resource paths.
func (o *Orchestrator) Paths() ResourcePaths { return o.paths }

// TransportAlive reports whether the master connection is up.
func (o *Orchestrator) TransportAlive() bool { return o.transport.Check(o.dest) }

// CurrentProcess returns the live supervised companion, if any.
func (o *Orchestrator) CurrentProcess() *ProcessRecord { return o.supervisor.Current() }

// RecentEvents returns the session's most recent logged events.
func (o *Orchestrator) RecentEvents(limit int) ([]db.SessionEvent, error) {
	if o.events == nil {
		return nil, nil
	}
	return o.events.RecentEvents(o.id.String(), limit)
}

// Close releases the event log handle.
func (o *Orchestrator) Close() {
	if o.events != nil {
		o.events.Close()
	}
}

// Attach brings the session up: transport, forwards, remote setup,
// companion reconciliation, capability query. Returns the capability
// descriptor, which is nil when the companion reports no capability
// data.
func (o *Orchestrator) Attach() (*control.Capabilities, error) {
	if !o.transport.Check(o.dest) {
		slog.Info("Transport not running, starting master connection", "destination", o.dest)
		if err := o.transport.Start(o.dest, o.profile.SSHArgs); err != nil {
			return nil, err
		}
		o.logEvent("transport_started", "")
	}

	forwards := o.forwardSet()
	if err := o.transport.Forward(o.dest, forwards); err != nil {
		// Known transient failure mode of multiplexed-connection
		// reuse: tear the master down and retry exactly once.
		slog.Warn("Socket forwarding failed, restarting transport", "error", err)
		o.logEvent("forward_retry", err.Error())
		o.transport.Stop(o.dest)
		if err := o.transport.Start(o.dest, o.profile.SSHArgs); err != nil {
			return nil, err
		}
		if err := o.transport.Forward(o.dest, forwards); err != nil {
			return nil, err
		}
	}

	if err := o.refreshAgentSocket(); err != nil {
		return nil, err
	}

	argv, env := o.desiredInvocation()
	restarted, err := o.reconciler.Reconcile(argv, env)
	if err != nil {
		return nil, err
	}
	if restarted {
		o.logEvent("companion_started", strings.Join(argv, " "))
	} else {
		o.logEvent("companion_unchanged", "")
	}

	caps, err := o.control.QueryCapabilities()
	if err != nil {
		return nil, err
	}

	o.logEvent("attach", "")
	return caps, nil
}

// Detach stops the companion and tears down the transport. Resource
// socket files are removed; detaching an already-detached session is
// a no-op.
func (o *Orchestrator) Detach() error {
	if err := o.supervisor.Stop(); err != nil {
		return err
	}
	o.transport.Stop(o.dest)
	o.logEvent("detach", "")
	slog.Info("Session detached", "destination", o.dest)
	return nil
}

// RunCommand attaches, then executes argv in the remote session
// environment, streaming its stdio to the local terminal. extraEnv
// entries ("K=V") are appended to the environment verbatim.
func (o *Orchestrator) RunCommand(argv []string, extraEnv []string) error {
	caps, err := o.Attach()
	if err != nil {
		return err
	}

	env := o.remoteEnvironment(caps)
	for _, kv := range extraEnv {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	o.logEvent("run", strings.Join(argv, " "))
	return o.transport.Run(o.dest, argv, env, o.interactive())
}

// forwardSet assembles the endpoint pairs for this session: the data
// socket (local listener to the remote wprsd socket), the control
// socket (remote listener back to the local companion), and, when the
// profile allows it and a local audio socket resolves, a reverse
// audio pair.
func (o *Orchestrator) forwardSet() []transport.Forward {
	forwards := []transport.Forward{
		{Local: o.paths.DataSocket, Remote: remoteDataSock},
		{Local: o.paths.ControlSocket, Remote: remoteCtrlSock, Reverse: true},
	}

	o.audioForwarded = false
	if o.profile.ForwardAudio {
		if audio := o.resolveAudio(); audio != "" {
			forwards = append(forwards, transport.Forward{Local: audio, Remote: remoteAudioSock, Reverse: true})
			o.audioForwarded = true
		} else {
			slog.Debug("No local audio socket found, skipping audio forwarding")
		}
	}

	return forwards
}

// refreshAgentSocket exposes the forwarded ssh agent socket at a
// stable remote path so remote commands can import SSH_AUTH_SOCK
// from it.
func (o *Orchestrator) refreshAgentSocket() error {
	script := fmt.Sprintf(`mkdir -p %s && ln -sfn "$SSH_AUTH_SOCK" %s`, remoteDir, remoteAuthSock)
	if err := o.transport.Exec(o.dest, script); err != nil {
		return fmt.Errorf("%w: agent socket symlink: %v", ErrRemoteSetup, err)
	}
	return nil
}

// desiredInvocation builds the companion command line and environment
// the session should be running with.
func (o *Orchestrator) desiredInvocation() ([]string, map[string]string) {
	argv := []string{o.cfg.CompanionPath}
	argv = append(argv, o.profile.CompanionArgs...)
	if o.profile.TitlePrefix != "" {
		argv = append(argv, "--title-prefix="+o.profile.TitlePrefix)
	}
	argv = append(argv, "--socket="+o.paths.DataSocket, "--control-socket="+o.paths.ControlSocket)

	debug := "0"
	if o.profile.DebugProtocol {
		debug = "1"
	}
	env := map[string]string{
		"WAYLAND_DEBUG":  debug,
		"RUST_BACKTRACE": "1",
	}
	return argv, env
}

// remoteEnvironment assembles the environment for remote commands.
// DISPLAY is only set when the session reports the legacy-X11
// compatibility layer.
func (o *Orchestrator) remoteEnvironment(caps *control.Capabilities) map[string]string {
	env := map[string]string{
		"WAYLAND_DISPLAY":  o.cfg.WaylandDisplay,
		"XDG_SESSION_TYPE": "wayland",
		"XCURSOR_SIZE":     strconv.Itoa(CursorSize()),
		"SSH_AUTH_SOCK":    "$HOME/" + remoteAuthSock,
	}

	if caps != nil && caps.Xwayland {
		env["DISPLAY"] = o.cfg.LegacyX11Display
	} else {
		slog.Warn("Session reports no X11 compatibility layer, DISPLAY will not be set")
	}
	if o.audioForwarded {
		env["PULSE_SERVER"] = "unix:$HOME/" + remoteAudioSock
	}

	for k, v := range o.profile.Environment {
		env[k] = v
	}
	return env
}

func (o *Orchestrator) logEvent(eventType, details string) {
	if o.events == nil {
		return
	}
	if err := o.events.LogSessionEvent(o.id.String(), eventType, details); err != nil {
		slog.Debug("Failed to log session event", "event", eventType, "error", err)
	}
}
