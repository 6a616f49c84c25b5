// Package transport drives the lifecycle of the multiplexed ssh
// connection that carries a session: a ControlMaster started once per
// destination, control commands issued against its control socket, and
// unix-socket forwards added to the live connection.
package transport

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// ErrTransport indicates that a transport control command failed.
var ErrTransport = errors.New("transport command failed")

// Forward describes one forwarded unix-socket pair. Reverse pairs
// listen on the remote side and connect back to the local socket.
type Forward struct {
	Local   string
	Remote  string
	Reverse bool
}

// Controller wraps the external ssh binary for one session. The
// control socket lives in a session-scoped directory; the data and
// control socket paths are removed on Stop.
type Controller struct {
	sshPath       string
	controlPath   string
	dataSocket    string
	controlSocket string
}

func NewController(controlPath, dataSocket, controlSocket string) *Controller {
	return &Controller{
		sshPath:       "ssh",
		controlPath:   controlPath,
		dataSocket:    dataSocket,
		controlSocket: controlSocket,
	}
}

// Check reports whether the master connection for the destination is
// alive. It issues a non-mutating `ssh -O check`.
func (c *Controller) Check(destination string) bool {
	cmd := exec.Command(c.sshPath, c.checkArgs(destination)...)
	return cmd.Run() == nil
}

// Start launches a persistent master connection with no remote
// command. The directory holding the control socket is created with
// owner-only permissions first. Starting an already-running master is
// a no-op at the ssh layer; callers should Check first.
func (c *Controller) Start(destination string, extraArgs []string) error {
	if err := os.MkdirAll(filepath.Dir(c.controlPath), 0o700); err != nil {
		return fmt.Errorf("%w: creating control directory: %v", ErrTransport, err)
	}

	cmd := exec.Command(c.sshPath, c.startArgs(destination, extraArgs)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: starting master for %s: %v: %s",
			ErrTransport, destination, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Stop asks the master to exit (best effort) and removes the session
// socket files, tolerating their absence.
func (c *Controller) Stop(destination string) {
	exec.Command(c.sshPath, c.exitArgs(destination)...).Run()

	// Leftover sockets are reclaimed by the next attach; absence is
	// the normal case after a clean exit.
	os.Remove(c.dataSocket)
	os.Remove(c.controlSocket)
}

// Forward adds all endpoint pairs to the live master in a single
// `ssh -O forward` command.
func (c *Controller) Forward(destination string, forwards []Forward) error {
	cmd := exec.Command(c.sshPath, c.forwardArgs(destination, forwards)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: forwarding sockets to %s: %v: %s",
			ErrTransport, destination, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Exec runs a remote shell command over the master connection,
// capturing output. Used for remote-side session setup.
func (c *Controller) Exec(destination, script string) error {
	cmd := exec.Command(c.sshPath, "-S", c.controlPath, destination, script)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: remote command on %s: %v: %s",
			ErrTransport, destination, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Run executes a remote command with an explicit environment,
// streaming the remote process's stdio to the local terminal without
// buffering or transformation. The returned error is the command's own
// failure (including its exit status), not a transport error.
func (c *Controller) Run(destination string, argv []string, env map[string]string, interactive bool) error {
	cmd := exec.Command(c.sshPath, c.runArgs(destination, argv, env, interactive)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (c *Controller) checkArgs(destination string) []string {
	return []string{"-O", "check", "-S", c.controlPath, destination}
}

func (c *Controller) exitArgs(destination string) []string {
	return []string{"-O", "exit", "-S", c.controlPath, destination}
}

func (c *Controller) startArgs(destination string, extraArgs []string) []string {
	args := []string{
		"-fNM",
		"-S", c.controlPath,
		"-A",
		"-o", "ServerAliveInterval=15",
		"-o", "ServerAliveCountMax=3",
	}
	args = append(args, extraArgs...)
	return append(args, destination)
}

func (c *Controller) forwardArgs(destination string, forwards []Forward) []string {
	args := []string{"-O", "forward", "-S", c.controlPath}
	for _, f := range forwards {
		if f.Reverse {
			args = append(args, "-R", f.Remote+":"+f.Local)
		} else {
			args = append(args, "-L", f.Local+":"+f.Remote)
		}
	}
	return append(args, destination)
}

func (c *Controller) runArgs(destination string, argv []string, env map[string]string, interactive bool) []string {
	args := []string{"-S", c.controlPath}
	if interactive {
		args = append(args, "-t")
	}
	args = append(args, destination, buildRemoteCommand(argv, env))
	return args
}

// buildRemoteCommand assembles the `env K=V... cmd args...` string the
// remote shell executes. Environment values are double-quoted so
// deliberate $HOME references expand remotely; command words are
// single-quoted verbatim.
func buildRemoteCommand(argv []string, env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	words := []string{"env"}
	for _, k := range keys {
		words = append(words, k+"="+weakQuote(env[k]))
	}
	for _, a := range argv {
		words = append(words, strongQuote(a))
	}
	return strings.Join(words, " ")
}

// weakQuote double-quotes s, escaping everything special except $ so
// variable references still expand in the remote shell.
func weakQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`")
	return `"` + r.Replace(s) + `"`
}

// strongQuote single-quotes s with no expansion at all.
func strongQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
