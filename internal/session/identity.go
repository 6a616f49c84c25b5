// Package session implements the session lifecycle: destination
// identity derivation, resource path layout, companion process
// supervision and reconciliation, and the attach/detach/run
// orchestration on top of the ssh transport.
package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrConfiguration indicates that the destination's connection
// parameters could not be resolved.
var ErrConfiguration = errors.New("destination resolution failed")

// Identity is the hex-encoded digest that namespaces every resource of
// a (local user, remote destination) session.
type Identity string

func (id Identity) String() string { return string(id) }

// resolvedDestination holds the connection parameters ssh resolved for
// a destination, after applying its config files and defaults.
type resolvedDestination struct {
	Host      string
	Port      string
	User      string
	ProxyJump string
}

// Deriver computes session identities from resolved ssh parameters.
type Deriver struct {
	sshPath string
}

func NewDeriver() *Deriver {
	return &Deriver{sshPath: "ssh"}
}

// Derive resolves the destination's effective connection parameters
// with `ssh -G` and digests them together with the local hostname.
// Aliases that resolve to the same endpoint yield the same identity;
// any difference in resolved parameters yields a different one.
func (d *Deriver) Derive(destination string, sshArgs []string) (Identity, error) {
	args := append([]string{"-G"}, sshArgs...)
	args = append(args, destination)

	cmd := exec.Command(d.sshPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: ssh -G %s: %v: %s",
			ErrConfiguration, destination, err, strings.TrimSpace(stderr.String()))
	}

	resolved := parseResolvedDestination(string(out))
	localHost, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("%w: local hostname: %v", ErrConfiguration, err)
	}

	return digestIdentity(localHost, resolved), nil
}

// parseResolvedDestination extracts the connection parameters from
// `ssh -G` output. Each line is a lowercase keyword followed by its
// value; absent keywords leave the field empty.
func parseResolvedDestination(output string) resolvedDestination {
	var r resolvedDestination
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}
		switch key {
		case "hostname":
			r.Host = value
		case "port":
			r.Port = value
		case "user":
			r.User = value
		case "proxyjump":
			r.ProxyJump = value
		}
	}
	return r
}

// digestIdentity hashes the local hostname and the resolved connection
// parameters into the session identity. Fields are joined with a NUL
// separator so adjacent fields cannot be confused.
func digestIdentity(localHost string, r resolvedDestination) Identity {
	input := strings.Join([]string{localHost, r.Host, r.Port, r.User, r.ProxyJump}, "\x00")
	sum := blake3.Sum256([]byte(input))
	return Identity(hex.EncodeToString(sum[:]))
}
