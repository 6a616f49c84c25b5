// Package sshserver provides an in-process SSH server for transport
// tests. It supports public key authentication, session channels (for
// the -N master connection) and the streamlocal global requests issued
// for reverse unix-socket forwards.
//
// The server writes an SSH config file for `ssh -F` so the system ssh
// binary can connect without touching the user's configuration.
package sshserver

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Server is an in-process SSH server for testing.
type Server struct {
	t    testing.TB
	user string
	keys []ssh.PublicKey

	config   *ssh.ServerConfig
	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}

	sshConfigPath string
	alias         string
}

// New creates a test SSH server accepting the given user and public
// keys. Call Start() to begin listening.
func New(t testing.TB, user string, keys ...ssh.PublicKey) *Server {
	t.Helper()
	if user == "" {
		t.Fatal("sshserver: user is required")
	}
	return &Server{
		t:    t,
		user: user,
		keys: keys,
		done: make(chan struct{}),
	}
}

// Start begins listening on a random port and writes the SSH config.
func (s *Server) Start() {
	s.t.Helper()

	s.config = &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() != s.user {
				return nil, fmt.Errorf("unknown user %q", conn.User())
			}
			marshaled := key.Marshal()
			for _, authorized := range s.keys {
				if bytes.Equal(marshaled, authorized.Marshal()) {
					return nil, nil
				}
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	s.config.AddHostKey(generateHostKey(s.t))

	var err error
	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Fatalf("sshserver: failed to listen: %v", err)
	}

	s.alias = fmt.Sprintf("test-%d", s.Port())
	s.writeSSHConfig(s.t.TempDir())

	s.wg.Add(1)
	go s.acceptLoop()
}

// Stop closes the listener and waits for all connections to finish.
func (s *Server) Stop() {
	close(s.done)
	s.listener.Close()
	s.wg.Wait()
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// SSHConfigPath returns the path to the generated SSH config file.
func (s *Server) SSHConfigPath() string {
	return s.sshConfigPath
}

// Alias returns the SSH config host alias.
func (s *Server) Alias() string {
	return s.alias
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		s.t.Logf("sshserver: handshake failed: %v", err)
		return
	}
	defer sshConn.Close()

	go s.handleGlobalRequests(reqs)

	for {
		select {
		case <-s.done:
			return
		case newChan, ok := <-chans:
			if !ok {
				return
			}
			if newChan.ChannelType() == "session" {
				s.wg.Add(1)
				go s.handleSession(newChan)
			} else {
				newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			}
		}
	}
}

// handleGlobalRequests accepts keepalives and the streamlocal forward
// registrations a `ssh -O forward -R` issues for unix sockets.
func (s *Server) handleGlobalRequests(reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "keepalive@openssh.com",
			"no-more-sessions@openssh.com",
			"streamlocal-forward@openssh.com",
			"cancel-streamlocal-forward@openssh.com":
			if req.WantReply {
				req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func (s *Server) handleSession(newChan ssh.NewChannel) {
	defer s.wg.Done()

	ch, reqs, err := newChan.Accept()
	if err != nil {
		s.t.Logf("sshserver: failed to accept session: %v", err)
		return
	}
	defer ch.Close()

	go func() {
		for req := range reqs {
			switch req.Type {
			case "env", "shell", "exec", "pty-req":
				if req.WantReply {
					req.Reply(true, nil)
				}
				if req.Type == "exec" {
					// Pretend the command succeeded immediately
					ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
					ch.Close()
				}
			default:
				if req.WantReply {
					req.Reply(false, nil)
				}
			}
		}
	}()

	// Block until the server is stopped (supports -N mode)
	<-s.done
}

func (s *Server) writeSSHConfig(dir string) {
	s.sshConfigPath = filepath.Join(dir, "ssh_config")

	config := fmt.Sprintf(`Host %s
    HostName 127.0.0.1
    Port %d
    User %s
    StrictHostKeyChecking no
    UserKnownHostsFile /dev/null
    IdentitiesOnly yes
    BatchMode yes
    LogLevel ERROR
`, s.alias, s.Port(), s.user)

	if err := os.WriteFile(s.sshConfigPath, []byte(config), 0600); err != nil {
		s.t.Fatalf("sshserver: failed to write SSH config: %v", err)
	}
}

func generateHostKey(t testing.TB) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshserver: failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("sshserver: failed to create signer: %v", err)
	}
	return signer
}

// GenerateClientKeyPair generates a temporary ED25519 keypair, writes
// the private key into dir and returns the public key plus the private
// key path for use with IdentityFile.
func GenerateClientKeyPair(t testing.TB, dir string) (ssh.PublicKey, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshserver: failed to generate client key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("sshserver: failed to create client signer: %v", err)
	}

	keyPath := filepath.Join(dir, "id_ed25519_test")
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("sshserver: failed to marshal private key: %v", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("sshserver: failed to write private key: %v", err)
	}

	return signer.PublicKey(), keyPath
}
