// Package control speaks the line-delimited request/response protocol
// of the wprsc control socket: one ASCII command plus newline out, one
// JSON line back, one exchange per connection.
package control

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrProtocol indicates the control channel was reachable but
	// returned an error status or malformed data.
	ErrProtocol = errors.New("control protocol error")

	// ErrConnection indicates the control channel never became
	// reachable within the retry budget.
	ErrConnection = errors.New("control channel unreachable")
)

// Capabilities describes the optional features the live session
// supports.
type Capabilities struct {
	// Xwayland reports whether the legacy-X11 compatibility layer is
	// available, gating the DISPLAY variable for remote commands.
	Xwayland bool `json:"xwayland"`
}

// response is the single-line reply: a status tag and a payload string
// that itself carries JSON when the status is Ok.
type response struct {
	Status  string `json:"status"`
	Payload string `json:"payload"`
}

const capsCommand = "caps"

// Client queries the companion's control socket. The socket may not
// exist yet right after the companion starts, so dialing retries a
// bounded number of times with a fixed delay.
type Client struct {
	socketPath string
	retries    int // additional attempts after the first
	retryDelay time.Duration

	dial  func(path string) (net.Conn, error)
	sleep func(d time.Duration)
}

func NewClient(socketPath string, retries int, retryDelay time.Duration) *Client {
	return &Client{
		socketPath: socketPath,
		retries:    retries,
		retryDelay: retryDelay,
		dial: func(path string) (net.Conn, error) {
			return net.Dial("unix", path)
		},
		sleep: time.Sleep,
	}
}

// QueryCapabilities fetches the capability descriptor. A nil
// descriptor with nil error means the companion reported no capability
// data (an explicitly null payload).
func (c *Client) QueryCapabilities() (*Capabilities, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(capsCommand + "\n")); err != nil {
		return nil, fmt.Errorf("%w: writing request: %v", ErrProtocol, err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("%w: reading response: %v", ErrProtocol, err)
	}

	var resp response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrProtocol, err)
	}
	if resp.Status != "Ok" {
		return nil, fmt.Errorf("%w: %s: %s", ErrProtocol, resp.Status, resp.Payload)
	}

	payload := strings.TrimSpace(resp.Payload)
	if payload == "" || payload == "null" {
		// The companion is reachable but knows no capabilities yet.
		return nil, nil
	}

	var caps Capabilities
	if err := json.Unmarshal([]byte(payload), &caps); err != nil {
		return nil, fmt.Errorf("%w: malformed capability payload: %v", ErrProtocol, err)
	}
	return &caps, nil
}

// connect dials the control socket, retrying not-ready failures
// (socket missing or refusing) with a fixed delay between attempts.
func (c *Client) connect() (net.Conn, error) {
	attempts := c.retries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		conn, err := c.dial(c.socketPath)
		if err == nil {
			return conn, nil
		}
		if !retryable(err) {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		lastErr = err
		if i < attempts-1 {
			slog.Debug("Control socket not ready, retrying", "attempt", i+1, "error", err)
			c.sleep(c.retryDelay)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrConnection, attempts, lastErr)
}

// retryable reports whether a dial failure means the companion has not
// created its socket yet.
func retryable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, fs.ErrNotExist)
}
