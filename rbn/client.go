// Package rbn connects to the Reverse Beacon Network telnet feed, logs in with
// a callsign, and drives the frame -> filter -> sink loop for one connection.
//
// There is no reconnect: the run ends when the peer closes, the idle read
// deadline expires, or the caller cancels the context.
package rbn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ziutek/telnet"
)

const (
	DefaultHost         = "telnet.reversebeacon.net"
	DefaultPort         = 7000
	DefaultDialTimeout  = 30 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
	DefaultLoginTimeout = 10 * time.Second
	DefaultLoginPrompt  = "call:"
)

// Options configures one feed connection.
type Options struct {
	Host          string
	Port          int
	Callsign      string        // Sent once, newline-terminated, after the login prompt
	DialTimeout   time.Duration // TCP connect timeout
	IdleTimeout   time.Duration // Read deadline refreshed before every read; expiry ends the run
	LoginTimeout  time.Duration // How long to wait for LoginPrompt before sending the callsign anyway
	LoginPrompt   string        // Empty sends the callsign immediately
	MaxLineLength int
}

// Client represents one RBN telnet session.
type Client struct {
	opts      Options
	conn      *telnet.Conn
	closeOnce sync.Once
}

// NewClient creates a new RBN client, filling zero-valued options with defaults.
func NewClient(opts Options) *Client {
	if strings.TrimSpace(opts.Host) == "" {
		opts.Host = DefaultHost
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = DefaultLoginTimeout
	}
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}
	opts.Callsign = strings.ToUpper(strings.TrimSpace(opts.Callsign))
	return &Client{opts: opts}
}

// Addr returns host:port of the feed.
func (c *Client) Addr() string {
	return net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

// Connect dials the feed and performs the login. Any failure is returned and
// the caller is expected to give up.
func (c *Client) Connect(ctx context.Context) error {
	if c.opts.Callsign == "" {
		return errors.New("rbn: callsign is required")
	}
	addr := c.Addr()
	log.Printf("RBN: connecting to %s...", addr)

	dialer := net.Dialer{Timeout: c.opts.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	conn, err := telnet.NewConn(raw)
	if err != nil {
		raw.Close()
		return fmt.Errorf("telnet wrap %s: %w", addr, err)
	}
	c.conn = conn
	log.Printf("RBN: connection established")

	if err := c.login(); err != nil {
		c.Close()
		return err
	}
	return nil
}

// login waits for the prompt (tolerating a timeout) and sends the callsign line.
func (c *Client) login() error {
	if prompt := c.opts.LoginPrompt; prompt != "" {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.LoginTimeout)); err != nil {
			return fmt.Errorf("set login deadline: %w", err)
		}
		if err := c.conn.SkipUntil(prompt); err != nil {
			if !isTimeout(err) {
				return fmt.Errorf("wait for login prompt: %w", err)
			}
			log.Printf("RBN: no %q prompt within %s; sending callsign anyway", prompt, c.opts.LoginTimeout)
		}
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return fmt.Errorf("clear login deadline: %w", err)
		}
	}

	// Unix write mode turns the LF into the CRLF telnet servers expect.
	c.conn.SetUnixWriteMode(true)
	if _, err := c.conn.Write([]byte(c.opts.Callsign + "\n")); err != nil {
		return fmt.Errorf("send login: %w", err)
	}
	log.Printf("Logging in to RBN as %s", c.opts.Callsign)
	return nil
}

// Run frames and filters the feed until it ends. Stream end and context
// cancellation return nil; transport and sink failures are returned.
func (c *Client) Run(ctx context.Context, loop *Loop) error {
	if c.conn == nil {
		return errors.New("rbn: not connected")
	}
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()
	defer c.Close()

	framer := NewLineFramer(&idleReader{conn: c.conn, timeout: c.opts.IdleTimeout}, c.opts.MaxLineLength)
	return loop.Process(ctx, framer)
}

// Close releases the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

type deadlineReader interface {
	Read(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
}

// idleReader refreshes the read deadline before every read so only a silent
// feed times out.
type idleReader struct {
	conn    deadlineReader
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}
	return r.conn.Read(p)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
