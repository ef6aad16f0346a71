package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/danmuck/codetango/internal/protocol/session"
)

var (
	ErrAcceptTimeout        = errors.New("coordinator: timed out waiting for participant connections")
	ErrUnknownParticipant   = errors.New("coordinator: unknown participant")
	ErrDuplicateParticipant = errors.New("coordinator: participant already connected")
	ErrNotListening         = errors.New("coordinator: not listening")
	ErrClosed               = errors.New("coordinator: closed")
)

// Liveness reports whether a participant's process is still running.
type Liveness interface {
	Alive() bool
}

type LivenessFunc func() bool

func (f LivenessFunc) Alive() bool { return f() }

type participant struct {
	id      string
	conn    *session.Conn
	live    Liveness
	serving bool
	done    bool
}

// Coordinator pairs barrier submissions from two participants.
// One mutex guards participants, records, and the sequence.
type Coordinator struct {
	cfg    Config
	logger zerolog.Logger

	mu           sync.Mutex
	participants map[string]*participant
	records      map[string]*barrierRecord
	order        []string
	sequence     []string
	inSequence   map[string]struct{}
	closed       bool

	ln *net.UnixListener

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	outMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func New() *Coordinator {
	return NewWithConfig(DefaultConfig())
}

func NewWithConfig(cfg Config) *Coordinator {
	cfg = cfg.WithDefaults()
	c := &Coordinator{
		cfg:          cfg,
		logger:       cfg.Logger.With().Str("component", "coordinator").Logger(),
		participants: make(map[string]*participant, len(Participants)),
		records:      make(map[string]*barrierRecord),
		inSequence:   make(map[string]struct{}),
		conns:        make(map[net.Conn]struct{}),
	}
	for _, id := range Participants {
		c.participants[id] = &participant{id: id}
	}
	return c
}

func (c *Coordinator) SocketPath() string {
	return c.cfg.SocketPath
}

// Listen removes any stale socket file at the configured path and binds it.
func (c *Coordinator) Listen() error {
	path := c.cfg.SocketPath
	if err := os.Remove(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("coordinator: remove stale socket %q: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return fmt.Errorf("coordinator: listen %q: %w", path, err)
	}
	ln.SetUnlinkOnClose(false)

	c.mu.Lock()
	closed := c.closed
	if !closed {
		c.ln = ln
	}
	c.mu.Unlock()
	if closed {
		_ = ln.Close()
		_ = os.Remove(path)
		return ErrClosed
	}
	c.logger.Info().Str("socket", path).Msg("coordinator.Listen listening")
	if c.cfg.Verbose {
		c.printf("Socket server listening at %s\n", path)
	}
	return nil
}

// Accept identifies connections until both participants are known. The whole
// phase is bounded by the accept timeout; running out is ErrAcceptTimeout.
// Connections that identify as an unknown or already-claimed participant, or
// that send a malformed identify, are closed and do not count.
func (c *Coordinator) Accept(ctx context.Context) error {
	c.mu.Lock()
	ln, closed := c.ln, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if ln == nil {
		return ErrNotListening
	}

	deadline := time.Now().Add(c.cfg.AcceptTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ln.SetDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = ln.SetDeadline(time.Now())
	})
	defer stop()
	defer func() { _ = ln.SetDeadline(time.Time{}) }()

	for !c.allIdentified() {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return fmt.Errorf("%w after %s", ErrAcceptTimeout, c.cfg.AcceptTimeout)
			}
			if errors.Is(err, net.ErrClosed) {
				return ErrClosed
			}
			return fmt.Errorf("coordinator: accept: %w", err)
		}
		c.identify(raw, deadline)
	}
	return nil
}

func (c *Coordinator) identify(raw net.Conn, deadline time.Time) {
	c.trackConn(raw)
	conn := session.NewConn(raw, c.cfg.Session)

	window := time.Until(deadline)
	if window > c.cfg.Session.IdentifyTimeout {
		window = c.cfg.Session.IdentifyTimeout
	}
	if window <= 0 {
		c.drop(raw)
		return
	}
	msg, err := conn.Receive(window)
	if err != nil {
		c.logger.Warn().Err(err).Msg("coordinator.identify read failed")
		c.drop(raw)
		return
	}
	hello, err := session.DecodeIdentify(msg)
	if err != nil {
		c.logger.Warn().Err(err).Msg("coordinator.identify rejected")
		c.drop(raw)
		return
	}
	if err := c.bind(hello.ProgramID, conn); err != nil {
		c.logger.Warn().Err(err).Str("program_id", hello.ProgramID).Msg("coordinator.identify rejected")
		if errors.Is(err, ErrUnknownParticipant) {
			c.printf("Warning: Unknown program ID: %s\n", hello.ProgramID)
		}
		c.drop(raw)
		return
	}
	c.untrackConn(raw)
	c.logger.Info().Str("program_id", hello.ProgramID).Msg("coordinator.identify connected")
	if c.cfg.Verbose {
		c.printf("Connection established with %s\n", hello.ProgramID)
	}
}

func (c *Coordinator) bind(id string, conn *session.Conn) error {
	if !isParticipant(id) {
		return fmt.Errorf("%w: %q", ErrUnknownParticipant, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	p := c.participants[id]
	if p.conn != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateParticipant, id)
	}
	p.conn = conn
	return nil
}

func (c *Coordinator) allIdentified() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range Participants {
		if c.participants[id].conn == nil {
			return false
		}
	}
	return true
}

// Register binds a liveness probe to a participant. A participant without a
// probe is treated as alive.
func (c *Coordinator) Register(id string, live Liveness) error {
	if !isParticipant(id) {
		return fmt.Errorf("%w: %q", ErrUnknownParticipant, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participants[id].live = live
	return nil
}

// Serve starts one handler per identified participant and returns. Handlers
// run until their participant exits or disconnects and are not joined.
func (c *Coordinator) Serve() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range Participants {
		p := c.participants[id]
		if p.conn == nil || p.serving || c.closed {
			continue
		}
		p.serving = true
		go c.handle(p)
	}
}

// Close closes every connection and the listener and unlinks the socket
// file. Safe to call more than once.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		var result *multierror.Error

		c.mu.Lock()
		c.closed = true
		ln := c.ln
		for _, id := range Participants {
			if p := c.participants[id]; p.conn != nil {
				if err := p.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
					result = multierror.Append(result, err)
				}
			}
		}
		c.mu.Unlock()

		c.closeAllConns()
		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				result = multierror.Append(result, err)
			}
		}
		if err := os.Remove(c.cfg.SocketPath); err != nil && !errors.Is(err, unix.ENOENT) {
			result = multierror.Append(result, err)
		}
		c.closeErr = result.ErrorOrNil()
	})
	return c.closeErr
}

func (c *Coordinator) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.cfg.Out, format, args...)
}

func (c *Coordinator) drop(conn net.Conn) {
	c.untrackConn(conn)
	_ = conn.Close()
}

func (c *Coordinator) trackConn(conn net.Conn) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	c.conns[conn] = struct{}{}
}

func (c *Coordinator) untrackConn(conn net.Conn) {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	delete(c.conns, conn)
}

// closeAllConns closes connections still in the identify phase.
func (c *Coordinator) closeAllConns() {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()
	for conn := range c.conns {
		_ = conn.Close()
		delete(c.conns, conn)
	}
}
