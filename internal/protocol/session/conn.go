package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

const (
	readChunkSize = 4096
	// overflowIdle is how long the peer must stay quiet before the tail of an
	// oversized message is considered drained.
	overflowIdle = 50 * time.Millisecond
)

var (
	ErrReceiveTimeout   = errors.New("session: receive timeout")
	ErrMalformedMessage = errors.New("session: malformed message")
	ErrMessageTooLarge  = errors.New("session: message too large")
	ErrConnClosed       = errors.New("session: connection closed")
)

// Conn frames JSON values over a stream connection.
// Send is safe for concurrent use; Receive must be called from one goroutine.
type Conn struct {
	raw     net.Conn
	cfg     Config
	pending []byte
	buf     []byte

	writeMu sync.Mutex
	closeMu sync.Once
}

func NewConn(raw net.Conn, cfg Config) *Conn {
	return &Conn{
		raw: raw,
		cfg: cfg.WithDefaults(),
		buf: make([]byte, readChunkSize),
	}
}

// Dial connects to the unix socket at path and retries refused or missing
// endpoints with backoff until ctx is done or attempts are exhausted.
func Dial(ctx context.Context, path string, cfg Config, maxAttempts int) (*Conn, error) {
	cfg = cfg.WithDefaults()
	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	var attempt int
	for {
		attempt++
		raw, err := dialer.DialContext(ctx, "unix", path)
		if err == nil {
			return NewConn(raw, cfg), nil
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, err
		}
		timer := time.NewTimer(NextBackoffDelay(cfg.Backoff, attempt, nil))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

func (c *Conn) Raw() net.Conn {
	return c.raw
}

// Send encodes v as one JSON value and writes it without a delimiter.
func (c *Conn) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.raw.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	if _, err := c.raw.Write(payload); err != nil {
		return err
	}
	return nil
}

// Receive returns the next complete JSON value. A timeout of zero blocks
// until a value arrives or the connection fails. ErrReceiveTimeout is a retry
// signal; buffered partial input is kept. ErrMalformedMessage drops the
// buffered input.
func (c *Conn) Receive(timeout time.Duration) (json.RawMessage, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.raw.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	return c.readLoop()
}

// ReceiveContext is Receive bounded by ctx instead of a timeout.
func (c *Conn) ReceiveContext(ctx context.Context) (json.RawMessage, error) {
	deadline, _ := ctx.Deadline()
	if err := c.raw.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.raw.SetReadDeadline(time.Now())
	})
	defer stop()
	msg, err := c.readLoop()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, ErrReceiveTimeout) {
		// the socket deadline can fire just ahead of ctx's own timer
		return nil, context.DeadlineExceeded
	}
	return msg, err
}

func (c *Conn) readLoop() (json.RawMessage, error) {
	for {
		msg, err := c.next()
		if err != nil || msg != nil {
			return msg, err
		}
		n, err := c.raw.Read(c.buf)
		if n > 0 {
			c.pending = append(c.pending, c.buf[:n]...)
			if len(c.pending) > c.cfg.MaxMessageSize {
				c.pending = nil
				c.discardUntilIdle()
				return nil, ErrMessageTooLarge
			}
		}
		if err == nil {
			continue
		}
		if n > 0 {
			if msg, nextErr := c.next(); nextErr != nil || msg != nil {
				return msg, nextErr
			}
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, ErrReceiveTimeout
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", ErrConnClosed, err)
		}
		return nil, err
	}
}

// discardUntilIdle drops the unread tail of an oversized message so it is not
// parsed as new input. It returns once no bytes arrive for overflowIdle or the
// connection fails; the next receive sets its own deadline.
func (c *Conn) discardUntilIdle() {
	for {
		if err := c.raw.SetReadDeadline(time.Now().Add(overflowIdle)); err != nil {
			return
		}
		if _, err := c.raw.Read(c.buf); err != nil {
			return
		}
	}
}

// next extracts one complete value from pending input, if any.
func (c *Conn) next() (json.RawMessage, error) {
	trimmed := bytes.TrimLeft(c.pending, " \t\r\n")
	if len(trimmed) == 0 {
		c.pending = c.pending[:0]
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var msg json.RawMessage
	if err := dec.Decode(&msg); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			c.pending = trimmed
			return nil, nil
		}
		c.pending = nil
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	rest := trimmed[dec.InputOffset():]
	c.pending = append([]byte(nil), rest...)
	return msg, nil
}

// Close closes the underlying connection once.
func (c *Conn) Close() error {
	var err error
	c.closeMu.Do(func() {
		err = c.raw.Close()
	})
	return err
}
