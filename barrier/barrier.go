package barrier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/codetango/internal/protocol/session"
	"github.com/danmuck/codetango/internal/snapshot"
)

var (
	ErrSocketUnset       = errors.New("barrier: " + session.EnvSocket + " environment variable not set")
	ErrProgramIDRequired = errors.New("barrier: program id required")
	ErrNotConnected      = errors.New("barrier: not connected")
)

// Config selects the coordinator endpoint and this participant's identity.
type Config struct {
	Address            string
	ProgramID          string
	Session            session.Config
	MaxConnectAttempts int
}

func DefaultConfig() Config {
	return Config{
		Session:            session.DefaultConfig(),
		MaxConnectAttempts: 1,
	}
}

// Barrier holds one participant's connection and its pending snapshot.
// Record blocks while a Wait is in flight; Close does not, and unblocks it.
type Barrier struct {
	mu        sync.Mutex
	programID string
	vars      *snapshot.Snapshot
	logger    zerolog.Logger

	connMu sync.Mutex
	conn   *session.Conn
}

// Connect reads the coordinator address from the environment and identifies as programID.
func Connect(programID string) (*Barrier, error) {
	addr := strings.TrimSpace(os.Getenv(session.EnvSocket))
	if addr == "" {
		return nil, ErrSocketUnset
	}
	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.ProgramID = programID
	return ConnectWithConfig(context.Background(), cfg)
}

// ConnectWithConfig dials cfg.Address and sends the identify message.
func ConnectWithConfig(ctx context.Context, cfg Config) (*Barrier, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrSocketUnset
	}
	if strings.TrimSpace(cfg.ProgramID) == "" {
		return nil, ErrProgramIDRequired
	}
	cfg.Session = cfg.Session.WithDefaults()

	conn, err := session.Dial(ctx, cfg.Address, cfg.Session, cfg.MaxConnectAttempts)
	if err != nil {
		return nil, fmt.Errorf("barrier: connect %q: %w", cfg.Address, err)
	}
	if err := conn.Send(session.Identify{ProgramID: cfg.ProgramID}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("barrier: send identify: %w", err)
	}
	return &Barrier{
		programID: cfg.ProgramID,
		conn:      conn,
		vars:      snapshot.New(),
		logger:    log.With().Str("program_id", cfg.ProgramID).Logger(),
	}, nil
}

func (b *Barrier) ProgramID() string {
	return b.programID
}

// Record stores value under name for the next barrier, replacing any earlier
// value recorded under the same name. Values that cannot be encoded as JSON are
// rejected here and never reach the coordinator.
func (b *Barrier) Record(name string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vars.Set(name, value)
}

func (b *Barrier) AddInt(name string, value int) error {
	return b.Record(name, value)
}

func (b *Barrier) AddFloat(name string, value float64) error {
	return b.Record(name, value)
}

func (b *Barrier) AddString(name string, value string) error {
	return b.Record(name, value)
}

func (b *Barrier) AddBool(name string, value bool) error {
	return b.Record(name, value)
}

func (b *Barrier) AddInts(name string, values []int) error {
	if values == nil {
		values = []int{}
	}
	return b.Record(name, values)
}

func (b *Barrier) AddFloats(name string, values []float64) error {
	if values == nil {
		values = []float64{}
	}
	return b.Record(name, values)
}

// Pending returns the names recorded since the last barrier.
func (b *Barrier) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vars.Names()
}

// Verdict submits the pending snapshot at barrierID and blocks for the
// coordinator's verdict. The snapshot is cleared once any response arrives,
// whether it reports success, failure, or cannot be parsed.
func (b *Barrier) Verdict(ctx context.Context, barrierID string) (session.Verdict, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conn := b.currentConn()
	if conn == nil {
		return session.Verdict{}, ErrNotConnected
	}
	sub := session.Submission{BarrierID: barrierID, Variables: b.vars}
	if err := sub.Validate(); err != nil {
		return session.Verdict{}, err
	}
	if err := conn.Send(sub); err != nil {
		return session.Verdict{}, fmt.Errorf("barrier: send submission: %w", err)
	}
	raw, err := conn.ReceiveContext(ctx)
	if err != nil {
		return session.Verdict{}, fmt.Errorf("barrier: receive verdict: %w", err)
	}
	b.vars.Reset()
	return session.DecodeVerdict(raw)
}

// Wait blocks at barrierID until both participants arrive and reports whether
// the coordinator found matching state. Transport and payload errors are
// logged and reported as false.
func (b *Barrier) Wait(ctx context.Context, barrierID string) bool {
	v, err := b.Verdict(ctx, barrierID)
	if err != nil {
		b.logger.Error().Err(err).Str("barrier_id", barrierID).Msg("barrier.Wait failed")
		return false
	}
	if !v.Success() {
		b.logger.Warn().Str("barrier_id", barrierID).Str("message", v.Message).Msg("barrier.Wait failed")
		return false
	}
	b.logger.Debug().Str("barrier_id", barrierID).Msg("barrier.Wait passed")
	return true
}

func (b *Barrier) currentConn() *session.Conn {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return b.conn
}

// Close drops the connection without notifying the coordinator. A Wait
// blocked on the connection returns false.
func (b *Barrier) Close() error {
	b.connMu.Lock()
	conn := b.conn
	b.conn = nil
	b.connMu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
