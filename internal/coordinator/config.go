package coordinator

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/codetango/internal/protocol/session"
)

const (
	ProgramOne = "program1"
	ProgramTwo = "program2"
)

// Participants lists the two identities in registration order. The first is
// the sequence reference.
var Participants = [2]string{ProgramOne, ProgramTwo}

// Config configures the listener and per-participant handlers.
type Config struct {
	SocketPath    string
	AcceptTimeout time.Duration
	Verbose       bool
	// Out receives console diagnostics: diff summaries and, when Verbose,
	// progress lines.
	Out      io.Writer
	Observer Observer
	Logger   *zerolog.Logger
	Session  session.Config
}

func DefaultConfig() Config {
	return Config{
		SocketPath:    session.DefaultSocketPath,
		AcceptTimeout: 60 * time.Second,
		Out:           os.Stdout,
		Session:       session.DefaultConfig(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.SocketPath) == "" {
		c.SocketPath = def.SocketPath
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = def.AcceptTimeout
	}
	if c.Out == nil {
		c.Out = def.Out
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Logger == nil {
		c.Logger = &log.Logger
	}
	c.Session = c.Session.WithDefaults()
	return c
}

// Observer receives barrier events. Calls are made with the coordinator lock
// held and must not block.
type Observer interface {
	Arrived(programID, barrierID string)
	Completed(barrierID string, differences int)
	Malformed(programID string)
}

type nopObserver struct{}

func (nopObserver) Arrived(string, string) {}
func (nopObserver) Completed(string, int)  {}
func (nopObserver) Malformed(string)       {}

func isParticipant(id string) bool {
	return id == Participants[0] || id == Participants[1]
}
