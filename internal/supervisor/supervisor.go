package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/codetango/internal/coordinator"
	"github.com/danmuck/codetango/internal/observability"
	"github.com/danmuck/codetango/internal/protocol/session"
)

// Config describes one supervised run.
type Config struct {
	Program1      []string
	Program2      []string
	SocketPath    string
	AcceptTimeout time.Duration
	Grace         time.Duration
	Verbose       bool
	// Strict also fails the run when any completed barrier had differences.
	Strict    bool
	AdminAddr string
	// Out receives the console report. Child output goes to ChildStdout and
	// ChildStderr when Verbose and is discarded otherwise.
	Out         io.Writer
	ChildStdout io.Writer
	ChildStderr io.Writer
	Launcher    Launcher
	Session     session.Config
}

func DefaultConfig() Config {
	return Config{
		SocketPath:    session.DefaultSocketPath,
		AcceptTimeout: 60 * time.Second,
		Grace:         500 * time.Millisecond,
		Out:           os.Stdout,
		ChildStdout:   os.Stdout,
		ChildStderr:   os.Stderr,
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
	if c.Grace <= 0 {
		c.Grace = def.Grace
	}
	if c.Out == nil {
		c.Out = def.Out
	}
	if c.Launcher == nil {
		l := ExecLauncher{}
		if c.Verbose {
			l.Stdout = c.ChildStdout
			l.Stderr = c.ChildStderr
		}
		c.Launcher = l
	}
	c.Session = c.Session.WithDefaults()
	return c
}

// Exit is one participant's exit status.
type Exit struct {
	ProgramID string `json:"program_id"`
	Code      int    `json:"code"`
}

// Result summarizes a finished run.
type Result struct {
	RunID      string                      `json:"run_id"`
	Sequence   []string                    `json:"sequence"`
	Missing    []string                    `json:"missing,omitempty"`
	Mismatches []string                    `json:"mismatches,omitempty"`
	Exits      []Exit                      `json:"exits"`
	Records    []coordinator.BarrierRecord `json:"records"`
	Reached    bool                        `json:"reached"`
	Passed     bool                        `json:"passed"`
}

// Supervisor owns the coordinator and both participant processes for a run.
type Supervisor struct {
	cfg     Config
	runID   string
	logger  zerolog.Logger
	cleanup *CleanupManager
	procs   []*Process
}

func New(cfg Config) *Supervisor {
	cfg = cfg.WithDefaults()
	runID := uuid.NewString()
	return &Supervisor{
		cfg:     cfg,
		runID:   runID,
		logger:  observability.RunLogger(runID),
		cleanup: NewCleanupManager(),
	}
}

func (s *Supervisor) RunID() string {
	return s.runID
}

// Run launches both participants and blocks until both have exited or ctx is
// done. Cleanup runs on every return path. A non-nil error means the run was
// aborted; otherwise Result.Passed carries the verdict.
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: s.runID}
	defer func() {
		if err := s.cleanup.Cleanup(); err != nil {
			s.logger.Warn().Err(err).Msg("supervisor.Run cleanup failed")
		}
	}()

	coord := coordinator.NewWithConfig(coordinator.Config{
		SocketPath:    s.cfg.SocketPath,
		AcceptTimeout: s.cfg.AcceptTimeout,
		Verbose:       s.cfg.Verbose,
		Out:           s.cfg.Out,
		Observer:      observability.NewBarrierMetrics(),
		Logger:        &s.logger,
		Session:       s.cfg.Session,
	})
	if err := coord.Listen(); err != nil {
		return res, err
	}
	s.cleanup.RegisterCallback("coordinator", coord.Close)

	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		router := observability.NewAdminRouter(coord, s.runID, s.logger)
		admin, err := observability.StartAdmin(addr, router, s.logger)
		if err != nil {
			return res, fmt.Errorf("supervisor: admin listener: %w", err)
		}
		s.cleanup.RegisterCallback("admin", func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}

	if err := s.launch(coord); err != nil {
		return res, err
	}

	if err := coord.Accept(ctx); err != nil {
		switch {
		case errors.Is(err, coordinator.ErrAcceptTimeout):
			fmt.Fprintf(s.cfg.Out, "Timeout waiting for program connections after %s\n", s.cfg.AcceptTimeout)
		case ctx.Err() != nil:
			fmt.Fprintln(s.cfg.Out, "\nInterrupted by user")
		}
		return res, err
	}
	coord.Serve()

	for _, p := range s.procs {
		code, err := p.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(s.cfg.Out, "\nInterrupted by user")
				return res, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("program_id", p.ID).Msg("supervisor.Run wait failed")
		}
		res.Exits = append(res.Exits, Exit{ProgramID: p.ID, Code: code})
		s.logger.Debug().Str("program_id", p.ID).Int("code", code).Msg("supervisor.Run participant exited")
		if s.cfg.Verbose {
			fmt.Fprintf(s.cfg.Out, "%s exited with code %d\n", p.ID, code)
		}
	}

	res.Sequence = coord.Sequence()
	res.Records = coord.Records()
	res.Reached, res.Missing = coord.Reached()
	res.Mismatches = coord.Mismatches()
	res.Passed = res.Reached && (!s.cfg.Strict || len(res.Mismatches) == 0)
	s.report(res)
	return res, nil
}

func (s *Supervisor) launch(coord *coordinator.Coordinator) error {
	env := []string{session.EnvSocket + "=" + coord.SocketPath()}
	commands := [2][]string{s.cfg.Program1, s.cfg.Program2}
	for i, id := range coordinator.Participants {
		p, err := s.cfg.Launcher.Launch(id, commands[i], env)
		if err != nil {
			return err
		}
		s.procs = append(s.procs, p)
		s.cleanup.RegisterCallback("terminate "+id, func() error {
			return p.Terminate(s.cfg.Grace)
		})
		if err := coord.Register(id, p); err != nil {
			return err
		}
		s.logger.Info().Str("program_id", id).Int("pid", p.Pid()).Msg("supervisor.launch started")
		if s.cfg.Verbose {
			fmt.Fprintf(s.cfg.Out, "Launched %s: %s\n", id, strings.Join(commands[i], " "))
		}
	}
	return nil
}
