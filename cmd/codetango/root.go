package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/danmuck/codetango/internal/config"
	"github.com/danmuck/codetango/internal/logging"
	"github.com/danmuck/codetango/internal/protocol/session"
	"github.com/danmuck/codetango/internal/supervisor"
)

const envPrefix = "CODETANGO"

var ErrUsage = errors.New("expected two commands: codetango [flags] -- <program1 ...> -- <program2 ...>")

// runFailedError reports a completed run whose final check did not pass. The
// console report has already said why.
type runFailedError struct{}

func (runFailedError) Error() string { return "barrier run failed" }

func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *viper.Viper) {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "codetango [flags] -- <program1 ...> -- <program2 ...>",
		Short: "Run two programs in lockstep and compare their state at barriers",
		Long: `codetango launches two programs, synchronizes them at named barriers,
and checks that the variables each recorded before a barrier match.

The two commands are separated with "--", or given as two quoted strings:

  codetango -v -- ./reference --size 10 -- ./candidate --size 10
  codetango "./reference --size 10" "./candidate --size 10"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(v, args)
			if err != nil {
				return err
			}
			logging.ConfigureRuntime()
			switch {
			case cfg.LogLevel != "":
				if !logging.SetLevel(cfg.LogLevel) {
					return fmt.Errorf("invalid log level %q", cfg.LogLevel)
				}
			case cfg.Supervisor.Verbose:
				logging.SetLevel("info")
			}
			cfg.Supervisor.Out = cmd.OutOrStdout()

			res, err := supervisor.New(cfg.Supervisor).Run(cmd.Context())
			if err != nil {
				return err
			}
			if !res.Passed {
				return runFailedError{}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.Int("timeout", 60, "Seconds to wait for both programs to connect")
	flags.BoolP("verbose", "v", false, "Print progress and pass program output through")
	flags.String("config", "", "Path to a TOML config file")
	flags.String("socket", session.DefaultSocketPath, "Unix socket path for the coordinator")
	flags.Bool("strict", false, "Also fail the run when variables differ at any barrier")
	flags.String("admin-addr", "", "Serve /health, /metrics and /barriers on this address")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error, off")
	flags.Duration("grace", 500*time.Millisecond, "Time between SIGTERM and SIGKILL during cleanup")
	bindFlags(v, flags)
	return cmd, v
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// resolveConfig layers defaults, the TOML file, environment and flags, in
// increasing precedence.
func resolveConfig(v *viper.Viper, args []string) (config.Settings, error) {
	cfg := config.Defaults()
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		loaded, err := config.Load(path, cfg)
		if err != nil {
			return config.Settings{}, err
		}
		cfg = loaded
	}

	sup := &cfg.Supervisor
	if v.IsSet("socket") {
		sup.SocketPath = strings.TrimSpace(v.GetString("socket"))
	}
	if v.IsSet("timeout") {
		seconds := v.GetInt("timeout")
		if seconds <= 0 {
			return config.Settings{}, fmt.Errorf("timeout must be a positive number of seconds, got %q", v.GetString("timeout"))
		}
		sup.AcceptTimeout = time.Duration(seconds) * time.Second
	}
	if v.IsSet("grace") {
		sup.Grace = v.GetDuration("grace")
	}
	if v.IsSet("verbose") {
		sup.Verbose = v.GetBool("verbose")
	}
	if v.IsSet("strict") {
		sup.Strict = v.GetBool("strict")
	}
	if v.IsSet("admin-addr") {
		sup.AdminAddr = strings.TrimSpace(v.GetString("admin-addr"))
	}
	if v.IsSet("log-level") {
		cfg.LogLevel = strings.TrimSpace(v.GetString("log-level"))
	}

	if len(args) > 0 {
		p1, p2, err := splitCommands(args)
		if err != nil {
			return config.Settings{}, err
		}
		sup.Program1, sup.Program2 = p1, p2
	}
	if len(sup.Program1) == 0 || len(sup.Program2) == 0 {
		return config.Settings{}, ErrUsage
	}
	return cfg, nil
}

// splitCommands accepts either "--"-separated argument groups or exactly two
// whitespace-separated command strings.
func splitCommands(args []string) ([]string, []string, error) {
	var groups [][]string
	var current []string
	separated := false
	for _, arg := range args {
		if arg == "--" {
			separated = true
			if len(current) > 0 {
				groups = append(groups, current)
			}
			current = nil
			continue
		}
		current = append(current, arg)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	if separated {
		if len(groups) != 2 {
			return nil, nil, ErrUsage
		}
		return groups[0], groups[1], nil
	}
	if len(args) != 2 {
		return nil, nil, ErrUsage
	}
	p1, p2 := strings.Fields(args[0]), strings.Fields(args[1])
	if len(p1) == 0 || len(p2) == 0 {
		return nil, nil, ErrUsage
	}
	return p1, p2, nil
}
