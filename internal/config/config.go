package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/codetango/internal/supervisor"
)

// File is the codetango.toml key mapping to run settings.
type File struct {
	Socket          string   `toml:"socket"`
	Timeout         int      `toml:"timeout"`
	Grace           string   `toml:"grace"`
	Verbose         bool     `toml:"verbose"`
	Strict          bool     `toml:"strict"`
	AdminAddr       string   `toml:"admin_addr"`
	LogLevel        string   `toml:"log_level"`
	Program1        []string `toml:"program1"`
	Program2        []string `toml:"program2"`
	ReceiveTimeout  string   `toml:"receive_timeout"`
	IdentifyTimeout string   `toml:"identify_timeout"`
	WriteTimeout    string   `toml:"write_timeout"`
	MaxMessageSize  int      `toml:"max_message_size"`
}

// Settings is a resolved run configuration.
type Settings struct {
	Supervisor supervisor.Config
	LogLevel   string
}

func Defaults() Settings {
	return Settings{Supervisor: supervisor.DefaultConfig()}
}

// Load overlays the keys defined in path onto base. Keys absent from the file
// keep base's values; unknown keys are rejected.
func Load(path string, base Settings) (Settings, error) {
	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Settings{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}

	cfg := base
	sup := &cfg.Supervisor
	if meta.IsDefined("socket") {
		sup.SocketPath = strings.TrimSpace(raw.Socket)
	}
	if meta.IsDefined("timeout") {
		if raw.Timeout <= 0 {
			return Settings{}, fmt.Errorf("config invalid (%s): timeout must be positive, got %d", path, raw.Timeout)
		}
		sup.AcceptTimeout = time.Duration(raw.Timeout) * time.Second
	}
	if meta.IsDefined("verbose") {
		sup.Verbose = raw.Verbose
	}
	if meta.IsDefined("strict") {
		sup.Strict = raw.Strict
	}
	if meta.IsDefined("admin_addr") {
		sup.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("program1") {
		sup.Program1 = raw.Program1
	}
	if meta.IsDefined("program2") {
		sup.Program2 = raw.Program2
	}
	if meta.IsDefined("max_message_size") {
		sup.Session.MaxMessageSize = raw.MaxMessageSize
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"grace", raw.Grace, &sup.Grace},
		{"receive_timeout", raw.ReceiveTimeout, &sup.Session.ReceiveTimeout},
		{"identify_timeout", raw.IdentifyTimeout, &sup.Session.IdentifyTimeout},
		{"write_timeout", raw.WriteTimeout, &sup.Session.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil || v <= 0 {
			return Settings{}, fmt.Errorf("config invalid (%s): %s: invalid duration %q", path, d.key, d.raw)
		}
		*d.dst = v
	}

	sup.Session = sup.Session.WithDefaults()
	return cfg, nil
}
