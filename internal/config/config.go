// Package config loads the service configuration. Precedence, highest
// first: command-line flags, environment variables (REVISE_ prefix), YAML
// config file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config is the full service configuration.
type Config struct {
	Server    Server    `koanf:"server"`
	Database  Database  `koanf:"database"`
	Session   Session   `koanf:"session"`
	Scheduler Scheduler `koanf:"scheduler"`
	Sync      Sync      `koanf:"sync"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `koanf:"addr" validate:"required"`
}

// Database configures the SQLite store.
type Database struct {
	Path string `koanf:"path" validate:"required"`
}

// Session configures study-session defaults.
type Session struct {
	Limit  int    `koanf:"limit" validate:"gt=0"`
	Policy string `koanf:"policy" validate:"oneof=sm2 leitner"`
}

// Scheduler exposes the algorithm constants. The defaults follow the
// standard SM-2 publication; they are tunable because the true backend
// behavior of a deployment may differ.
type Scheduler struct {
	MinEase         float64 `koanf:"minease" validate:"gte=1"`
	MasteryReps     int     `koanf:"masteryreps" validate:"gt=0"`
	MasteryInterval int     `koanf:"masteryinterval" validate:"gt=0"`
	MaxInterval     int     `koanf:"maxinterval" validate:"gt=0"`
	LeitnerMaxBox   int     `koanf:"leitnermaxbox" validate:"gt=0"`
}

// Sync configures deck-source reconciliation.
type Sync struct {
	ReposDir string `koanf:"reposdir" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   Server{Addr: ":8484"},
		Database: Database{Path: "revise.db"},
		Session:  Session{Limit: 20, Policy: "sm2"},
		Scheduler: Scheduler{
			MinEase:         1.3,
			MasteryReps:     5,
			MasteryInterval: 21,
			MaxInterval:     365,
			LeitnerMaxBox:   7,
		},
		Sync: Sync{ReposDir: "repos"},
	}
}

// defaults feeds the built-in configuration into koanf so later providers
// override it key by key, and so posflag can tell an untouched flag from a
// set one.
func defaults() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"server.addr":               d.Server.Addr,
		"database.path":             d.Database.Path,
		"session.limit":             d.Session.Limit,
		"session.policy":            d.Session.Policy,
		"scheduler.minease":         d.Scheduler.MinEase,
		"scheduler.masteryreps":     d.Scheduler.MasteryReps,
		"scheduler.masteryinterval": d.Scheduler.MasteryInterval,
		"scheduler.maxinterval":     d.Scheduler.MaxInterval,
		"scheduler.leitnermaxbox":   d.Scheduler.LeitnerMaxBox,
		"sync.reposdir":             d.Sync.ReposDir,
	}
}

// Load layers the YAML file at configPath (skipped when empty or missing),
// REVISE_-prefixed environment variables and the given flag set over the
// defaults, then validates the result.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	// REVISE_SERVER_ADDR -> server.addr
	err := k.Load(env.Provider("REVISE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "REVISE_")), "_", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
