// Package config loads the ambient settings bdswatch needs beyond the
// compiled-in hook table: log level, the advisory lock directory, and which
// transports to start. It never carries breakpoint addresses or a build
// version — those stay a Go constant, same as the hook table itself.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// HTTPConfig configures the chi-routed HTTP transport.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// GRPCConfig configures the gRPC streaming transport.
type GRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TransportsConfig enumerates which sinks the publisher fans out to.
type TransportsConfig struct {
	Stdout bool       `yaml:"stdout"`
	HTTP   HTTPConfig `yaml:"http"`
	GRPC   GRPCConfig `yaml:"grpc"`
}

// Config is the root of the YAML file pointed to by -config.
type Config struct {
	LogLevel   string           `yaml:"logLevel"`
	LockDir    string           `yaml:"lockDir"`
	Transports TransportsConfig `yaml:"transports"`
}

// defaults mirrors the YAML block documented in SPEC_FULL.md §3.
func defaults() Config {
	return Config{
		LogLevel: "info",
		LockDir:  "/var/run/bdswatch",
		Transports: TransportsConfig{
			Stdout: true,
			HTTP:   HTTPConfig{Enabled: false, Addr: ":8080"},
			GRPC:   GRPCConfig{Enabled: false, Addr: ":9090"},
		},
	}
}

// Load reads and validates the YAML config at path. An empty path yields the
// defaults unmodified — there is no required configuration file.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults and validates the result.
// Callers who already have the YAML in memory (tests, embedded defaults)
// should use this directly.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	// An empty document decodes to io.EOF; it leaves the defaults in place.
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if errs := Validate(&cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	return &cfg, nil
}

var validLogLevels = map[string]struct{}{
	"panic": {}, "fatal": {}, "error": {}, "warn": {}, "info": {}, "debug": {}, "trace": {},
}

// Validate checks cfg for semantic errors, returning all of them at once.
func Validate(cfg *Config) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := validLogLevels[cfg.LogLevel]; !ok {
		add("logLevel %q is invalid; must be one of panic, fatal, error, warn, info, debug, trace", cfg.LogLevel)
	}
	if cfg.LockDir == "" {
		add("lockDir must not be empty")
	}
	if cfg.Transports.HTTP.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Transports.HTTP.Addr); err != nil {
			add("transports.http.addr %q is not a valid host:port address: %v", cfg.Transports.HTTP.Addr, err)
		}
	}
	if cfg.Transports.GRPC.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Transports.GRPC.Addr); err != nil {
			add("transports.grpc.addr %q is not a valid host:port address: %v", cfg.Transports.GRPC.Addr, err)
		}
	}

	return errs
}
