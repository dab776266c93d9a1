package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults
const (
	DefaultPort           = "8000"
	DefaultBindAddrs      = "0.0.0.0"
	DefaultWorkers        = 4
	DefaultSolveTimeout   = 2 * time.Minute
	DefaultMaxConstraints = 256
	DefaultLogLevel       = "info"
	DefaultLogBuffer      = 500
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string
	Port        string
	BindAddrs   string

	PushoverAppToken string
	PushoverUserKey  string

	SolverWorkers  int
	SolveTimeout   time.Duration
	MaxConstraints int
	Strict         bool

	LogLevel  string
	LogBuffer int

	errs []error
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		Port:             os.Getenv("PORT"),
		BindAddrs:        os.Getenv("BIND_ADDRS"),
		PushoverAppToken: os.Getenv("PUSHOVER_APP_TOKEN"),
		PushoverUserKey:  os.Getenv("PUSHOVER_USER_KEY"),
		LogLevel:         strings.ToLower(os.Getenv("LOG_LEVEL")),
	}

	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.BindAddrs == "" {
		cfg.BindAddrs = DefaultBindAddrs
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	cfg.SolverWorkers = cfg.intEnv("SOLVER_WORKERS", DefaultWorkers)
	cfg.MaxConstraints = cfg.intEnv("MAX_CONSTRAINTS", DefaultMaxConstraints)
	cfg.LogBuffer = cfg.intEnv("LOG_BUFFER", DefaultLogBuffer)
	cfg.SolveTimeout = cfg.durationEnv("SOLVE_TIMEOUT", DefaultSolveTimeout)
	cfg.Strict = cfg.boolEnv("STRICT", false)

	return cfg
}

// Validate reports malformed or out of range settings
func (c *Config) Validate() error {
	errs := append([]error(nil), c.errs...)
	if c.SolverWorkers < 1 {
		errs = append(errs, fmt.Errorf("SOLVER_WORKERS must be positive, got %d", c.SolverWorkers))
	}
	if c.SolveTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SOLVE_TIMEOUT must be positive, got %s", c.SolveTimeout))
	}
	if c.LogBuffer < 1 {
		errs = append(errs, fmt.Errorf("LOG_BUFFER must be positive, got %d", c.LogBuffer))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

// ListenAddrs returns host:port for every bind address
func (c *Config) ListenAddrs() []string {
	var addrs []string
	for _, addr := range strings.Split(c.BindAddrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		// IPv6 addresses need brackets
		if strings.Contains(addr, ":") && !strings.HasPrefix(addr, "[") {
			addr = "[" + addr + "]"
		}
		addrs = append(addrs, addr+":"+c.Port)
	}
	return addrs
}

func (c *Config) intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (c *Config) durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (c *Config) boolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
