// Package config loads the ingress server's runtime configuration from the
// environment via godotenv.Load followed by env.Parse.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the ingress server's lifecycle, connection gate,
// and ambient stack need at startup. Processor registration and route
// wiring happen in code (cmd/eventmeshd), not through config.
type Config struct {
	// Network
	Addr       string `env:"EVENTMESH_HTTP_ADDR"       envDefault:":10105"`
	ServerIP   string `env:"EVENTMESH_HTTP_SERVER_IP"   envDefault:"127.0.0.1"`
	TLSEnabled bool   `env:"EVENTMESH_HTTP_TLS_ENABLED" envDefault:"false"`

	// Connection Gate
	MaxConnections int           `env:"EVENTMESH_HTTP_MAX_CONNECTIONS" envDefault:"20000"`
	IdleTimeout    time.Duration `env:"EVENTMESH_HTTP_IDLE_TIMEOUT"    envDefault:"90s"`
	MaxBodyBytes   int64         `env:"EVENTMESH_HTTP_MAX_BODY_BYTES"  envDefault:"2147483647"`

	// Per-remote-IP admission rate limit; RateLimitRefill == 0 disables it.
	RateLimitCapacity int64 `env:"EVENTMESH_HTTP_RATE_LIMIT_CAPACITY" envDefault:"0"`
	RateLimitRefill   int64 `env:"EVENTMESH_HTTP_RATE_LIMIT_REFILL"   envDefault:"0"`

	// Completer pool: where a processor defers OnComplete when it can't
	// finish inline.
	CompleterPoolSize  int `env:"EVENTMESH_HTTP_COMPLETER_POOL_SIZE"  envDefault:"10"`
	CompleterQueueSize int `env:"EVENTMESH_HTTP_COMPLETER_QUEUE_SIZE" envDefault:"1000"`

	// Worker pool sizing cmd/eventmeshd uses for its demo routes. The route
	// table itself requires every registration to supply its own pool.
	DefaultPoolWorkers int `env:"EVENTMESH_HTTP_DEFAULT_POOL_WORKERS" envDefault:"4"`
	DefaultPoolQueue   int `env:"EVENTMESH_HTTP_DEFAULT_POOL_QUEUE"   envDefault:"100"`

	// Response encoding
	Charset string `env:"EVENTMESH_HTTP_CHARSET" envDefault:"UTF-8"`

	// Observability
	LogLevel        string `env:"EVENTMESH_LOG_LEVEL"        envDefault:"info"`
	MetricsEnabled  bool   `env:"EVENTMESH_METRICS_ENABLED"  envDefault:"true"`
	MetricsAddr     string `env:"EVENTMESH_METRICS_ADDR"     envDefault:":9090"`
	TracingEnabled  bool   `env:"EVENTMESH_TRACING_ENABLED"  envDefault:"true"`
}

// Load reads a .env file (if present; its absence is not an error) and then
// parses the process environment into a Config with defaults applied.
func Load() (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		// Any error other than "file doesn't exist" is worth surfacing to
		// the caller's logger, but it is not fatal: env vars may still be set.
		fmt.Fprintf(os.Stderr, "config: .env load skipped: %v\n", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}
