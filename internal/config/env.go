package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Defaults shared by the environment and flag layers.
const (
	DefaultInterface       = "lo"
	DefaultTshark          = "tshark"
	DefaultCadence         = time.Second
	DefaultTMSIMaxLifespan = 2 * time.Hour
	DefaultNATSSubject     = "cellwatch.events"
	DefaultFeedSize        = 500
)

// EnvConfig holds settings read from CELLWATCH_* environment variables.
type EnvConfig struct {
	Interface       string        `env:"CELLWATCH_INTERFACE" envDefault:"lo"`
	Tshark          string        `env:"CELLWATCH_TSHARK" envDefault:"tshark"`
	ReplayDir       string        `env:"CELLWATCH_REPLAY"`
	Cadence         time.Duration `env:"CELLWATCH_CADENCE" envDefault:"1s"`
	TMSIMaxLifespan time.Duration `env:"CELLWATCH_TMSI_MAX_LIFESPAN" envDefault:"2h"`
	ReportPath      string        `env:"CELLWATCH_REPORT"`
	MetricsAddr     string        `env:"CELLWATCH_METRICS_ADDR"`
	NATSURL         string        `env:"CELLWATCH_NATS_URL"`
	NATSSubject     string        `env:"CELLWATCH_NATS_SUBJECT" envDefault:"cellwatch.events"`
	FeedSize        int           `env:"CELLWATCH_FEED_SIZE" envDefault:"500"`
	TraceID         string        `env:"CELLWATCH_TRACE_ID"`
	ParentID        string        `env:"CELLWATCH_PARENT_ID"`
	// Rules holds NAME=EXPR entries separated by ';'.
	Rules    []string `env:"CELLWATCH_RULES" envSeparator:";"`
	LogLevel string   `env:"CELLWATCH_LOG_LEVEL" envDefault:"info"`
	JSONLog  bool     `env:"CELLWATCH_JSON_LOG"`
}

// ParseEnvConfig parses CELLWATCH_* variables from the process environment.
func ParseEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	return &cfg, nil
}
