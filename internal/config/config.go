package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUsage is returned for malformed command lines and when help is requested.
var ErrUsage = errors.New("usage")

// CustomRule is a user-defined privacy rule: a boolean expression over the registry.
type CustomRule struct {
	Name       string
	Expression string
}

// Config holds the merged command-line and environment configuration.
type Config struct {
	// Interface is the capture interface handed to the dissector.
	Interface string
	// TsharkPath is the dissector binary.
	TsharkPath string
	// ReplayDir, when set, replays recorded channel files instead of capturing.
	ReplayDir string
	// Cadence is the aggregation interval.
	Cadence time.Duration
	// TMSIMaxLifespan is the m-TMSI churn threshold.
	TMSIMaxLifespan time.Duration
	// CustomRules are evaluated after the built-in rules.
	CustomRules []CustomRule
	// ReportPath, when set, receives a YAML report at exit.
	ReportPath string
	// MetricsAddr, when set, serves Prometheus metrics.
	MetricsAddr string
	// NATSURL, when set, publishes every event to NATSSubject.
	NATSURL     string
	NATSSubject string
	// FeedSize bounds the activity feed.
	FeedSize int
	// TraceID and ParentID link the run span to an external trace.
	TraceID  string
	ParentID string
	// ShowVersion prints the version and exits.
	ShowVersion bool
}

// Usage returns the usage text for program.
func Usage(program string) string {
	return fmt.Sprintf(`Usage: %s [options]

Options:
  -i, --interface <name>       capture interface (default from CELLWATCH_INTERFACE, "lo")
      --tshark <path>          dissector binary (default "tshark")
      --replay <dir>           replay <dir>/<channel>.txt instead of capturing
      --cadence <duration>     aggregation interval (default 1s)
      --tmsi-max-lifespan <d>  m-TMSI churn threshold (default 2h)
  -r, --rule <NAME=EXPR>       custom privacy rule, repeatable
      --report <path>          write a YAML report at exit
      --metrics-addr <addr>    serve Prometheus metrics on addr
      --nats-url <url>         publish events to NATS
      --nats-subject <subj>    NATS subject (default "cellwatch.events")
      --feed-size <n>          activity feed length (default 500)
      --trace-id <id>          trace the run under this 32-hex trace id (other values are hashed)
      --parent-id <id>         16-hex span id of the run's parent span
      --version                print version and exit
  -h, --help                   show this help

Example: %s -i lo --report /tmp/cellwatch.yaml -r 'many_imsi=count(records, .display_category == "IMSI") > 3'`,
		program, program)
}

// ParseArgs parses command-line arguments on top of envCfg. Flags override the environment.
// Custom rules from both sources are kept, environment rules first.
func ParseArgs(args []string, envCfg *EnvConfig) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no arguments provided", ErrUsage)
	}
	if envCfg == nil {
		envCfg = &EnvConfig{}
	}
	programName := args[0]

	cfg := &Config{
		Interface:       envCfg.Interface,
		TsharkPath:      envCfg.Tshark,
		ReplayDir:       envCfg.ReplayDir,
		Cadence:         envCfg.Cadence,
		TMSIMaxLifespan: envCfg.TMSIMaxLifespan,
		ReportPath:      envCfg.ReportPath,
		MetricsAddr:     envCfg.MetricsAddr,
		NATSURL:         envCfg.NATSURL,
		NATSSubject:     envCfg.NATSSubject,
		FeedSize:        envCfg.FeedSize,
		TraceID:         envCfg.TraceID,
		ParentID:        envCfg.ParentID,
	}
	for _, raw := range envCfg.Rules {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		rule, err := ParseCustomRule(raw)
		if err != nil {
			return nil, fmt.Errorf("CELLWATCH_RULES: %w", err)
		}
		cfg.CustomRules = append(cfg.CustomRules, rule)
	}

	for i := 1; i < len(args); i++ {
		arg := args[i]

		// Accept --flag=value as well as --flag value.
		name, inline, hasInline := strings.Cut(arg, "=")
		if !strings.HasPrefix(arg, "--") {
			name, inline, hasInline = arg, "", false
		}
		value := func() (string, error) {
			if hasInline {
				return inline, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("%w: %s requires a value", ErrUsage, name)
			}
			i++
			return args[i], nil
		}

		var err error
		switch name {
		case "-h", "--help":
			return nil, fmt.Errorf("%w\n%s", ErrUsage, Usage(programName))
		case "--version":
			cfg.ShowVersion = true
		case "-i", "--interface":
			cfg.Interface, err = value()
		case "--tshark":
			cfg.TsharkPath, err = value()
		case "--replay":
			cfg.ReplayDir, err = value()
		case "--report":
			cfg.ReportPath, err = value()
		case "--metrics-addr":
			cfg.MetricsAddr, err = value()
		case "--nats-url":
			cfg.NATSURL, err = value()
		case "--nats-subject":
			cfg.NATSSubject, err = value()
		case "--trace-id":
			cfg.TraceID, err = value()
		case "--parent-id":
			cfg.ParentID, err = value()
		case "--cadence":
			cfg.Cadence, err = durationValue(name, value)
		case "--tmsi-max-lifespan":
			cfg.TMSIMaxLifespan, err = durationValue(name, value)
		case "--feed-size":
			var raw string
			if raw, err = value(); err == nil {
				cfg.FeedSize, err = strconv.Atoi(raw)
				if err != nil || cfg.FeedSize <= 0 {
					err = fmt.Errorf("%w: --feed-size must be a positive integer, got %q", ErrUsage, raw)
				}
			}
		case "-r", "--rule":
			var raw string
			if raw, err = value(); err == nil {
				var rule CustomRule
				if rule, err = ParseCustomRule(raw); err == nil {
					cfg.CustomRules = append(cfg.CustomRules, rule)
				}
			}
		default:
			err = fmt.Errorf("%w: unknown option %q\n%s", ErrUsage, arg, Usage(programName))
		}
		if err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)
	if cfg.Cadence <= 0 {
		return nil, fmt.Errorf("%w: cadence must be positive, got %s", ErrUsage, cfg.Cadence)
	}
	if cfg.TMSIMaxLifespan <= 0 {
		return nil, fmt.Errorf("%w: m-TMSI max lifespan must be positive, got %s", ErrUsage, cfg.TMSIMaxLifespan)
	}
	return cfg, nil
}

// ParseCustomRule parses NAME=EXPR. Only the first '=' separates name and expression.
func ParseCustomRule(raw string) (CustomRule, error) {
	name, expression, ok := strings.Cut(raw, "=")
	if !ok {
		return CustomRule{}, fmt.Errorf("%w: invalid rule format %q: expected NAME=EXPR", ErrUsage, raw)
	}
	name = strings.TrimSpace(name)
	expression = strings.TrimSpace(expression)
	if name == "" {
		return CustomRule{}, fmt.Errorf("%w: rule name cannot be empty in %q", ErrUsage, raw)
	}
	if expression == "" {
		return CustomRule{}, fmt.Errorf("%w: rule expression cannot be empty for %q", ErrUsage, name)
	}
	return CustomRule{Name: name, Expression: expression}, nil
}

func durationValue(name string, value func() (string, error)) (time.Duration, error) {
	raw, err := value()
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrUsage, name, err)
	}
	return d, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Interface == "" {
		cfg.Interface = DefaultInterface
	}
	if cfg.TsharkPath == "" {
		cfg.TsharkPath = DefaultTshark
	}
	if cfg.Cadence == 0 {
		cfg.Cadence = DefaultCadence
	}
	if cfg.TMSIMaxLifespan == 0 {
		cfg.TMSIMaxLifespan = DefaultTMSIMaxLifespan
	}
	if cfg.NATSSubject == "" {
		cfg.NATSSubject = DefaultNATSSubject
	}
	if cfg.FeedSize <= 0 {
		cfg.FeedSize = DefaultFeedSize
	}
}
