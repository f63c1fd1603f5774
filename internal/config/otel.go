package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel/attribute"
)

// OTELConfig is the tracing setup, read from the standard OTEL_* variables.
// Tracing is off unless one of the two endpoints is set.
type OTELConfig struct {
	ServiceName        string `env:"OTEL_SERVICE_NAME" envDefault:"cellwatch"`
	ResourceAttributes string `env:"OTEL_RESOURCE_ATTRIBUTES"`
	ExporterEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TracesEndpoint     string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
}

// ParseOTELConfig reads OTELConfig from the environment.
func ParseOTELConfig() (*OTELConfig, error) {
	cfg := &OTELConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}
	return cfg, nil
}

// Enabled reports whether spans are exported at all.
func (c *OTELConfig) Enabled() bool {
	return c.rawEndpoint() != ""
}

// rawEndpoint is the configured URL, the traces-specific one taking precedence.
func (c *OTELConfig) rawEndpoint() string {
	if c.TracesEndpoint != "" {
		return c.TracesEndpoint
	}
	return c.ExporterEndpoint
}

// Endpoint is the collector address as host:port, the form the OTLP/HTTP exporter expects.
func (c *OTELConfig) Endpoint() string {
	_, hostPort := splitScheme(c.rawEndpoint())
	return strings.TrimSuffix(hostPort, "/")
}

// Insecure reports whether the exporter should use plain HTTP. Only an explicit https://
// scheme turns TLS on.
func (c *OTELConfig) Insecure() bool {
	scheme, _ := splitScheme(c.rawEndpoint())
	return scheme != "https"
}

func splitScheme(endpoint string) (scheme, rest string) {
	if s, r, ok := strings.Cut(endpoint, "://"); ok {
		return strings.ToLower(s), r
	}
	return "", endpoint
}

// Attributes turns OTEL_RESOURCE_ATTRIBUTES (k1=v1,k2=v2) into resource attributes.
// Entries without '=' or with an empty key are dropped.
func (c *OTELConfig) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, entry := range strings.Split(c.ResourceAttributes, ",") {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		attrs = append(attrs, attribute.String(key, strings.TrimSpace(value)))
	}
	return attrs
}
