// Package sink exports applied identifier events to external systems.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/mrzor/cellwatch/internal/identity"
)

// Header names set on every exported message besides the trace context.
const (
	HeaderCategory = "Cellwatch-Category"
	HeaderChannel  = "Cellwatch-Channel"
)

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

var propagator = propagation.TraceContext{}

// NATS publishes one JSON message per event, carrying the caller's trace context.
type NATS struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATS wraps an existing publisher.
func NewNATS(pub Publisher, subject string, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{pub: pub, subject: subject, logger: logger}
}

// DialNATS connects to url and returns a sink publishing on subject. The connection
// reconnects forever; publishes during an outage are buffered by the client.
func DialNATS(url, subject string, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("cellwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	s := NewNATS(nc, subject, logger)
	s.conn = nc
	logger.Info("nats sink connected", "url", nc.ConnectedUrl(), "subject", subject)
	return s, nil
}

// Name implements aggregator.Sink.
func (s *NATS) Name() string {
	return "nats"
}

// Consume implements aggregator.Sink. Every event is attempted; failures are joined.
func (s *NATS) Consume(ctx context.Context, events []identity.Event) error {
	var errs []error
	for _, ev := range events {
		msg, err := s.message(ctx, ev)
		if err == nil {
			err = s.pub.PublishMsg(msg)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("publishing %s %s: %w", ev.DisplayCategory, ev.Value, err))
		}
	}
	return errors.Join(errs...)
}

func (s *NATS) message(ctx context.Context, ev identity.Event) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}

	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	hdr.Set(HeaderCategory, string(ev.DisplayCategory))
	if ev.Channel != "" {
		hdr.Set(HeaderChannel, ev.Channel)
	}
	return &nats.Msg{Subject: s.subject, Data: data, Header: hdr}, nil
}

// Close flushes pending messages and closes a connection opened by DialNATS.
func (s *NATS) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
