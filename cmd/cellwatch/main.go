// cellwatch audits the subscriber-privacy behaviour of a cellular network from dissected
// signalling traffic.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mrzor/cellwatch/internal/aggregator"
	"github.com/mrzor/cellwatch/internal/capture"
	"github.com/mrzor/cellwatch/internal/config"
	"github.com/mrzor/cellwatch/internal/decoder"
	"github.com/mrzor/cellwatch/internal/eventqueue"
	"github.com/mrzor/cellwatch/internal/logging"
	"github.com/mrzor/cellwatch/internal/metrics"
	"github.com/mrzor/cellwatch/internal/otel"
	"github.com/mrzor/cellwatch/internal/registry"
	"github.com/mrzor/cellwatch/internal/report"
	"github.com/mrzor/cellwatch/internal/rules"
	"github.com/mrzor/cellwatch/internal/servingctx"
	"github.com/mrzor/cellwatch/internal/sink"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// shutdownGrace bounds how long a run continues after a signal.
const shutdownGrace = 5 * time.Second

func main() {
	if err := run(); err != nil {
		if errors.Is(err, config.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatalf("Error: %v", err)
	}
}

// setupOTEL initializes tracing and returns a cleanup function. Without an endpoint the
// global no-op provider is left in place.
func setupOTEL(logger *slog.Logger) (func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, err
	}

	versionInfo := fmt.Sprintf("%s (%s)", version, commit)
	tp, err := otel.InitProvider(context.Background(), otelCfg, versionInfo, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			logger.Warn("shutting down OTEL provider", "error", err)
		}
	}
	return cleanup, nil
}

// setupSinks connects the optional event exporters.
func setupSinks(cfg *config.Config, logger *slog.Logger) ([]aggregator.Sink, func(), error) {
	if cfg.NATSURL == "" {
		return nil, func() {}, nil
	}

	natsSink, err := sink.DialNATS(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := natsSink.Close(); err != nil {
			logger.Warn("closing NATS sink", "error", err)
		}
	}
	return []aggregator.Sink{natsSink}, cleanup, nil
}

// setupMetrics serves the registry when an address is configured.
func setupMetrics(cfg *config.Config, reg *metrics.Registry, logger *slog.Logger) (func(), error) {
	if cfg.MetricsAddr == "" {
		return func() {}, nil
	}

	srv, err := metrics.Listen(cfg.MetricsAddr, reg, logger)
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("stopping metrics server", "error", err)
		}
	}
	return cleanup, nil
}

// openStreams opens every channel up front so a missing dissector aborts startup.
// The returned close function closes the streams concurrently and is safe to call more
// than once; every call returns after the streams are closed.
func openStreams(ctx context.Context, src capture.Source) (map[capture.Channel]io.ReadCloser, func(), error) {
	streams := make(map[capture.Channel]io.ReadCloser)
	var once sync.Once
	closeAll := func() {
		once.Do(func() {
			var closing errgroup.Group
			for _, s := range streams {
				s := s
				closing.Go(func() error {
					_ = s.Close() //nolint:errcheck // Best-effort; the stream is finished either way
					return nil
				})
			}
			_ = closing.Wait() //nolint:errcheck // Always nil
		})
	}

	for _, spec := range capture.Specs() {
		stream, err := src.Open(ctx, spec)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		streams[spec.Channel] = stream
	}
	return streams, closeAll, nil
}

// pipeline feeds every stream through its decoder into the aggregator.
type pipeline struct {
	decoders     []*decoder.Decoder
	streams      map[capture.Channel]io.ReadCloser
	closeStreams func()
	queue        *eventqueue.Queue
	agg          *aggregator.Aggregator
	grace        time.Duration
	logger       *slog.Logger
}

// run returns once every stream has ended and the aggregator has applied the rest of the
// queue. Cancelling ctx closes the streams and starts the grace period; when it expires the
// aggregator makes its final drain and run returns without waiting for stuck decoders.
func (p *pipeline) run(ctx, aggCtx context.Context) error {
	aggCtx, cancelAgg := context.WithCancel(aggCtx)
	defer cancelAgg()

	graceOver := make(chan struct{})
	stopOnSignal := context.AfterFunc(ctx, func() {
		p.logger.Info("received signal, stopping capture", "grace", p.grace)
		// Armed before closing: a dissector slow to exit must not delay the deadline.
		time.AfterFunc(p.grace, func() {
			close(graceOver)
			cancelAgg()
		})
		go p.closeStreams()
	})
	defer stopOnSignal()

	var decoding errgroup.Group
	for _, d := range p.decoders {
		d := d
		stream := p.streams[d.Channel()]
		decoding.Go(func() error {
			// A failing stream never stops its siblings.
			if err := d.Run(ctx, stream); err != nil {
				p.logger.Error("decoder stopped", "channel", d.Channel(), "error", err)
			}
			return nil
		})
	}

	decoded := make(chan struct{})
	go func() {
		_ = decoding.Wait() //nolint:errcheck // Decoders log their own errors
		p.queue.Close()
		p.logger.Info("all streams ended")
		close(decoded)
	}()

	err := p.agg.Run(aggCtx)
	select {
	case <-decoded:
	case <-graceOver:
		p.logger.Warn("decoders still running after grace period, abandoning them")
	}
	return err
}

func newSource(cfg *config.Config, logger *slog.Logger) (capture.Source, string) {
	if cfg.ReplayDir != "" {
		return &capture.ReplaySource{Dir: cfg.ReplayDir, Logger: logger}, "replay:" + cfg.ReplayDir
	}
	return &capture.TsharkSource{Binary: cfg.TsharkPath, Interface: cfg.Interface, Logger: logger}, "tshark"
}

// writeReport writes the report file, CSV when the path ends in .csv and YAML otherwise.
func writeReport(path string, rep *report.Report) (err error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close report: %w", closeErr)
		}
	}()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return report.WriteCSV(f, rep)
	}
	return report.WriteYAML(f, rep)
}

func run() error {
	envCfg, err := config.ParseEnvConfig()
	if err != nil {
		return err
	}
	cfg, err := config.ParseArgs(os.Args, envCfg)
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("cellwatch %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	}

	logger := logging.Init(logging.Options{
		Level:   envCfg.LogLevel,
		JSON:    envCfg.JSONLog,
		Service: "cellwatch",
		Version: version,
	})
	logger.Info("starting cellwatch", "commit", commit, "built", date, "interface", cfg.Interface)

	cleanupOTEL, err := setupOTEL(logger)
	if err != nil {
		return err
	}
	defer cleanupOTEL()

	engine, err := rules.New(cfg.CustomRules, rules.WithChurnThreshold(cfg.TMSIMaxLifespan))
	if err != nil {
		return err
	}

	queue := eventqueue.New()
	reg := registry.New()
	ctxs := servingctx.New()

	metricsReg := metrics.New()
	if err := metricsReg.RegisterQueue(queue); err != nil {
		return fmt.Errorf("failed to register queue metrics: %w", err)
	}
	cleanupMetrics, err := setupMetrics(cfg, metricsReg, logger)
	if err != nil {
		return err
	}
	defer cleanupMetrics()

	sinks, cleanupSinks, err := setupSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanupSinks()

	decoders, err := decoder.NewAll(ctxs, queue,
		decoder.WithObserver(metricsReg),
		decoder.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, sourceName := newSource(cfg, logger)
	streams, closeStreams, err := openStreams(ctx, src)
	if err != nil {
		return err
	}
	defer closeStreams()

	agg := aggregator.New(queue, reg, engine,
		aggregator.WithCadence(cfg.Cadence),
		aggregator.WithSinks(sinks...),
		aggregator.WithFeed(aggregator.NewActivityFeed(cfg.FeedSize)),
		aggregator.WithObserver(metricsReg),
		aggregator.WithLogger(logger),
	)

	// Aggregator spans are children of the run span.
	runCtx, traceWarnings := otel.RunParent(context.Background(), cfg.TraceID, cfg.ParentID)
	runCtx, runSpan := gotel.Tracer("github.com/mrzor/cellwatch").Start(runCtx, "cellwatch.run",
		trace.WithAttributes(
			attribute.String("cellwatch.source", sourceName),
			attribute.String("cellwatch.interface", cfg.Interface),
		),
		trace.WithAttributes(traceWarnings...),
	)
	defer runSpan.End()

	startedAt := time.Now()
	p := &pipeline{
		decoders:     decoders,
		streams:      streams,
		closeStreams: closeStreams,
		queue:        queue,
		agg:          agg,
		grace:        shutdownGrace,
		logger:       logger,
	}
	if err := p.run(ctx, runCtx); err != nil {
		return err
	}

	rep := report.Build(reg.Snapshot(), agg.Results(), report.Meta{
		Version:   version,
		Interface: cfg.Interface,
		Source:    sourceName,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
	})
	rep.Activity = agg.Feed().Entries()
	runSpan.SetAttributes(
		attribute.String("cellwatch.run_id", rep.RunID),
		attribute.Int("cellwatch.identifiers", rep.Total),
	)

	if cfg.ReportPath != "" {
		if err := writeReport(cfg.ReportPath, rep); err != nil {
			return err
		}
		logger.Info("report written", "path", cfg.ReportPath, "identifiers", rep.Total)
	}
	return report.Summary(os.Stdout, rep)
}
