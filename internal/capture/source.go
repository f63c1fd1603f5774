package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Source opens the line stream of a channel.
type Source interface {
	Open(ctx context.Context, spec Spec) (io.ReadCloser, error)
}

// DefaultStopTimeout is how long Close waits after SIGTERM before sending SIGKILL.
const DefaultStopTimeout = 2 * time.Second

// TsharkSource starts one dissector process per channel.
// Each process runs in its own process group so Close can terminate it together with any
// helpers it spawned (dumpcap).
type TsharkSource struct {
	Binary    string
	Interface string
	Logger    *slog.Logger
	// StopTimeout overrides DefaultStopTimeout when positive.
	StopTimeout time.Duration
}

// Open starts the dissector for spec and returns its output stream.
func (s *TsharkSource) Open(_ context.Context, spec Spec) (io.ReadCloser, error) {
	binary := s.Binary
	if binary == "" {
		binary = "tshark"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("resolving dissector binary %q: %w", binary, err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating pipe for %s: %w", spec.Channel, err)
	}

	//nolint:gosec // Launching the dissector is the purpose of this source
	cmd := exec.Command(path, TsharkArgs(spec, s.Interface)...)
	cmd.Stdout = w
	if spec.MergeStderr {
		cmd.Stderr = w
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = r.Close() //nolint:errcheck // Best-effort cleanup in error path
		_ = w.Close() //nolint:errcheck // Best-effort cleanup in error path
		return nil, fmt.Errorf("starting dissector for %s: %w", spec.Channel, err)
	}
	// The child holds its own copy of the write end; EOF arrives when it exits.
	_ = w.Close() //nolint:errcheck // Parent copy only

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("dissector started", "channel", spec.Channel, "pid", cmd.Process.Pid)

	stopTimeout := s.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &processStream{reader: r, cmd: cmd, channel: spec.Channel, logger: logger, stopTimeout: stopTimeout}, nil
}

// processStream is the stdout of a running dissector.
type processStream struct {
	reader      *os.File
	cmd         *exec.Cmd
	channel     Channel
	logger      *slog.Logger
	stopTimeout time.Duration

	once     sync.Once
	closeErr error
}

func (p *processStream) Read(b []byte) (int, error) {
	return p.reader.Read(b)
}

// Close terminates the process group, reaps the process and closes the stream.
// A group still alive stopTimeout after SIGTERM is killed.
func (p *processStream) Close() error {
	p.once.Do(func() {
		pid := p.cmd.Process.Pid
		p.signalGroup(unix.SIGTERM)

		exited := make(chan error, 1)
		go func() { exited <- p.cmd.Wait() }()

		var err error
		select {
		case err = <-exited:
		case <-time.After(p.stopTimeout):
			p.logger.Warn("dissector ignored SIGTERM, killing", "channel", p.channel, "pid", pid)
			p.signalGroup(unix.SIGKILL)
			err = <-exited
		}
		if err != nil {
			// Exit by signal is the normal path here.
			p.logger.Debug("dissector exited", "channel", p.channel, "error", err)
		}
		p.closeErr = p.reader.Close()
	})
	return p.closeErr
}

func (p *processStream) signalGroup(sig unix.Signal) {
	pid := p.cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Warn("signalling dissector", "channel", p.channel, "pid", pid, "signal", sig, "error", err)
	}
}

// ReplaySource reads previously recorded dissector output from <Dir>/<channel>.txt.
// A channel without a file yields an empty stream.
type ReplaySource struct {
	Dir    string
	Logger *slog.Logger
}

// Open opens the recording of spec's channel.
func (s *ReplaySource) Open(_ context.Context, spec Spec) (io.ReadCloser, error) {
	path := filepath.Join(s.Dir, string(spec.Channel)+".txt")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger := s.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Info("no recording for channel", "channel", spec.Channel, "path", path)
		return io.NopCloser(strings.NewReader("")), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening recording for %s: %w", spec.Channel, err)
	}
	return f, nil
}
