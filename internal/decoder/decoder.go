package decoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mrzor/cellwatch/internal/capture"
	"github.com/mrzor/cellwatch/internal/identity"
	"github.com/mrzor/cellwatch/internal/servingctx"
	"github.com/mrzor/cellwatch/internal/timesync"
)

// Skip reasons reported to the Observer.
const (
	ReasonEmpty        = "empty"
	ReasonToolWarning  = "tool_warning"
	ReasonShort        = "short"
	ReasonNoIdentifier = "no_identifier"
)

// Emitter receives decoded events. It must not block.
type Emitter interface {
	Put(event identity.Event)
}

// Observer is told about every line and event a decoder handles.
type Observer interface {
	LineRead(channel string)
	LineSkipped(channel, reason string)
	EventEmitted(channel string, category identity.Category)
}

type nopObserver struct{}

func (nopObserver) LineRead(string)                        {}
func (nopObserver) LineSkipped(string, string)             {}
func (nopObserver) EventEmitted(string, identity.Category) {}

// annotation selects which context snapshots an event carries.
type annotation int

const (
	annotateNone annotation = iota
	annotateCell
	annotateCellMME
)

// Decoder decodes one channel.
type Decoder struct {
	channel  capture.Channel
	layout   layout
	handle   handler
	ctxs     *servingctx.Contexts
	out      Emitter
	clock    timesync.Clock
	observer Observer
	logger   *slog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithClock sets the clock used for ObservedAt.
func WithClock(c timesync.Clock) Option {
	return func(d *Decoder) { d.clock = c }
}

// WithObserver sets the line and event observer.
func WithObserver(o Observer) Option {
	return func(d *Decoder) { d.observer = o }
}

// WithLogger sets the logger. The channel name is added to every record.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// New creates the decoder for ch. Decoded events go to out.
func New(ch capture.Channel, ctxs *servingctx.Contexts, out Emitter, opts ...Option) (*Decoder, error) {
	def, ok := channelDefs[ch]
	if !ok {
		return nil, fmt.Errorf("creating decoder: %w: %q", capture.ErrUnknownChannel, ch)
	}
	if ctxs == nil {
		ctxs = servingctx.New()
	}

	d := &Decoder{
		channel:  ch,
		layout:   def.layout,
		handle:   def.handle,
		ctxs:     ctxs,
		out:      out,
		clock:    timesync.SystemClock{},
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("channel", string(ch))
	return d, nil
}

// NewAll creates one decoder per channel, in channel start order, sharing ctxs and out.
func NewAll(ctxs *servingctx.Contexts, out Emitter, opts ...Option) ([]*Decoder, error) {
	decoders := make([]*Decoder, 0, len(channelDefs))
	for _, ch := range capture.Channels() {
		d, err := New(ch, ctxs, out, opts...)
		if err != nil {
			return nil, err
		}
		decoders = append(decoders, d)
	}
	return decoders, nil
}

// Channel returns the channel this decoder handles.
func (d *Decoder) Channel() capture.Channel {
	return d.channel
}

// Run consumes r until EOF, a read error or ctx cancellation.
// Malformed input never produces an error; only a failing reader does.
func (d *Decoder) Run(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := br.ReadString('\n')
		if line != "" {
			d.HandleLine(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				d.logger.Debug("stream ended")
				return nil
			}
			d.logger.Warn("reading stream", "error", err)
			return fmt.Errorf("reading %s stream: %w", d.channel, err)
		}
	}
}

// HandleLine decodes a single line. The trailing newline is optional.
func (d *Decoder) HandleLine(line string) {
	ch := string(d.channel)
	d.observer.LineRead(ch)

	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		d.skip(ReasonEmpty, line)
		return
	}
	if isToolWarning(line) {
		d.skip(ReasonToolWarning, line)
		return
	}
	d.logger.Debug("raw line", "line", line)

	fields, ok := d.layout.split(line)
	if !ok {
		d.skip(ReasonShort, line)
		return
	}
	if reason := d.handle(d, fields); reason != "" {
		d.skip(reason, line)
	}
}

func (d *Decoder) skip(reason, line string) {
	d.observer.LineSkipped(string(d.channel), reason)
	d.logger.Debug("line skipped", "reason", reason, "line", line)
}

// emit queues one event annotated with the requested context snapshots.
func (d *Decoder) emit(category, display identity.Category, value, source string, ann annotation) {
	ev := identity.Event{
		Category:        category,
		Value:           value,
		ObservedAt:      d.clock.Now(),
		SourceMessage:   source,
		DisplayCategory: display,
		Channel:         string(d.channel),
	}
	switch ann {
	case annotateCellMME:
		ev.MME = d.ctxs.MME.Snapshot()
		ev.Cell = d.ctxs.Cell.Snapshot()
	case annotateCell:
		ev.Cell = d.ctxs.Cell.Snapshot()
	case annotateNone:
	}
	d.put(ev)
}

// emitCell queues a CELL event for a cell change.
func (d *Decoder) emitCell(cell identity.Cell, source string) {
	d.put(identity.Event{
		Category:        identity.CategoryCell,
		Value:           cell.CID,
		ObservedAt:      d.clock.Now(),
		Cell:            cell,
		SourceMessage:   source,
		DisplayCategory: identity.CategoryCell,
		Channel:         string(d.channel),
	})
	d.logger.Debug("serving cell changed", "mcc", cell.MCC, "mnc", cell.MNC, "tac", cell.TAC, "cid", cell.CID)
}

func (d *Decoder) put(ev identity.Event) {
	d.out.Put(ev)
	d.observer.EventEmitted(ev.Channel, ev.DisplayCategory)
}
