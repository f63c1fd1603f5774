package decoder

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/cellwatch/internal/capture"
	"github.com/mrzor/cellwatch/internal/identity"
	"github.com/mrzor/cellwatch/internal/servingctx"
	"github.com/mrzor/cellwatch/internal/timesync"
)

var testStart = time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []identity.Event
}

func (r *recorder) Put(ev identity.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []identity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]identity.Event, len(r.events))
	copy(out, r.events)
	return out
}

type countingObserver struct {
	mu      sync.Mutex
	read    int
	skipped map[string]int
	emitted map[identity.Category]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{skipped: map[string]int{}, emitted: map[identity.Category]int{}}
}

func (o *countingObserver) LineRead(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.read++
}

func (o *countingObserver) LineSkipped(_, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped[reason]++
}

func (o *countingObserver) EventEmitted(_ string, category identity.Category) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.emitted[category]++
}

type harness struct {
	ctxs     *servingctx.Contexts
	out      *recorder
	observer *countingObserver
	clock    *timesync.ManualClock
}

func newHarness() *harness {
	return &harness{
		ctxs:     servingctx.New(),
		out:      &recorder{},
		observer: newCountingObserver(),
		clock:    timesync.NewManualClock(testStart),
	}
}

func (h *harness) decoder(t *testing.T, ch capture.Channel) *Decoder {
	t.Helper()
	d, err := New(ch, h.ctxs, h.out, WithClock(h.clock), WithObserver(h.observer))
	require.NoError(t, err)
	return d
}

func (h *harness) feed(t *testing.T, ch capture.Channel, lines ...string) {
	t.Helper()
	d := h.decoder(t, ch)
	for _, l := range lines {
		d.HandleLine(l + "\n")
	}
}

func TestNew_UnknownChannel(t *testing.T) {
	_, err := New("bogus", nil, &recorder{})
	require.ErrorIs(t, err, capture.ErrUnknownChannel)
}

func TestNewAll_OnePerChannel(t *testing.T) {
	decoders, err := NewAll(servingctx.New(), &recorder{})
	require.NoError(t, err)
	require.Len(t, decoders, len(capture.Channels()))
	for i, ch := range capture.Channels() {
		assert.Equal(t, ch, decoders[i].Channel())
	}
}

func TestSIB1_DuplicateEmitsOnce(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.SIB14G, "1,3,1,0,4,1,1A2B,0001", "2,3,1,0,4,1,1A2B,0001")

	events := h.out.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, identity.CategoryCell, ev.Category)
	assert.Equal(t, "0001", ev.Value)
	assert.Equal(t, "SIB1 update", ev.SourceMessage)
	assert.Equal(t, identity.Cell{MCC: "310", MNC: "41", TAC: "1A2B", CID: "0001"}, ev.Cell)
	assert.Equal(t, identity.Cell{MCC: "310", MNC: "41", TAC: "1A2B", CID: "0001"}, h.ctxs.Cell.Snapshot())
}

func TestSIB1_ChangeEmitsAgain(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.SIB14G, "1,3,1,0,4,1,1A2B,0001", "2,3,1,0,4,1,1A2B,0002", "3,3,1,0,4,1,1A2B,0001")
	assert.Len(t, h.out.all(), 3)
}

func TestSIB1_SharedAcrossDecoders(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.SIB14G, "1,3,1,0,4,1,1A2B,0001")
	// Same cell announced on the SA channel is not a change.
	h.feed(t, capture.SIB15GSA, "9,3,1,0,4,1,1A2B,0001")
	h.feed(t, capture.SIB15GSA, "10,2,0,8,0,1,0777,0042")

	events := h.out.all()
	require.Len(t, events, 2)
	assert.Equal(t, "SIB1(5G-SA) update", events[1].SourceMessage)
	assert.Equal(t, "0042", events[1].Value)
}

func TestSIB1_ShortLineSkipped(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.SIB14G, "4,,,")

	assert.Empty(t, h.out.all())
	assert.Equal(t, 1, h.observer.skipped[ReasonShort])
	assert.True(t, h.ctxs.Cell.Snapshot().IsZero())
}

func TestSIB1_AllFieldsEmptyKeepsCell(t *testing.T) {
	for _, ch := range []capture.Channel{capture.SIB14G, capture.SIB15GSA} {
		t.Run(string(ch), func(t *testing.T) {
			h := newHarness()
			h.feed(t, ch, "1,3,1,0,4,1,1A2B,0001")
			h.feed(t, ch, "2,,,,,,,")

			// A frame with no cell fields neither blanks the context nor emits a CELL event.
			require.Len(t, h.out.all(), 1)
			assert.Equal(t, 1, h.observer.skipped[ReasonNoIdentifier])
			assert.Equal(t, identity.Cell{MCC: "310", MNC: "41", TAC: "1A2B", CID: "0001"}, h.ctxs.Cell.Snapshot())
		})
	}
}

func TestSIBThenPaging_CarriesCellSnapshot(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.SIB14G, "1,3,1,0,4,1,1A2B,0001")
	h.feed(t, capture.Paging4G, "2,3F2504E5,")

	events := h.out.all()
	require.Len(t, events, 2)
	paging := events[1]
	assert.Equal(t, identity.CategoryMTMSI, paging.Category)
	assert.Equal(t, "3F2504E5", paging.Value)
	assert.Equal(t, "Paging", paging.SourceMessage)
	assert.Equal(t, identity.Cell{MCC: "310", MNC: "41", TAC: "1A2B", CID: "0001"}, paging.Cell)
	assert.Equal(t, testStart, paging.ObservedAt)
	assert.Equal(t, string(capture.Paging4G), paging.Channel)
}

func TestPaging4G_IMSI(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.SIB14G, "1,3,1,0,4,1,1A2B,0001")
	h.feed(t, capture.Paging4G, "3,,310410123456789")

	events := h.out.all()
	require.Len(t, events, 3)

	// Decimal digits are a valid temporary id as well.
	assert.Equal(t, identity.CategoryMTMSI, events[1].Category)

	imsi := events[2]
	assert.Equal(t, identity.CategoryIMSI, imsi.Category)
	assert.Equal(t, identity.CategoryIMSI, imsi.DisplayCategory)
	assert.Equal(t, "310410123456789", imsi.Value)
	assert.True(t, imsi.Cell.IsZero(), "IMSI paging carries no cell")
	assert.Equal(t, identity.MME{}, imsi.MME)
}

func TestPaging4G_NothingValid(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.Paging4G, "3,zz-top,")

	assert.Empty(t, h.out.all())
	assert.Equal(t, 1, h.observer.skipped[ReasonNoIdentifier])
}

func TestToolWarningsDropped(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.RRCConnectionRequest,
		"tshark: Cannot find dissector for 'udp.port' ...",
		"Warning: falling back to data",
	)

	assert.Empty(t, h.out.all())
	assert.Equal(t, 2, h.observer.skipped[ReasonToolWarning])
	assert.Equal(t, 2, h.observer.read)
}

func TestSIB1NSA_KeepsPreviousMCCMNC(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.SIB14G, "1,3,1,0,4,1,1A2B,0001")
	h.feed(t, capture.SIB15GNSA, "x,310410,2B,77")

	events := h.out.all()
	require.Len(t, events, 2)
	nsa := events[1]
	assert.Equal(t, "SIB1(5G) update", nsa.SourceMessage)
	assert.Equal(t, "77", nsa.Value)
	assert.Equal(t, identity.Cell{MCC: "310", MNC: "41", TAC: "2B", CID: "77"}, nsa.Cell)

	// Repeating the line is not a change.
	h.feed(t, capture.SIB15GNSA, "x,310410,2B,77")
	assert.Len(t, h.out.all(), 2)
}

func TestPaging5G(t *testing.T) {
	h := newHarness()
	h.ctxs.MME.Observe("8001", "3")
	h.feed(t, capture.Paging5GSA, "5,0x0123456789")

	events := h.out.all()
	require.Len(t, events, 1)
	assert.Equal(t, identity.Category5GTMSI, events[0].Category)
	assert.Equal(t, "Paging(5G)", events[0].SourceMessage)
	assert.Equal(t, identity.MME{Group: "8001", Code: "3"}, events[0].MME)
	assert.True(t, events[0].IsPaging())
}

func TestIMEISV_CellOnly(t *testing.T) {
	h := newHarness()
	h.ctxs.MME.Observe("8001", "3")
	h.feed(t, capture.IMEISV4G, "12,3534900698733101", "13,")

	events := h.out.all()
	require.Len(t, events, 1)
	assert.Equal(t, identity.CategoryIMEISV, events[0].Category)
	assert.Equal(t, "Identity Response", events[0].SourceMessage)
	assert.Equal(t, identity.MME{}, events[0].MME)
	assert.Equal(t, 1, h.observer.skipped[ReasonNoIdentifier])
}

func TestNewUEIdentity(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.RRCNewUEIdentity, "14,0x5a")

	events := h.out.all()
	require.Len(t, events, 1)
	assert.Equal(t, identity.CategoryUEIdentity, events[0].Category)
	assert.Equal(t, "RRCReconfiguration", events[0].SourceMessage)
}

func TestConnectionRequest(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.RRCConnectionRequest, "5,0x1234,18,C0FFEE")

	assert.Equal(t, "24", h.ctxs.MME.Snapshot().Code)

	events := h.out.all()
	require.Len(t, events, 2)
	assert.Equal(t, identity.CategoryRandom, events[0].Category)
	assert.Equal(t, "0x1234", events[0].Value)
	assert.Equal(t, identity.CategoryMTMSI, events[1].Category)
	assert.Equal(t, "C0FFEE", events[1].Value)
	for _, ev := range events {
		assert.Equal(t, "RRCConnectionRequest", ev.SourceMessage)
		assert.Equal(t, "24", ev.MME.Code)
	}
}

func TestConnectionRequest_EdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantEvents int
		wantCode   string
		wantReason string
	}{
		{name: "all fields empty", line: ",,,", wantReason: ReasonEmpty},
		{name: "frame only", line: "6", wantReason: ReasonNoIdentifier},
		{name: "unparseable mmec ignored", line: "7,,zz,", wantReason: ReasonNoIdentifier},
		{name: "mmec only updates context", line: "8,,0x1f,", wantCode: "31"},
		{name: "m-TMSI only", line: "9,,,ABCDEF01", wantEvents: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.feed(t, capture.RRCConnectionRequest, tt.line)

			assert.Len(t, h.out.all(), tt.wantEvents)
			assert.Equal(t, tt.wantCode, h.ctxs.MME.Snapshot().Code)
			if tt.wantReason != "" {
				assert.Equal(t, 1, h.observer.skipped[tt.wantReason])
			} else {
				assert.Empty(t, h.observer.skipped)
			}
		})
	}
}

func TestNASEPS_AttachRequestPrefersIMSI(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.NASEPS, "C0FFEE\t310410123456789\t\t8001\t1\t0x41")

	events := h.out.all()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, identity.CategoryComposite, ev.Category)
	assert.Equal(t, identity.CategoryIMSI, ev.DisplayCategory)
	assert.Equal(t, "310410123456789", ev.Value)
	assert.Equal(t, "Attach Request", ev.SourceMessage)
	assert.Equal(t, identity.MME{Group: "8001", Code: "1"}, ev.MME)
}

func TestNASEPS_IdentifierPriority(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantDisplay identity.Category
		wantValue   string
	}{
		{
			name:        "associated IMSI when IMSI invalid",
			line:        "C0FFEE\t1234\t20801123456789\t\t\t0x52",
			wantDisplay: identity.CategoryIMSI,
			wantValue:   "20801123456789",
		},
		{
			name:        "m-TMSI when no IMSI",
			line:        "C0FFEE\t\t\t\t\t0x48",
			wantDisplay: identity.CategoryMTMSI,
			wantValue:   "C0FFEE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.feed(t, capture.NASEPS, tt.line)

			events := h.out.all()
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantDisplay, events[0].DisplayCategory)
			assert.Equal(t, tt.wantValue, events[0].Value)
		})
	}
}

func TestNASEPS_CodeNames(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.NASEPS, "C0FFEE\t\t\t\t\t0x41,PACKET=0x52,0x99,7")

	events := h.out.all()
	require.Len(t, events, 4)
	assert.Equal(t, "Attach Request", events[0].SourceMessage)
	assert.Equal(t, "Identity Response", events[1].SourceMessage)
	assert.Equal(t, "packet=0x99", events[2].SourceMessage)
	assert.Equal(t, "packet=7", events[3].SourceMessage)
}

func TestNASEPS_WhitespaceFallback(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.NASEPS, "C0FFEE 310410123456789 0x52")

	events := h.out.all()
	require.Len(t, events, 1)
	assert.Equal(t, identity.CategoryIMSI, events[0].DisplayCategory)
	assert.Equal(t, "Identity Response", events[0].SourceMessage)
}

func TestNASEPS_NoIdentifierStillUpdatesMME(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.NASEPS, "\t\t\t8002\t7\t0x41")

	assert.Empty(t, h.out.all())
	assert.Equal(t, identity.MME{Group: "8002", Code: "7"}, h.ctxs.MME.Snapshot())
	assert.Equal(t, 1, h.observer.skipped[ReasonNoIdentifier])

	// Empty MME fields never erase.
	h.feed(t, capture.NASEPS, "C0FFEE\t\t\t\t\t0x41")
	assert.Equal(t, identity.MME{Group: "8002", Code: "7"}, h.ctxs.MME.Snapshot())
}

func TestNASEPS_ShortLine(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.NASEPS, "C0FFEE\t0x41")

	assert.Empty(t, h.out.all())
	assert.Equal(t, 1, h.observer.skipped[ReasonShort])
}

func TestNAS5GS_SetupRequestParts(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.NAS5GS, "7\t\t\t\t\t\t12\t34\t")

	events := h.out.all()
	require.Len(t, events, 3)
	want := []struct {
		source string
		value  string
	}{
		{"RRC Setup Request (Part1)", "12"},
		{"RRC Setup Request (Part2)", "34"},
		{"RRC Setup Request", "1234"},
	}
	for i, w := range want {
		assert.Equal(t, identity.CategoryComposite, events[i].Category)
		assert.Equal(t, identity.Category5GTMSI, events[i].DisplayCategory)
		assert.Equal(t, w.source, events[i].SourceMessage)
		assert.Equal(t, w.value, events[i].Value)
	}
}

func TestNAS5GS_TMSIPerCode(t *testing.T) {
	h := newHarness()
	h.feed(t, capture.NAS5GS, "8\t0xAB12,zz\t\t\t0x41,rrconly,0x99")

	events := h.out.all()
	require.Len(t, events, 3)
	assert.Equal(t, "Registration request", events[0].SourceMessage)
	assert.Equal(t, "RRC Setup Request", events[1].SourceMessage)
	assert.Equal(t, "packet=0x99", events[2].SourceMessage)
	for _, ev := range events {
		assert.Equal(t, "0xAB12", ev.Value)
		assert.Equal(t, identity.Category5GTMSI, ev.DisplayCategory)
	}
}

func TestNAS5GS_IdentityTokens(t *testing.T) {
	h := newHarness()
	h.ctxs.MME.Observe("8001", "3")
	h.feed(t, capture.NAS5GS, "9\t\t0000000001\t3534900698733101\t\t\t\t\t5A5A5A")

	events := h.out.all()
	require.Len(t, events, 3)

	assert.Equal(t, identity.CategoryComposite, events[0].Category)
	assert.Equal(t, identity.CategoryIMEISV, events[0].DisplayCategory)
	assert.Equal(t, "IMEISV", events[0].SourceMessage)

	assert.Equal(t, identity.CategoryMSIN, events[1].Category)
	assert.Equal(t, identity.CategoryMSIN, events[1].DisplayCategory)
	assert.Equal(t, "0000000001", events[1].Value)

	assert.Equal(t, identity.CategoryRandom, events[2].DisplayCategory)
	assert.Equal(t, "RRC Setup Request", events[2].SourceMessage)

	for _, ev := range events {
		assert.Equal(t, identity.MME{}, ev.MME, "NAS-5GS events carry no MME info")
	}
}

func TestMalformedLinesNeverPanic(t *testing.T) {
	garbage := []string{
		"", " ", ",", ",,,,,,,,,,,,", "\t", "\t\t\t\t\t\t\t\t\t\t",
		"0x", "0x,0x,0x", "packet=", "\x00\x01\x02", "💥,💥,💥",
		strings.Repeat("a,", 200), strings.Repeat("\t", 50),
	}
	for _, ch := range capture.Channels() {
		t.Run(string(ch), func(t *testing.T) {
			h := newHarness()
			d := h.decoder(t, ch)
			for _, line := range garbage {
				assert.NotPanics(t, func() { d.HandleLine(line) })
			}
			assert.Equal(t, len(garbage), h.observer.read)
		})
	}
}

func TestRun_ReadsUntilEOF(t *testing.T) {
	h := newHarness()
	d := h.decoder(t, capture.Paging4G)

	input := "1,AAAA,\n\n2,BBBB,\n3,CCCC,"
	err := d.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	events := h.out.all()
	require.Len(t, events, 3)
	assert.Equal(t, "CCCC", events[2].Value, "last line without newline is decoded")
	assert.Equal(t, 1, h.observer.skipped[ReasonEmpty])
}

type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestRun_ReadError(t *testing.T) {
	h := newHarness()
	d := h.decoder(t, capture.Paging4G)
	boom := errors.New("device unplugged")

	err := d.Run(context.Background(), &failingReader{data: "1,AAAA,\n", err: boom})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "paging-4g")
	assert.Len(t, h.out.all(), 1)
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness()
	d := h.decoder(t, capture.Paging4G)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Run(ctx, strings.NewReader("1,AAAA,\n"))
	require.NoError(t, err)
	assert.Empty(t, h.out.all())
}

func TestRun_PipeClosed(t *testing.T) {
	h := newHarness()
	d := h.decoder(t, capture.Paging4G)
	r, w := io.Pipe()

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), r) }()

	_, err := w.Write([]byte("1,AAAA,\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the writer closed")
	}
	assert.Len(t, h.out.all(), 1)
}

func TestConcurrentDecodersShareContexts(t *testing.T) {
	h := newHarness()
	sib := h.decoder(t, capture.SIB14G)
	paging := h.decoder(t, capture.Paging4G)

	var sibLines, pagingLines strings.Builder
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			sibLines.WriteString("1,3,1,0,4,1,1A2B,0001\n")
		} else {
			sibLines.WriteString("1,2,0,8,0,1,0777,0042\n")
		}
		pagingLines.WriteString("2,3F2504E5,\n")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, sib.Run(context.Background(), strings.NewReader(sibLines.String())))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, paging.Run(context.Background(), strings.NewReader(pagingLines.String())))
	}()
	wg.Wait()

	valid := map[identity.Cell]bool{
		{}: true,
		{MCC: "310", MNC: "41", TAC: "1A2B", CID: "0001"}: true,
		{MCC: "208", MNC: "01", TAC: "0777", CID: "0042"}: true,
	}
	cells := 0
	for _, ev := range h.out.all() {
		assert.True(t, valid[ev.Cell], "torn cell snapshot %+v", ev.Cell)
		if ev.Category == identity.CategoryCell {
			cells++
		}
	}
	assert.Equal(t, 200, cells)
}
