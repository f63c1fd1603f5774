package registry

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/cellwatch/internal/identity"
)

var t0 = time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)

func mtmsi(value string, at time.Time, source string) identity.Event {
	return identity.Event{
		Category:        identity.CategoryMTMSI,
		Value:           value,
		ObservedAt:      at,
		SourceMessage:   source,
		DisplayCategory: identity.CategoryMTMSI,
	}
}

func TestRegistry_UpsertCounts(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		created := r.Upsert(mtmsi("3F2504E5", t0.Add(time.Duration(i)*time.Minute), "Paging"))
		assert.Equal(t, i == 0, created)
	}

	rec, ok := r.Get(identity.CategoryMTMSI, "3F2504E5")
	require.True(t, ok)
	assert.Equal(t, 5, rec.Count)
	assert.Equal(t, t0, rec.FirstSeen)
	assert.Equal(t, t0.Add(4*time.Minute), rec.LastSeen)
	assert.Equal(t, 4*time.Minute, rec.Lifespan())
	assert.Equal(t, []string{"Paging"}, rec.Sources)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_KeyIncludesCategory(t *testing.T) {
	r := New()
	r.Upsert(mtmsi("123456", t0, "Paging"))
	r.Upsert(identity.Event{Category: identity.CategoryRandom, Value: "123456", ObservedAt: t0})

	assert.Equal(t, 2, r.Len())
}

func TestRegistry_EmptyContextFieldsDoNotOverwrite(t *testing.T) {
	r := New()

	first := mtmsi("AA", t0, "Paging")
	first.Cell = identity.Cell{MCC: "310", MNC: "41", TAC: "1A2B", CID: "0001"}
	first.MME = identity.MME{Group: "8001", Code: "3"}
	r.Upsert(first)

	second := mtmsi("AA", t0.Add(time.Second), "RRCConnectionRequest")
	second.Cell = identity.Cell{CID: "0002"}
	r.Upsert(second)

	rec, ok := r.Get(identity.CategoryMTMSI, "AA")
	require.True(t, ok)
	assert.Equal(t, identity.Cell{MCC: "310", MNC: "41", TAC: "1A2B", CID: "0002"}, rec.Cell)
	assert.Equal(t, identity.MME{Group: "8001", Code: "3"}, rec.MME)
	assert.Equal(t, []string{"Paging", "RRCConnectionRequest"}, rec.Sources)
}

func TestRegistry_DisplayCategoryIsLatest(t *testing.T) {
	r := New()
	r.Upsert(identity.Event{Category: identity.CategoryComposite, Value: "X", DisplayCategory: identity.CategoryMTMSI, ObservedAt: t0})
	r.Upsert(identity.Event{Category: identity.CategoryComposite, Value: "X", DisplayCategory: identity.CategoryIMSI, ObservedAt: t0})

	rec, _ := r.Get(identity.CategoryComposite, "X")
	assert.Equal(t, identity.CategoryIMSI, rec.DisplayCategory)
}

func TestRecord_LifespanDayWrap(t *testing.T) {
	rec := Record{FirstSeen: t0, LastSeen: t0.Add(-23 * time.Hour)}
	assert.Equal(t, time.Hour, rec.Lifespan())
}

func TestRecord_SourceContains(t *testing.T) {
	rec := Record{Sources: []string{"Attach Request", "Paging"}}
	assert.True(t, rec.SourceContains("attach"))
	assert.True(t, rec.HasSource("Paging"))
	assert.False(t, rec.HasSource("paging"))
	assert.False(t, rec.SourceContains("identity response"))
}

func TestRegistry_SnapshotSortedAndDetached(t *testing.T) {
	r := New()
	r.Upsert(mtmsi("BB", t0, "Paging"))
	r.Upsert(mtmsi("AA", t0, "Paging"))
	r.Upsert(identity.Event{Category: identity.CategoryIMSI, Value: "310410123456789", ObservedAt: t0, SourceMessage: "Paging"})

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, identity.CategoryIMSI, snap[0].Category)
	assert.Equal(t, "AA", snap[1].Value)
	assert.Equal(t, "BB", snap[2].Value)

	snap[1].Count = 99
	snap[1].Sources[0] = "mutated"

	rec, _ := r.Get(identity.CategoryMTMSI, "AA")
	assert.Equal(t, 1, rec.Count)
	assert.Equal(t, []string{"Paging"}, rec.Sources)
}

func TestRegistry_GetMissing(t *testing.T) {
	_, ok := New().Get(identity.CategoryIMSI, "nope")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Upsert(mtmsi(strconv.Itoa(i%10), t0, "Paging"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			for _, rec := range r.Snapshot() {
				assert.GreaterOrEqual(t, rec.Count, 1)
			}
		}
	}()
	wg.Wait()

	total := 0
	for _, rec := range r.Snapshot() {
		total += rec.Count
	}
	assert.Equal(t, 1000, total)
}
