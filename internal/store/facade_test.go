package store

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

func testEntry(key string) *CompositeEntry {
	return &CompositeEntry{
		Key:       key,
		Kind:      EntryComposite,
		DatasetID: "COPERNICUS/S2_SR_HARMONIZED",
		Region:    "Iowa",
		StartDate: "2024-06-01",
		EndDate:   "2024-08-31",
		Bands:     []string{"B4", "B3", "B2"},
		Family:    vis.FamilySentinel2,
		Handle:    earthengine.LoadImage("COPERNICUS/S2_SR_HARMONIZED/20240601T000000_20240601T000000_T15TVG"),
	}
}

func TestFacadeAddGet(t *testing.T) {
	f := NewFacade(newTestStore(t, nil), zerolog.Nop())

	require.NoError(t, f.Add(testEntry("iowa_summer")))
	e, ok := f.Get("iowa_summer")
	require.True(t, ok)
	assert.True(t, e.HasHandle())
	assert.False(t, e.CreatedAt.IsZero())

	// callers get copies
	e.Region = "changed"
	again, _ := f.Get("iowa_summer")
	assert.Equal(t, "Iowa", again.Region)
}

func TestFacadeRequiresKey(t *testing.T) {
	f := NewFacade(newTestStore(t, nil), zerolog.Nop())
	assert.Error(t, f.Add(&CompositeEntry{}))
	assert.Error(t, f.Add(nil))
}

func TestFacadeAfterRestartHasNoHandle(t *testing.T) {
	shared := NewMemoryBackend()

	before := NewFacade(newTestStore(t, shared), zerolog.Nop())
	require.NoError(t, before.Add(testEntry("iowa_summer")))
	require.NoError(t, before.Wait(context.Background()))

	after := NewFacade(newTestStore(t, shared), zerolog.Nop())
	_, ok := after.Get("iowa_summer")
	assert.False(t, ok, "first read after restart misses")
	require.NoError(t, after.Wait(context.Background()))

	e, ok := after.Get("iowa_summer")
	require.True(t, ok)
	assert.False(t, e.HasHandle())
	assert.Equal(t, "COPERNICUS/S2_SR_HARMONIZED", e.DatasetID)
	assert.Equal(t, []string{"B4", "B3", "B2"}, e.Bands)
	assert.Equal(t, vis.FamilySentinel2, e.Family)
	assert.Equal(t, 1, after.Len(), "recovered entry is promoted")
}

func TestFacadeKeysUnion(t *testing.T) {
	shared := NewMemoryBackend()
	other := newTestStore(t, shared)
	require.NoError(t, other.Put(KindComposite, "from_elsewhere", testEntry("from_elsewhere")))
	require.NoError(t, other.Sync(context.Background()))

	f := NewFacade(newTestStore(t, shared), zerolog.Nop())
	require.NoError(t, f.Add(testEntry("local")))
	assert.Equal(t, []string{"local"}, f.Keys())

	require.NoError(t, f.Wait(context.Background()))
	assert.Equal(t, []string{"from_elsewhere", "local"}, f.Keys())
}

func TestFacadeRemove(t *testing.T) {
	f := NewFacade(newTestStore(t, nil), zerolog.Nop())
	require.NoError(t, f.Add(testEntry("k")))

	assert.True(t, f.Remove("k"))
	_, ok := f.Get("k")
	assert.False(t, ok)
	assert.False(t, f.Remove("k"))
}

func TestFacadeExpiresWithCompositeTTL(t *testing.T) {
	s := New(nil, Options{CompositeTTL: time.Hour, Logger: zerolog.Nop()})
	defer s.Close(context.Background())
	f := NewFacade(s, zerolog.Nop())

	e := testEntry("old")
	e.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.Add(e))

	_, ok := f.Get("old")
	assert.False(t, ok)
	assert.Equal(t, 0, f.Len())
}
