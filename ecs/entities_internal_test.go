package ecs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDeriveSlot(t *testing.T) {
	freeList := []uint32{4, 9, 2}

	tests := []struct {
		name        string
		ordinal     uint64
		freeAtFlush int
		tableLen    int
		index       uint32
		fresh       bool
	}{
		{"first ordinal takes the tail", 0, 3, 10, 2, false},
		{"second ordinal", 1, 3, 10, 9, false},
		{"last recycled", 2, 3, 10, 4, false},
		{"first fresh", 3, 3, 10, 10, true},
		{"later fresh", 7, 3, 10, 14, true},
		{"snapshot shorter than free list", 0, 2, 10, 9, false},
		{"no free slots", 0, 0, 10, 10, true},
		{"last index", 0, 0, math.MaxUint32 - 1, math.MaxUint32 - 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, fresh, err := deriveSlot(tt.ordinal, tt.freeAtFlush, freeList, tt.tableLen)
			require.NoError(t, err)
			assert.Equal(t, tt.index, index)
			assert.Equal(t, tt.fresh, fresh)
		})
	}
}

func TestDeriveSlotExhausted(t *testing.T) {
	_, _, err := deriveSlot(0, 0, nil, math.MaxUint32)
	assert.ErrorIs(t, err, ErrIndexSpaceExhausted)

	_, _, err = deriveSlot(1, 0, nil, math.MaxUint32-1)
	assert.ErrorIs(t, err, ErrIndexSpaceExhausted)

	_, _, err = deriveSlot(math.MaxUint64-1, 0, nil, 0)
	assert.ErrorIs(t, err, ErrIndexSpaceExhausted)
}

func TestMetaTable(t *testing.T) {
	var table metaTable
	assert.Equal(t, 0, table.Len())

	for i := range metaBlockSize + 10 {
		index := table.Push(entityMeta{generation: uint32(i), location: InvalidLocation})
		assert.Equal(t, uint32(i), index)
	}
	assert.Equal(t, metaBlockSize+10, table.Len())
	assert.Len(t, table.blocks, 2)

	slot := table.Get(metaBlockSize + 3)
	assert.Equal(t, uint32(metaBlockSize+3), slot.generation)

	slot.generation = 77
	table.Grow(3 * metaBlockSize)
	assert.Equal(t, uint32(77), table.Get(metaBlockSize+3).generation)
	assert.Len(t, table.blocks, 5)
	assert.Equal(t, metaBlockSize+10, table.Len())

	table.Reset()
	assert.Equal(t, 0, table.Len())
	assert.Len(t, table.blocks, 1)
}

func TestGenerationWraparound(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	entities := NewEntities(WithLogger(zap.New(core)))

	first := entities.Alloc()
	entities.meta.Get(first.index).generation = math.MaxUint32
	old := Entity{index: first.index, generation: math.MaxUint32}

	_, err := entities.Free(old)
	require.NoError(t, err)

	recycled := entities.Alloc()
	assert.Equal(t, uint32(0), recycled.Generation())
	assert.Equal(t, first.Index(), recycled.Index())

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, first.index, entry.ContextMap()["index"])
}

func TestFlushRestoresCursorOnExhaustion(t *testing.T) {
	entities := NewEntities()
	entities.meta.length = math.MaxUint32 - 1
	entities.reserved.Store(2)

	assert.PanicsWithValue(t, ErrIndexSpaceExhausted, func() {
		entities.Flush(nil)
	})
	assert.Equal(t, 2, entities.PendingCount())
}

func TestIsPendingTracksFreePosition(t *testing.T) {
	entities := NewEntities()
	for range 4 {
		entities.Alloc()
	}
	for i := uint32(0); i < 4; i++ {
		_, err := entities.Free(Entity{index: i})
		require.NoError(t, err)
	}

	batch := entities.ReserveEntities(2)
	reserved := batch.Collect()
	assert.Equal(t, []uint32{3, 2}, []uint32{reserved[0].index, reserved[1].index})

	for i := uint32(0); i < 4; i++ {
		e := Entity{index: i, generation: 1}
		assert.Equal(t, i >= 2, entities.isPending(e), "index %d", i)
	}
}
