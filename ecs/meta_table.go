package ecs

const (
	metaBlockSize = 1024
)

// entityMeta is the per-slot state tracked by the allocator.
type entityMeta struct {
	generation uint32
	location   EntityLocation
	free       bool
	// freePos is the slot's position in the free list while free is set.
	freePos uint32
}

var emptyMeta = entityMeta{location: InvalidLocation}

// metaTable stores entity metadata in fixed-size blocks.
// Growing the table appends blocks, existing slots are never moved.
type metaTable struct {
	blocks []*[metaBlockSize]entityMeta
	length int
}

// Len returns the number of slots in the table.
func (t *metaTable) Len() int {
	return t.length
}

// Get returns a pointer to the slot at index, which must be below Len().
func (t *metaTable) Get(index uint32) *entityMeta {
	blockIdx := index / metaBlockSize
	slotIdx := index % metaBlockSize
	return &t.blocks[blockIdx][slotIdx]
}

// Push appends a slot and returns its index.
func (t *metaTable) Push(meta entityMeta) uint32 {
	index := t.length
	blockIdx := index / metaBlockSize
	slotIdx := index % metaBlockSize

	if blockIdx >= len(t.blocks) {
		t.blocks = append(t.blocks, new([metaBlockSize]entityMeta))
	}

	t.blocks[blockIdx][slotIdx] = meta
	t.length++
	return uint32(index)
}

// Grow makes sure at least additional more slots fit without allocating a block.
func (t *metaTable) Grow(additional int) {
	needed := (t.length + additional + metaBlockSize - 1) / metaBlockSize
	for len(t.blocks) < needed {
		t.blocks = append(t.blocks, new([metaBlockSize]entityMeta))
	}
}

// Reset drops all slots but keeps the first block for reuse.
func (t *metaTable) Reset() {
	if len(t.blocks) > 1 {
		clear(t.blocks[1:])
		t.blocks = t.blocks[:1]
	}
	t.length = 0
}
