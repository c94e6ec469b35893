package ecs

import "go.uber.org/zap"

// Resolver decides where a reserved entity lives when it is flushed.
// Returning false (or InvalidLocation) flushes the entity without a location.
// A Resolver must not call back into the allocator being flushed.
type Resolver func(entity Entity) (EntityLocation, bool)

// Flush materializes every entity reserved since the previous flush, in the
// order the reservations were made, and records the location resolve gives
// for each of them. A nil resolve marks them all invalid.
// It returns the number of entities flushed.
func (e *Entities) Flush(resolve Resolver) int {
	pending := e.reserved.Swap(0)
	if pending == 0 {
		return 0
	}

	freeAtFlush := e.freeAtFlush
	tableLen := e.meta.Len()
	if _, _, err := deriveSlot(pending-1, freeAtFlush, e.freeList, tableLen); err != nil {
		e.reserved.Store(pending)
		panic(err)
	}

	recycled := min(pending, uint64(freeAtFlush))
	e.meta.Grow(int(pending - recycled))

	for ordinal := uint64(0); ordinal < pending; ordinal++ {
		index, fresh, _ := deriveSlot(ordinal, freeAtFlush, e.freeList, tableLen)

		var meta *entityMeta
		if fresh {
			meta = e.meta.Get(e.meta.Push(emptyMeta))
		} else {
			meta = e.meta.Get(index)
			meta.free = false
		}

		loc := InvalidLocation
		if resolve != nil {
			if resolved, ok := resolve(Entity{index: index, generation: meta.generation}); ok {
				loc = resolved
			}
		}

		meta.location = loc
		if loc.IsValid() {
			e.live++
		}
	}

	e.freeList = e.freeList[:freeAtFlush-int(recycled)]
	e.freeAtFlush = len(e.freeList)
	e.epoch++

	e.log.Debug("flushed reserved entities",
		zap.Uint64("count", pending),
		zap.Uint64("recycled", recycled),
		zap.Int("total", e.meta.Len()))

	return int(pending)
}

// FlushAsInvalid flushes every reserved entity without a location.
func (e *Entities) FlushAsInvalid() int {
	return e.Flush(nil)
}
