package ecs

import (
	"iter"
	"math"
)

// deriveSlot maps a reservation ordinal to a slot index.
// Ordinals below freeAtFlush take free slots from the tail of freeList, the
// same order Alloc pops them in. Later ordinals extend the table past tableLen.
// fresh reports whether the slot lies beyond the table.
func deriveSlot(ordinal uint64, freeAtFlush int, freeList []uint32, tableLen int) (index uint32, fresh bool, err error) {
	if ordinal < uint64(freeAtFlush) {
		return freeList[freeAtFlush-1-int(ordinal)], false, nil
	}

	next := uint64(tableLen) + (ordinal - uint64(freeAtFlush))
	if next >= math.MaxUint32 {
		return 0, true, ErrIndexSpaceExhausted
	}
	return uint32(next), true, nil
}

// ReserveEntity reserves an entity that becomes real on the next Flush.
// It is safe to call from multiple goroutines at once and never blocks.
func (e *Entities) ReserveEntity() Entity {
	ordinal := e.reserved.Add(1) - 1
	return e.entityAt(ordinal)
}

// ReserveEntities reserves count entities with a single atomic operation.
// It is safe to call from multiple goroutines at once and never blocks.
func (e *Entities) ReserveEntities(count uint32) ReservedEntities {
	end := e.reserved.Add(uint64(count))
	start := end - uint64(count)

	if count > 0 {
		if _, _, err := deriveSlot(end-1, e.freeAtFlush, e.freeList, e.meta.Len()); err != nil {
			panic(err)
		}
	}

	return ReservedEntities{
		entities: e,
		start:    start,
		count:    count,
		epoch:    e.epoch,
	}
}

// Reserver returns a handle that can only reserve entities.
// Hand it to code that runs concurrently and must not touch the allocator otherwise.
func (e *Entities) Reserver() *Reserver {
	return &Reserver{entities: e}
}

// entityAt returns the entity reserved under the given ordinal.
func (e *Entities) entityAt(ordinal uint64) Entity {
	index, fresh, err := deriveSlot(ordinal, e.freeAtFlush, e.freeList, e.meta.Len())
	if err != nil {
		panic(err)
	}
	if fresh {
		return Entity{index: index}
	}
	return Entity{index: index, generation: e.meta.Get(index).generation}
}

// Reserver is the concurrent half of an Entities allocator.
type Reserver struct {
	entities *Entities
}

// ReserveEntity reserves a single entity, see Entities.ReserveEntity.
func (r *Reserver) ReserveEntity() Entity {
	return r.entities.ReserveEntity()
}

// ReserveEntities reserves count entities, see Entities.ReserveEntities.
func (r *Reserver) ReserveEntities(count uint32) ReservedEntities {
	return r.entities.ReserveEntities(count)
}

// ReservedEntities is a batch of reserved entities.
// Entities are derived lazily from their ordinals, so the batch can be iterated
// any number of times until the allocator is flushed. Use Collect to keep them
// past the flush.
type ReservedEntities struct {
	entities *Entities
	start    uint64
	count    uint32
	epoch    uint64
}

// Len returns the number of reserved entities in the batch.
func (r ReservedEntities) Len() int {
	return int(r.count)
}

// At returns the i-th entity of the batch.
func (r ReservedEntities) At(i int) Entity {
	if i < 0 || i >= int(r.count) {
		panic("ecs: reserved entity index out of range")
	}
	r.checkEpoch()
	return r.entities.entityAt(r.start + uint64(i))
}

// All iterates the batch in ordinal order.
func (r ReservedEntities) All() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		if r.count == 0 {
			return
		}
		r.checkEpoch()

		for i := uint64(0); i < uint64(r.count); i++ {
			if !yield(r.entities.entityAt(r.start + i)) {
				return
			}
		}
	}
}

// Collect returns the batch as a slice.
func (r ReservedEntities) Collect() []Entity {
	out := make([]Entity, 0, r.count)
	for entity := range r.All() {
		out = append(out, entity)
	}
	return out
}

func (r ReservedEntities) checkEpoch() {
	if r.entities.epoch != r.epoch {
		panic("ecs: reserved entities used after the allocator was flushed")
	}
}
