package ecs

import (
	"math"
	"slices"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Entities allocates, recycles and invalidates entity handles.
//
// Entities has two access modes. ReserveEntity and ReserveEntities (and the
// Reserver handle returned by Reserver) may be called from any number of
// goroutines at once. Every other method needs exclusive access: the caller
// must make sure no reservation runs concurrently with it. Reservations are
// turned into real slots by Flush.
type Entities struct {
	meta     metaTable
	freeList []uint32

	// freeAtFlush is the length of freeList when reserved was last reset.
	// Reservation ordinals below it consume freeList from the tail.
	freeAtFlush int
	reserved    atomic.Uint64

	live  int
	epoch uint64
	log   *zap.Logger
}

// Option configures an Entities allocator.
type Option func(*Entities)

// WithLogger sets the logger used for generation wraparound and flush diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(e *Entities) {
		if log != nil {
			e.log = log
		}
	}
}

// WithCapacity pre-allocates room for n entities.
func WithCapacity(n int) Option {
	return func(e *Entities) {
		e.ReserveCapacity(n)
	}
}

// NewEntities creates an empty allocator.
func NewEntities(opts ...Option) *Entities {
	e := &Entities{
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Alloc returns a new entity, recycling the most recently freed slot if there is one.
// It panics with ErrPendingReservations if reserved entities have not been flushed.
func (e *Entities) Alloc() Entity {
	if e.NeedsFlush() {
		panic(ErrPendingReservations)
	}

	if n := len(e.freeList); n > 0 {
		index := e.freeList[n-1]
		e.freeList = e.freeList[:n-1]
		e.freeAtFlush = len(e.freeList)

		meta := e.meta.Get(index)
		meta.free = false
		return Entity{index: index, generation: meta.generation}
	}

	if int64(e.meta.Len()) >= math.MaxUint32 {
		panic(ErrIndexSpaceExhausted)
	}
	return Entity{index: e.meta.Push(emptyMeta)}
}

// Free releases the entity's slot for reuse and returns the location it had.
// The returned location is InvalidLocation if the entity was never placed.
// Freeing a stale or already freed entity returns a *StaleEntityError and changes nothing.
func (e *Entities) Free(entity Entity) (EntityLocation, error) {
	if e.NeedsFlush() {
		return InvalidLocation, ErrPendingReservations
	}

	meta, err := e.lookup(entity)
	if err != nil {
		return InvalidLocation, err
	}

	loc := meta.location
	if loc.IsValid() {
		e.live--
	}

	meta.location = InvalidLocation
	meta.generation++
	if meta.generation == 0 {
		e.log.Warn("entity generation wrapped around, stale handles to this slot may alias",
			zap.Uint32("index", entity.index))
	}

	meta.free = true
	meta.freePos = uint32(len(e.freeList))
	e.freeList = append(e.freeList, entity.index)
	e.freeAtFlush = len(e.freeList)

	return loc, nil
}

// SetLocation records where the components of a materialized entity live.
// Passing InvalidLocation detaches the entity from storage without freeing it.
func (e *Entities) SetLocation(entity Entity, loc EntityLocation) error {
	if e.isPending(entity) {
		return ErrPendingReservations
	}

	meta, err := e.lookup(entity)
	if err != nil {
		return err
	}

	switch {
	case meta.location.IsValid() && !loc.IsValid():
		e.live--
	case !meta.location.IsValid() && loc.IsValid():
		e.live++
	}
	meta.location = loc
	return nil
}

// Contains reports whether the entity is live or reserved and waiting for a flush.
func (e *Entities) Contains(entity Entity) bool {
	if _, err := e.lookup(entity); err == nil {
		return true
	}
	return e.isPending(entity)
}

// Location returns the entity's location. Entities that are reserved, or
// allocated but not placed yet, have InvalidLocation and no error.
func (e *Entities) Location(entity Entity) (EntityLocation, error) {
	if e.isPending(entity) {
		return InvalidLocation, nil
	}

	meta, err := e.lookup(entity)
	if err != nil {
		return InvalidLocation, err
	}
	return meta.location, nil
}

// GetLocation returns the entity's location and whether it has one.
func (e *Entities) GetLocation(entity Entity) (EntityLocation, bool) {
	loc, err := e.Location(entity)
	if err != nil || !loc.IsValid() {
		return InvalidLocation, false
	}
	return loc, true
}

// ResolveFromID returns the entity currently occupying (or reserved for) the given index.
func (e *Entities) ResolveFromID(index uint32) (Entity, bool) {
	candidate := Entity{index: index}
	if int64(index) < int64(e.meta.Len()) {
		candidate.generation = e.meta.Get(index).generation
	}
	if !e.Contains(candidate) {
		return PlaceholderEntity, false
	}
	return candidate, true
}

// Len returns the number of entities that have a location.
func (e *Entities) Len() int {
	return e.live
}

// IsEmpty reports whether no entity has a location.
func (e *Entities) IsEmpty() bool {
	return e.live == 0
}

// TotalCount returns the number of slots ever materialized, free or not.
func (e *Entities) TotalCount() int {
	return e.meta.Len()
}

// FreeCount returns the number of slots waiting to be recycled.
func (e *Entities) FreeCount() int {
	return len(e.freeList)
}

// PendingCount returns the number of entities reserved since the last flush.
// It is safe to call concurrently with reservations.
func (e *Entities) PendingCount() int {
	return int(e.reserved.Load())
}

// NeedsFlush reports whether there are reserved entities that have not been flushed.
func (e *Entities) NeedsFlush() bool {
	return e.reserved.Load() != 0
}

// ReserveCapacity grows the allocator so that additional entities can be
// materialized without further allocation.
func (e *Entities) ReserveCapacity(additional int) {
	if additional <= 0 {
		return
	}
	e.meta.Grow(additional)
	e.freeList = slices.Grow(e.freeList, additional)
}

// Clear drops every entity, free slot and pending reservation.
// Previously issued entities must not be used with this allocator afterwards.
func (e *Entities) Clear() {
	e.meta.Reset()
	e.freeList = e.freeList[:0]
	e.freeAtFlush = 0
	e.reserved.Store(0)
	e.live = 0
	e.epoch++
}

// lookup returns the slot of a live entity or a *StaleEntityError.
func (e *Entities) lookup(entity Entity) (*entityMeta, error) {
	if int64(entity.index) >= int64(e.meta.Len()) {
		return nil, staleEntity(entity, "index not allocated")
	}

	meta := e.meta.Get(entity.index)
	if meta.generation != entity.generation {
		return nil, staleEntity(entity, "generation mismatch")
	}
	if meta.free {
		return nil, staleEntity(entity, "already free")
	}
	return meta, nil
}

// isPending reports whether the entity was handed out by a reservation that has not been flushed.
func (e *Entities) isPending(entity Entity) bool {
	pending := e.reserved.Load()
	if pending == 0 {
		return false
	}

	tableLen := int64(e.meta.Len())
	if int64(entity.index) >= tableLen {
		if entity.generation != 0 || pending <= uint64(e.freeAtFlush) {
			return false
		}
		fresh := uint64(int64(entity.index) - tableLen)
		return fresh < pending-uint64(e.freeAtFlush)
	}

	meta := e.meta.Get(entity.index)
	if !meta.free || meta.generation != entity.generation || int(meta.freePos) >= e.freeAtFlush {
		return false
	}
	ordinal := uint64(e.freeAtFlush - 1 - int(meta.freePos))
	return ordinal < pending
}
