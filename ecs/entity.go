package ecs

import (
	"cmp"
	"fmt"
	"math"
)

// Entity is a generational handle to a slot in an Entities allocator.
// The index names the slot, the generation tells apart successive occupants
// of the same slot. Only the allocator mints entities.
type Entity struct {
	index      uint32
	generation uint32
}

// PlaceholderEntity is never returned by an allocator and can be used to
// initialize Entity fields before a real entity is known.
var PlaceholderEntity = Entity{index: math.MaxUint32}

// Index returns the slot index of the entity
func (e Entity) Index() uint32 {
	return e.index
}

// Generation returns how many times the slot had been recycled when the entity was minted
func (e Entity) Generation() uint32 {
	return e.generation
}

// Bits packs the entity into a single integer (generation in the upper 32 bits, index in the lower 32 bits).
// Distinct entities always have distinct bits.
func (e Entity) Bits() uint64 {
	return uint64(e.generation)<<32 | uint64(e.index)
}

func (e Entity) String() string {
	if e == PlaceholderEntity {
		return "PLACEHOLDER"
	}
	return fmt.Sprintf("%dv%d", e.index, e.generation)
}

// Compare orders entities by index, then by generation.
func Compare(a, b Entity) int {
	if c := cmp.Compare(a.index, b.index); c != 0 {
		return c
	}
	return cmp.Compare(a.generation, b.generation)
}

func entityFromBits(bits uint64) Entity {
	return Entity{
		index:      uint32(bits & 0xFFFFFFFF),
		generation: uint32(bits >> 32),
	}
}
