package ecs

import (
	"iter"

	"github.com/kamstrup/intmap"
)

// EntityMap is a hash map keyed by Entity.
// Keys hash the packed entity bits, so stale and current entities of the same
// slot are distinct keys.
type EntityMap[V any] struct {
	m *intmap.Map[uint64, V]
}

// NewEntityMap creates an EntityMap with room for capacity entries.
func NewEntityMap[V any](capacity int) *EntityMap[V] {
	return &EntityMap[V]{m: intmap.New[uint64, V](capacity)}
}

func (m *EntityMap[V]) Put(e Entity, v V) {
	m.m.Put(e.Bits(), v)
}

func (m *EntityMap[V]) Get(e Entity) (V, bool) {
	return m.m.Get(e.Bits())
}

func (m *EntityMap[V]) Has(e Entity) bool {
	return m.m.Has(e.Bits())
}

// Del removes e and reports whether it was present.
func (m *EntityMap[V]) Del(e Entity) bool {
	return m.m.Del(e.Bits())
}

func (m *EntityMap[V]) Len() int {
	return m.m.Len()
}

// Clear removes every entry but keeps the allocated buckets.
func (m *EntityMap[V]) Clear() {
	m.m.Clear()
}

// All iterates the entries in no particular order.
func (m *EntityMap[V]) All() iter.Seq2[Entity, V] {
	return func(yield func(Entity, V) bool) {
		for bits, v := range m.m.All() {
			if !yield(entityFromBits(bits), v) {
				return
			}
		}
	}
}

// EntitySet is a set of entities.
type EntitySet struct {
	s *intmap.Set[uint64]
}

// NewEntitySet creates an EntitySet with room for capacity entities.
func NewEntitySet(capacity int) *EntitySet {
	return &EntitySet{s: intmap.NewSet[uint64](capacity)}
}

// Add inserts e and reports whether it was not present before.
func (s *EntitySet) Add(e Entity) bool {
	return s.s.Add(e.Bits())
}

func (s *EntitySet) Has(e Entity) bool {
	return s.s.Has(e.Bits())
}

func (s *EntitySet) Del(e Entity) bool {
	return s.s.Del(e.Bits())
}

func (s *EntitySet) Len() int {
	return s.s.Len()
}

func (s *EntitySet) Clear() {
	s.s.Clear()
}

// All iterates the set in no particular order.
func (s *EntitySet) All() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for bits := range s.s.All() {
			if !yield(entityFromBits(bits)) {
				return
			}
		}
	}
}
