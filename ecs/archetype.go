package ecs

import (
	"iter"
	"reflect"
	"slices"

	"github.com/kamstrup/intmap"
)

// Archetype represents a unique combination of component types.
// Entities in an archetype occupy rows; a row index is only reused after the
// entity in it has been removed.
type Archetype struct {
	id       uint32
	types    []reflect.Type
	storages []iComponentStorage
	entities *intmap.Map[uint32, Entity]
	freeRows []uint32
	nextRow  uint32
}

// newArchetype creates a new archetype with the given ID and sorted component types
func newArchetype(id uint32, types []reflect.Type, registry *ComponentRegistry) *Archetype {
	a := &Archetype{
		id:       id,
		types:    types,
		storages: make([]iComponentStorage, len(types)),
		entities: intmap.New[uint32, Entity](256),
	}

	// Initialize storage for each component type
	for idx, typ := range types {
		info, ok := registry.lookup(typ)
		if !ok {
			panic("component type " + typ.String() + " not registered")
		}
		a.storages[idx] = info.factory()
	}

	return a
}

// spawn places the entity and its components in a free row and returns the row.
func (a *Archetype) spawn(entity Entity, components []any) uint32 {
	row := a.allocRow()
	for _, comp := range components {
		idx := a.storageIndex(componentType(comp))
		if idx == -1 {
			panic("component type " + componentType(comp).String() + " does not belong to this archetype")
		}
		a.storages[idx].Put(int(row), comp)
	}
	a.entities.Put(row, entity)
	return row
}

func (a *Archetype) allocRow() uint32 {
	if n := len(a.freeRows); n > 0 {
		row := a.freeRows[n-1]
		a.freeRows = a.freeRows[:n-1]
		return row
	}
	row := a.nextRow
	a.nextRow++
	return row
}

// delete removes the entity's components from the row and frees the row.
func (a *Archetype) delete(row uint32) {
	if !a.entities.Del(row) {
		return
	}
	for _, storage := range a.storages {
		storage.Delete(int(row))
	}
	a.freeRows = append(a.freeRows, row)
}

// components returns the components stored in a row, in archetype type order.
func (a *Archetype) components(row uint32) []any {
	out := make([]any, 0, len(a.storages))
	for _, storage := range a.storages {
		if comp := storage.Get(int(row)); comp != nil {
			out = append(out, comp)
		}
	}
	return out
}

func (a *Archetype) storageIndex(compType reflect.Type) int {
	for i, typ := range a.types {
		if typ == compType {
			return i
		}
	}
	return -1
}

// GetComponent returns a pointer to the component of the given type in a row,
// or nil if the row is empty or the archetype lacks the type.
func (a *Archetype) GetComponent(row uint32, compType reflect.Type) any {
	idx := a.storageIndex(compType)
	if idx == -1 {
		return nil
	}
	return a.storages[idx].Get(int(row))
}

// EntityAt returns the entity stored in a row.
func (a *Archetype) EntityAt(row uint32) (Entity, bool) {
	return a.entities.Get(row)
}

// HasComponent checks if this archetype has the given component type
func (a *Archetype) HasComponent(compType reflect.Type) bool {
	return slices.Contains(a.types, compType)
}

// ID returns the archetype's unique identifier
func (a *Archetype) ID() uint32 {
	return a.id
}

// Types returns the sorted component types for this archetype
func (a *Archetype) Types() []reflect.Type {
	return a.types
}

// Len returns the number of entities in this archetype
func (a *Archetype) Len() int {
	return a.entities.Len()
}

type rowMove struct {
	entity Entity
	row    uint32
}

// compact packs rows to the front, eliminating holes left by deleted entities.
// It returns the entities whose row changed.
func (a *Archetype) compact() []rowMove {
	var moved []rowMove
	var writeRow uint32

	for readRow := uint32(0); readRow < a.nextRow; readRow++ {
		entity, ok := a.entities.Get(readRow)
		if !ok {
			continue
		}
		if readRow != writeRow {
			for _, storage := range a.storages {
				storage.Move(int(readRow), int(writeRow))
			}
			a.entities.Del(readRow)
			a.entities.Put(writeRow, entity)
			moved = append(moved, rowMove{entity: entity, row: writeRow})
		}
		writeRow++
	}

	for _, storage := range a.storages {
		storage.Truncate(int(writeRow))
	}
	a.freeRows = a.freeRows[:0]
	a.nextRow = writeRow
	return moved
}

// Iter returns an iterator over the entities in this archetype in row order
func (a *Archetype) Iter() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for row := uint32(0); row < a.nextRow; row++ {
			entity, ok := a.entities.Get(row)
			if !ok {
				continue
			}
			if !yield(entity) {
				return
			}
		}
	}
}

// componentType returns the component type of a value, looking through one pointer.
func componentType(component any) reflect.Type {
	compType := reflect.TypeOf(component)
	if compType != nil && compType.Kind() == reflect.Ptr {
		compType = compType.Elem()
	}
	return compType
}
