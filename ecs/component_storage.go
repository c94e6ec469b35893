package ecs

import (
	"reflect"
)

// iComponentStorage is a type-erased column of components addressed by archetype row.
type iComponentStorage interface {
	Put(index int, item any) bool
	Get(index int) any
	Has(index int) bool
	Delete(index int)
	Move(from, to int)
	Truncate(length int)
}

type componentInfo struct {
	id      uint32
	factory func() iComponentStorage
}

// ComponentRegistry manages component type registration for an ECS instance.
// Each Storage instance has its own ComponentRegistry, allowing multiple
// independent ECS systems to coexist without interference.
type ComponentRegistry struct {
	components map[reflect.Type]componentInfo
}

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		components: make(map[reflect.Type]componentInfo),
	}
}

// RegisterComponent registers a new component type with the given registry.
// This must be called for each component type before it can be used.
// Registering the same type twice keeps the first registration.
func RegisterComponent[T any](r *ComponentRegistry) {
	t := reflect.TypeFor[T]()
	if _, ok := r.components[t]; ok {
		return
	}
	r.components[t] = componentInfo{
		id: uint32(len(r.components)),
		factory: func() iComponentStorage {
			return &genericComponentStorage[T]{}
		},
	}
}

// lookup returns the registration of a component type.
func (r *ComponentRegistry) lookup(t reflect.Type) (componentInfo, bool) {
	info, ok := r.components[t]
	return info, ok
}

const (
	genericBlockSize = 64
)

// genericComponentStorage stores components of a specific type `T` in blocks.
// Blocks are allocated individually and never moved, so pointers returned by
// Get stay valid until the row is deleted or moved.
type genericComponentStorage[T any] struct {
	blocks []*[genericBlockSize]T
	filled []*[genericBlockSize]bool
	length int
}

// Put writes a component at index, growing the storage as needed.
func (cs *genericComponentStorage[T]) Put(index int, item any) bool {
	var concreteItem T
	if ptr, ok := item.(*T); ok {
		concreteItem = *ptr
	} else if val, ok := item.(T); ok {
		concreteItem = val
	} else {
		return false
	}

	blockIdx := index / genericBlockSize
	slotIdx := index % genericBlockSize

	for blockIdx >= len(cs.blocks) {
		cs.blocks = append(cs.blocks, new([genericBlockSize]T))
		cs.filled = append(cs.filled, new([genericBlockSize]bool))
	}

	cs.blocks[blockIdx][slotIdx] = concreteItem
	cs.filled[blockIdx][slotIdx] = true
	if index >= cs.length {
		cs.length = index + 1
	}
	return true
}

// Get returns a pointer to the component at the given index.
func (cs *genericComponentStorage[T]) Get(index int) any {
	if !cs.Has(index) {
		return nil
	}
	return &cs.blocks[index/genericBlockSize][index%genericBlockSize]
}

// Has checks if a component exists at the given index.
func (cs *genericComponentStorage[T]) Has(index int) bool {
	if index < 0 || index >= cs.length {
		return false
	}
	return cs.filled[index/genericBlockSize][index%genericBlockSize]
}

// Delete marks a component slot as empty.
func (cs *genericComponentStorage[T]) Delete(index int) {
	if !cs.Has(index) {
		return
	}

	blockIdx := index / genericBlockSize
	slotIdx := index % genericBlockSize

	var zero T
	cs.blocks[blockIdx][slotIdx] = zero
	cs.filled[blockIdx][slotIdx] = false
}

// Move relocates the component at from to the empty slot at to.
func (cs *genericComponentStorage[T]) Move(from, to int) {
	if from == to || !cs.Has(from) {
		return
	}
	cs.Put(to, cs.blocks[from/genericBlockSize][from%genericBlockSize])
	cs.Delete(from)
}

// Truncate drops every slot at or past length and releases unused blocks.
func (cs *genericComponentStorage[T]) Truncate(length int) {
	if length >= cs.length {
		return
	}
	for i := length; i < cs.length; i++ {
		cs.Delete(i)
	}
	numBlocks := max((length+genericBlockSize-1)/genericBlockSize, 1)
	if numBlocks < len(cs.blocks) {
		clear(cs.blocks[numBlocks:])
		clear(cs.filled[numBlocks:])
		cs.blocks = cs.blocks[:numBlocks]
		cs.filled = cs.filled[:numBlocks]
	}
	cs.length = length
}
