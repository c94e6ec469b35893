package ecs

import (
	"errors"
	"reflect"
)

// Commands provides a buffer for deferred ECS operations that are executed at the end of a frame.
// This prevents structural changes to the ECS storage during system execution.
// Spawned entities are reserved right away, so their handles can be used
// (stored, compared, referenced by other commands) before the frame ends.
type Commands struct {
	storage  *Storage
	despawns []Entity
	adds     []addComponentCommand
	removes  []removeComponentCommand
	defers   []deferCommand
}

// NewCommands creates an empty command buffer for the storage.
func NewCommands(storage *Storage) *Commands {
	return &Commands{storage: storage}
}

type deferCommand struct {
	fn func()
}

type addComponentCommand struct {
	entity    Entity
	component any
}

type removeComponentCommand struct {
	entity   Entity
	compType reflect.Type
}

// Spawn reserves an entity and queues its components.
func (c *Commands) Spawn(components ...any) Entity {
	return c.storage.SpawnDeferred(components...)
}

// Reserve reserves an entity without components.
func (c *Commands) Reserve() Entity {
	return c.storage.ReserveEntity()
}

// Defer queues a function execution operation.
func (c *Commands) Defer(fn func()) {
	c.defers = append(c.defers, deferCommand{fn: fn})
}

// Despawn queues an entity removal.
func (c *Commands) Despawn(entity Entity) {
	c.despawns = append(c.despawns, entity)
}

// AddComponent queues a component addition operation.
func (c *Commands) AddComponent(entity Entity, component any) {
	c.adds = append(c.adds, addComponentCommand{
		entity:    entity,
		component: component,
	})
}

// RemoveComponent queues a component removal operation.
func (c *Commands) RemoveComponent(entity Entity, compType reflect.Type) {
	c.removes = append(c.removes, removeComponentCommand{
		entity:   entity,
		compType: compType,
	})
}

// Apply flushes reserved entities, then applies despawns, component removals,
// component additions and deferred functions, in that order, and resets the buffer.
// Commands on entities despawned in the same buffer are skipped. Failed
// commands do not stop the others; their errors are joined.
func (c *Commands) Apply() error {
	c.storage.Flush()

	var errs []error
	despawned := NewEntitySet(len(c.despawns))

	for _, entity := range c.despawns {
		if !despawned.Add(entity) {
			continue
		}
		if err := c.storage.Despawn(entity); err != nil {
			errs = append(errs, err)
		}
	}

	for _, cmd := range c.removes {
		if !despawned.Has(cmd.entity) {
			if err := c.storage.RemoveComponent(cmd.entity, cmd.compType); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, cmd := range c.adds {
		if !despawned.Has(cmd.entity) {
			if err := c.storage.AddComponent(cmd.entity, cmd.component); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, df := range c.defers {
		df.fn()
	}

	c.despawns = c.despawns[:0]
	c.adds = c.adds[:0]
	c.removes = c.removes[:0]
	c.defers = c.defers[:0]

	return errors.Join(errs...)
}
