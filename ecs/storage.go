package ecs

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// EmptyArchetypeId is the archetype of entities without components.
const EmptyArchetypeId uint32 = 0

// Storage is the main ECS storage interface.
// It owns an Entities allocator and records each entity's archetype and row
// as the entity's location, so entities stay valid while their components move.
type Storage struct {
	entities     *Entities
	archetypes   []*Archetype
	archetypeIds map[string]uint32
	registry     *ComponentRegistry
	log          *zap.Logger

	// pendingSpawns holds component bundles of reserved entities until Flush.
	pendingSpawns *xsync.MapOf[uint64, componentBundle]
}

type componentBundle struct {
	types      []reflect.Type
	components []any
}

// NewStorage creates a new ECS storage system with the given component registry.
// The options configure the underlying entity allocator.
func NewStorage(registry *ComponentRegistry, opts ...Option) *Storage {
	entities := NewEntities(opts...)
	s := &Storage{
		entities:      entities,
		archetypeIds:  make(map[string]uint32),
		registry:      registry,
		log:           entities.log,
		pendingSpawns: xsync.NewMapOf[uint64, componentBundle](),
	}
	s.archetypeFor(nil)
	return s
}

// Entities returns the allocator backing this storage.
func (s *Storage) Entities() *Entities {
	return s.entities
}

// Reserver returns the concurrent reservation handle of the allocator.
func (s *Storage) Reserver() *Reserver {
	return s.entities.Reserver()
}

// ReserveEntity reserves an entity that is placed in the empty archetype on the next Flush.
// It is safe to call concurrently with other reservations.
func (s *Storage) ReserveEntity() Entity {
	return s.entities.ReserveEntity()
}

// SpawnDeferred reserves an entity and queues its components; the entity is
// placed on the next Flush. It is safe to call from multiple goroutines at once.
func (s *Storage) SpawnDeferred(components ...any) Entity {
	bundle := componentBundle{
		types:      s.componentTypes(components),
		components: components,
	}
	entity := s.entities.ReserveEntity()
	s.pendingSpawns.Store(entity.Bits(), bundle)
	return entity
}

// Flush materializes all reserved entities. Entities reserved through
// SpawnDeferred get their queued components, every other reserved entity
// lands in the empty archetype. It returns the number of entities flushed.
//
// Reservations flushed on the allocator directly (Entities().Flush) stay
// without components; their queued bundles are dropped here.
func (s *Storage) Flush() int {
	if !s.entities.NeedsFlush() {
		s.dropStaleSpawns()
		return 0
	}

	empty := s.archetypes[EmptyArchetypeId]
	n := s.entities.Flush(func(entity Entity) (EntityLocation, bool) {
		bundle, ok := s.pendingSpawns.LoadAndDelete(entity.Bits())
		if !ok {
			return EntityLocation{ArchetypeId: empty.id, Row: empty.spawn(entity, nil)}, true
		}
		archetype := s.archetypeFor(bundle.types)
		return EntityLocation{ArchetypeId: archetype.id, Row: archetype.spawn(entity, bundle.components)}, true
	})
	s.dropStaleSpawns()
	return n
}

// dropStaleSpawns forgets bundles whose reservations no longer exist.
// Once the allocator has nothing pending, every bundle left is stale.
func (s *Storage) dropStaleSpawns() {
	if n := s.pendingSpawns.Size(); n > 0 {
		s.log.Debug("dropped component bundles of entities flushed outside the storage", zap.Int("count", n))
		s.pendingSpawns.Clear()
	}
}

// Spawn creates a new entity with the provided components
func (s *Storage) Spawn(components ...any) Entity {
	types := s.componentTypes(components)
	s.Flush()

	entity := s.entities.Alloc()
	archetype := s.archetypeFor(types)
	row := archetype.spawn(entity, components)
	if err := s.entities.SetLocation(entity, EntityLocation{ArchetypeId: archetype.id, Row: row}); err != nil {
		panic(err)
	}
	return entity
}

// Despawn removes the entity and all its components.
func (s *Storage) Despawn(entity Entity) error {
	s.Flush()

	loc, err := s.entities.Free(entity)
	if err != nil {
		return fmt.Errorf("despawn %s: %w", entity, err)
	}
	if loc.IsValid() {
		s.archetypes[loc.ArchetypeId].delete(loc.Row)
	}
	return nil
}

// Contains reports whether the entity is alive (or reserved) in this storage.
func (s *Storage) Contains(entity Entity) bool {
	return s.entities.Contains(entity)
}

// Location returns the archetype and row of the entity.
func (s *Storage) Location(entity Entity) (EntityLocation, bool) {
	return s.entities.GetLocation(entity)
}

// Len returns the number of placed entities.
func (s *Storage) Len() int {
	return s.entities.Len()
}

// AddComponent adds a component to the entity, moving it to a new archetype.
// If the entity already has a component of that type, the value is replaced.
func (s *Storage) AddComponent(entity Entity, component any) error {
	s.Flush()

	loc, err := s.placedLocation(entity)
	if err != nil {
		return fmt.Errorf("add component to %s: %w", entity, err)
	}

	compType := s.componentTypes([]any{component})[0]
	oldArchetype := s.archetypes[loc.ArchetypeId]
	if idx := oldArchetype.storageIndex(compType); idx != -1 {
		oldArchetype.storages[idx].Put(int(loc.Row), component)
		return nil
	}

	newTypes := append(slices.Clone(oldArchetype.types), compType)
	components := append(oldArchetype.components(loc.Row), component)
	return s.move(entity, loc, s.sortTypes(newTypes), components)
}

// RemoveComponent removes a component from the entity, moving it to a new archetype.
// Removing a component the entity lacks is a no-op.
func (s *Storage) RemoveComponent(entity Entity, compType reflect.Type) error {
	s.Flush()

	loc, err := s.placedLocation(entity)
	if err != nil {
		return fmt.Errorf("remove component from %s: %w", entity, err)
	}

	oldArchetype := s.archetypes[loc.ArchetypeId]
	if !oldArchetype.HasComponent(compType) {
		return nil
	}

	newTypes := make([]reflect.Type, 0, len(oldArchetype.types)-1)
	components := make([]any, 0, len(oldArchetype.types)-1)
	for _, typ := range oldArchetype.types {
		if typ != compType {
			newTypes = append(newTypes, typ)
			components = append(components, oldArchetype.GetComponent(loc.Row, typ))
		}
	}
	return s.move(entity, loc, newTypes, components)
}

func (s *Storage) move(entity Entity, from EntityLocation, types []reflect.Type, components []any) error {
	newArchetype := s.archetypeFor(types)
	newRow := newArchetype.spawn(entity, components)
	s.archetypes[from.ArchetypeId].delete(from.Row)
	return s.entities.SetLocation(entity, EntityLocation{ArchetypeId: newArchetype.id, Row: newRow})
}

// placedLocation returns the entity's location, treating an entity without one
// (flushed as invalid or allocated directly) as a member of the empty archetype.
func (s *Storage) placedLocation(entity Entity) (EntityLocation, error) {
	loc, err := s.entities.Location(entity)
	if err != nil {
		return InvalidLocation, err
	}
	if !loc.IsValid() {
		empty := s.archetypes[EmptyArchetypeId]
		loc = EntityLocation{ArchetypeId: empty.id, Row: empty.spawn(entity, nil)}
		if err := s.entities.SetLocation(entity, loc); err != nil {
			return InvalidLocation, err
		}
	}
	return loc, nil
}

// GetComponent returns the component for the given entity and component type
func (s *Storage) GetComponent(entity Entity, compType reflect.Type) any {
	loc, ok := s.entities.GetLocation(entity)
	if !ok {
		return nil
	}
	return s.archetypes[loc.ArchetypeId].GetComponent(loc.Row, compType)
}

// HasComponent checks if an entity has a specific component type
func (s *Storage) HasComponent(entity Entity, compType reflect.Type) bool {
	loc, ok := s.entities.GetLocation(entity)
	if !ok {
		return false
	}
	return s.archetypes[loc.ArchetypeId].HasComponent(compType)
}

// GetArchetype returns an archetype storage (if one exists)
func (s *Storage) GetArchetype(components ...any) *Archetype {
	return s.GetArchetypeByTypes(s.componentTypes(components))
}

// GetArchetypeByTypes returns an archetype storage (if one exists) based on reflect.Type
func (s *Storage) GetArchetypeByTypes(types []reflect.Type) *Archetype {
	for _, t := range types {
		if _, ok := s.registry.lookup(t); !ok {
			return nil
		}
	}
	id, ok := s.archetypeIds[s.archetypeKey(s.sortTypes(slices.Clone(types)))]
	if !ok {
		return nil
	}
	return s.archetypes[id]
}

// Archetypes returns every archetype, starting with the empty archetype
func (s *Storage) Archetypes() []*Archetype {
	return s.archetypes
}

// Compact packs every archetype's rows and updates the moved entities' locations.
func (s *Storage) Compact() {
	s.Flush()

	for _, archetype := range s.archetypes {
		for _, m := range archetype.compact() {
			if err := s.entities.SetLocation(m.entity, EntityLocation{ArchetypeId: archetype.id, Row: m.row}); err != nil {
				s.log.Error("compacted entity lost its slot", zap.Stringer("entity", m.entity), zap.Error(err))
			}
		}
	}
}

func (s *Storage) archetypeFor(types []reflect.Type) *Archetype {
	key := s.archetypeKey(types)
	if id, ok := s.archetypeIds[key]; ok {
		return s.archetypes[id]
	}

	archetype := newArchetype(uint32(len(s.archetypes)), types, s.registry)
	s.archetypes = append(s.archetypes, archetype)
	s.archetypeIds[key] = archetype.id
	s.log.Debug("created archetype", zap.Uint32("id", archetype.id), zap.Int("components", len(types)))
	return archetype
}

// archetypeKey encodes the registry ids of sorted component types.
func (s *Storage) archetypeKey(types []reflect.Type) string {
	key := make([]byte, 4*len(types))
	for i, t := range types {
		info, _ := s.registry.lookup(t)
		binary.LittleEndian.PutUint32(key[4*i:], info.id)
	}
	return string(key)
}

// componentTypes extracts and sorts component types from a slice of components
func (s *Storage) componentTypes(components []any) []reflect.Type {
	types := make([]reflect.Type, 0, len(components))
	for _, comp := range components {
		compType := componentType(comp)
		if compType == nil {
			panic("components cannot be nil")
		}

		// Components can be structs or primitives (int, string, etc.)
		// But not pointers, maps, channels, or functions (those aren't value types)
		if compType.Kind() == reflect.Ptr || compType.Kind() == reflect.Map ||
			compType.Kind() == reflect.Chan || compType.Kind() == reflect.Func {
			panic("components cannot be pointers, maps, channels, or functions")
		}
		if _, ok := s.registry.lookup(compType); !ok {
			panic("component type " + compType.String() + " not registered")
		}
		if slices.Contains(types, compType) {
			panic("duplicate component type " + compType.String())
		}

		types = append(types, compType)
	}
	return s.sortTypes(types)
}

// sortTypes orders component types by registry id.
func (s *Storage) sortTypes(types []reflect.Type) []reflect.Type {
	slices.SortFunc(types, func(a, b reflect.Type) int {
		ia, _ := s.registry.lookup(a)
		ib, _ := s.registry.lookup(b)
		return int(ia.id) - int(ib.id)
	})
	return types
}

type ComponentReader interface {
	GetComponent(Entity, reflect.Type) any
}

// ReadComponent returns the entity's component of type T, or nil if it has none.
func ReadComponent[T any](reader ComponentReader, entity Entity) *T {
	comp := reader.GetComponent(entity, reflect.TypeFor[T]())
	if comp == nil {
		return nil
	}
	return comp.(*T)
}
