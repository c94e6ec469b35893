package ecs_test

import (
	"fmt"

	"github.com/plus3/ecsid/ecs"
)

type CleanupSystem struct{}

func (s *CleanupSystem) Execute(frame *ecs.UpdateFrame) {
	archetype := frame.Storage.GetArchetype(Position{}, Health{})
	if archetype == nil {
		return
	}

	deadCount := 0
	for e := range archetype.Iter() {
		if ecs.ReadComponent[Health](frame.Storage, e).Current <= 0 {
			frame.Commands.Despawn(e)
			deadCount++
		}
	}
	if deadCount > 0 {
		fmt.Printf("Queued %d dead entities for despawn\n", deadCount)
	}
}

// ExampleCommands demonstrates using command buffers to defer entity mutations.
// Systems run concurrently, so they must not change the storage's structure
// while iterating. The Scheduler applies every system's commands at the end of
// each frame.
func ExampleCommands() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Health](registry)
	storage := ecs.NewStorage(registry)

	storage.Spawn(Position{X: 0, Y: 0}, Health{Current: 0, Max: 100})
	storage.Spawn(Position{X: 10, Y: 10}, Health{Current: 50, Max: 100})
	storage.Spawn(Position{X: 20, Y: 20}, Health{Current: 100, Max: 100})

	scheduler := ecs.NewScheduler(storage)
	scheduler.Register(&CleanupSystem{})

	scheduler.Once(1.0)

	fmt.Printf("Remaining entities: %d\n", storage.Len())

	// Output:
	// Queued 1 dead entities for despawn
	// Remaining entities: 2
}

type ShootTimer struct {
	TimeUntilShot float32
}

type ShootingSystem struct{}

func (s *ShootingSystem) Execute(frame *ecs.UpdateFrame) {
	archetype := frame.Storage.GetArchetype(Position{}, Velocity{}, ShootTimer{})
	if archetype == nil {
		return
	}

	for e := range archetype.Iter() {
		timer := ecs.ReadComponent[ShootTimer](frame.Storage, e)
		if timer.TimeUntilShot > 0 {
			continue
		}
		pos := ecs.ReadComponent[Position](frame.Storage, e)
		vel := ecs.ReadComponent[Velocity](frame.Storage, e)

		projectile := frame.Commands.Spawn(
			Position{X: pos.X, Y: pos.Y},
			Velocity{DX: vel.DX * 2, DY: vel.DY * 2},
		)
		fmt.Printf("Spawned projectile %s at (%.0f, %.0f)\n", projectile, pos.X, pos.Y)
		timer.TimeUntilShot = 10
	}
}

// ExampleCommands_spawning shows using commands to spawn entities during iteration.
// The projectile's handle is reserved on the spot, so it can be printed, stored or
// referenced by other commands before the entity is placed at the end of the frame.
func ExampleCommands_spawning() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[ShootTimer](registry)
	storage := ecs.NewStorage(registry)

	storage.Spawn(
		Position{X: 10, Y: 10},
		Velocity{DX: 1, DY: 0},
		ShootTimer{TimeUntilShot: 0},
	)
	storage.Spawn(
		Position{X: 20, Y: 20},
		Velocity{DX: 0, DY: 1},
		ShootTimer{TimeUntilShot: 5},
	)

	scheduler := ecs.NewScheduler(storage)
	scheduler.Register(&ShootingSystem{})

	scheduler.Once(1.0)

	fmt.Printf("Total entities: %d\n", storage.Len())
	fmt.Printf("Projectiles: %d\n", storage.GetArchetype(Position{}, Velocity{}).Len())

	// Output:
	// Spawned projectile 2v0 at (10, 10)
	// Total entities: 3
	// Projectiles: 1
}
