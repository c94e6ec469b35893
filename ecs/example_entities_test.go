package ecs_test

import (
	"fmt"
	"sync"

	"github.com/plus3/ecsid/ecs"
)

// ExampleEntities shows the life of an entity handle. Freeing an entity bumps
// the generation of its slot, so the old handle stops matching once the slot
// is handed out again.
func ExampleEntities() {
	entities := ecs.NewEntities()

	player := entities.Alloc()
	fmt.Println("allocated", player)

	if _, err := entities.Free(player); err != nil {
		panic(err)
	}
	enemy := entities.Alloc()
	fmt.Println("allocated", enemy)

	fmt.Println("player alive:", entities.Contains(player))
	fmt.Println("enemy alive:", entities.Contains(enemy))

	_, err := entities.Free(player)
	fmt.Println(err)

	// Output:
	// allocated 0v0
	// allocated 0v1
	// player alive: false
	// enemy alive: true
	// ecs: stale entity 0v0: generation mismatch
}

// ExampleEntities_ReserveEntity reserves entities from several goroutines.
// Reserved entities are usable handles right away; Flush turns them into
// real slots in the order they were reserved.
func ExampleEntities_ReserveEntity() {
	entities := ecs.NewEntities()
	reserver := entities.Reserver()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 25 {
				reserver.ReserveEntity()
			}
		}()
	}
	wg.Wait()

	fmt.Println("pending:", entities.PendingCount())

	flushed := entities.Flush(func(e ecs.Entity) (ecs.EntityLocation, bool) {
		return ecs.EntityLocation{ArchetypeId: 0, Row: e.Index()}, true
	})
	fmt.Println("flushed:", flushed)
	fmt.Println("len:", entities.Len())

	// Output:
	// pending: 100
	// flushed: 100
	// len: 100
}

// ExampleEntities_ReserveEntities reserves a batch with a single atomic step.
// Freed slots are reused first, most recently freed first, just like Alloc.
func ExampleEntities_ReserveEntities() {
	entities := ecs.NewEntities()
	a := entities.Alloc()
	b := entities.Alloc()
	if _, err := entities.Free(a); err != nil {
		panic(err)
	}
	if _, err := entities.Free(b); err != nil {
		panic(err)
	}

	batch := entities.ReserveEntities(3)
	for e := range batch.All() {
		fmt.Println(e)
	}

	entities.FlushAsInvalid()
	fmt.Println("total slots:", entities.TotalCount())
	fmt.Println("placed:", entities.Len())

	// Output:
	// 1v1
	// 0v1
	// 2v0
	// total slots: 3
	// placed: 0
}
