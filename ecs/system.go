package ecs

// System represents a behavior that runs once per frame.
// Systems of the same frame run concurrently: they may read the storage and
// mutate components they own, but structural changes (spawning, despawning,
// adding or removing components) must go through frame.Commands.
type System interface {
	Execute(frame *UpdateFrame)
}
