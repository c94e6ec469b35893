package ecs

// UpdateFrame is what a system sees while it executes. Each system gets its
// own Commands; Storage may be read but not structurally changed.
type UpdateFrame struct {
	DeltaTime float64
	Commands  *Commands
	Storage   *Storage
}

func newUpdateFrame(dt float64, storage *Storage) *UpdateFrame {
	return &UpdateFrame{
		DeltaTime: dt,
		Commands:  NewCommands(storage),
		Storage:   storage,
	}
}
