package ecs

// UpdateFrame is handed to every system during Scheduler.Once.
type UpdateFrame struct {
	DeltaTime  float64
	Commands   *Commands
	Storage    *Storage
	Singletons *SingletonRegistry
}

func newUpdateFrame(dt float64, storage *Storage, singletons *SingletonRegistry) *UpdateFrame {
	return &UpdateFrame{
		DeltaTime:  dt,
		Commands:   newCommands(),
		Storage:    storage,
		Singletons: singletons,
	}
}
