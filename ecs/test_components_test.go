package ecs_test

import "github.com/plus3/soloecs/ecs"

type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Name string

type Health struct {
	Current int
	Max     int
}

type Score int32

type Inventory struct {
	Items []string
}

// Singleton component types.

type AudioManager struct {
	ecs.SingletonBase
	Volume float32
}

type InputRouter struct {
	Bindings map[string]string
}

type SaveSystem struct {
	ecs.SingletonBase
	inits    int
	cleanups int
	slot     string
}

func (s *SaveSystem) OnInit() {
	s.inits++
	s.slot = "autosave"
}

func (s *SaveSystem) OnCleanUp() {
	s.cleanups++
}

func newTestRegistry() *ecs.ComponentRegistry {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Name](registry)
	ecs.RegisterComponent[Health](registry)
	ecs.RegisterComponent[Score](registry)
	ecs.RegisterComponent[Inventory](registry)
	ecs.RegisterComponent[AudioManager](registry)
	ecs.RegisterComponent[InputRouter](registry)
	ecs.RegisterComponent[SaveSystem](registry)
	return registry
}
