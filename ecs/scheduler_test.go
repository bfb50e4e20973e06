package ecs_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/plus3/soloecs/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MovementSystem struct {
	Entities ecs.Query[struct {
		*Position
		*Velocity
	}]
	ExecuteCount int
}

func (s *MovementSystem) Execute(frame *ecs.UpdateFrame) {
	s.ExecuteCount++
	for _, item := range s.Entities.Iter() {
		item.Position.X += item.Velocity.DX * float32(frame.DeltaTime)
		item.Position.Y += item.Velocity.DY * float32(frame.DeltaTime)
	}
}

type HealthSystem struct {
	Entities ecs.Query[struct {
		*Health
	}]
	ExecuteCount int
	TotalHealth  float64
}

func (s *HealthSystem) Execute(frame *ecs.UpdateFrame) {
	s.ExecuteCount++
	s.TotalHealth = 0
	for _, item := range s.Entities.Iter() {
		s.TotalHealth += float64(item.Health.Current)
	}
}

func TestScheduler(t *testing.T) {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Health](registry)

	t.Run("system execution order and query initialization", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		movement := &MovementSystem{}
		health := &HealthSystem{}

		scheduler.Register(movement)
		scheduler.Register(health)

		storage.Spawn(Position{X: 0, Y: 0}, Velocity{DX: 1, DY: 2})
		storage.Spawn(Health{Current: 100, Max: 100})

		scheduler.Once(1.0)

		if movement.ExecuteCount != 1 {
			t.Errorf("expected MovementSystem to execute once, got %d", movement.ExecuteCount)
		}

		if health.ExecuteCount != 1 {
			t.Errorf("expected HealthSystem to execute once, got %d", health.ExecuteCount)
		}

		scheduler.Once(1.0)

		if movement.ExecuteCount != 2 {
			t.Errorf("expected MovementSystem to execute twice, got %d", movement.ExecuteCount)
		}

		if health.ExecuteCount != 2 {
			t.Errorf("expected HealthSystem to execute twice, got %d", health.ExecuteCount)
		}
	})

	t.Run("custom state persistence", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		storage.Spawn(Health{Current: 50, Max: 100})
		storage.Spawn(Health{Current: 75, Max: 100})

		health := &HealthSystem{}
		scheduler.Register(health)

		scheduler.Once(1.0)

		if health.TotalHealth != 125.0 {
			t.Errorf("expected TotalHealth=125.0, got %f", health.TotalHealth)
		}

		storage.Spawn(Health{Current: 25, Max: 100})

		scheduler.Once(1.0)

		if health.TotalHealth != 150.0 {
			t.Errorf("expected TotalHealth=150.0, got %f", health.TotalHealth)
		}
	})

	t.Run("context cancellation in run", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		movement := &MovementSystem{}
		scheduler.Register(movement)

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan bool)
		go func() {
			scheduler.Run(ctx, 1*time.Millisecond)
			done <- true
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
			t.Fatal("scheduler did not stop after context cancellation")
		}

		if movement.ExecuteCount == 0 {
			t.Error("expected system to execute at least once")
		}
	})

	t.Run("delta time calculation", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		storage.Spawn(Position{X: 0, Y: 0}, Velocity{DX: 10, DY: 20})

		movement := &MovementSystem{}
		scheduler.Register(movement)

		scheduler.Once(0.5)

		found := false
		for _, item := range movement.Entities.Iter() {
			if item.Position.X == 5.0 && item.Position.Y == 10.0 {
				found = true
			}
		}

		if !found {
			t.Error("expected position to be updated with delta time")
		}
	})

	t.Run("commands integration", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		spawnSystem := &testSpawnSystem{}
		scheduler.Register(spawnSystem)

		scheduler.Once(1.0)

		if !spawnSystem.executed {
			t.Error("expected spawn system to execute")
		}

		movement := &MovementSystem{}
		scheduler.Register(movement)
		scheduler.Once(1.0)

		count := 0
		for range movement.Entities.Iter() {
			count++
		}

		if count == 0 {
			t.Error("expected spawned entity to be visible after command flush")
		}
	})
}

type AudioSystem struct {
	Audio ecs.Managed[AudioManager]
	Save  ecs.Managed[SaveSystem]
	Seen  *AudioManager
}

func (s *AudioSystem) Execute(frame *ecs.UpdateFrame) {
	s.Seen = s.Audio.Get()
	if s.Seen != nil {
		s.Seen.Volume += 0.1
	}
}

// intruderSystem spawns a second AudioManager every frame.
type intruderSystem struct{}

func (s *intruderSystem) Execute(frame *ecs.UpdateFrame) {
	frame.Commands.Spawn(AudioManager{Volume: 100})
}

func TestSchedulerManagedSingletons(t *testing.T) {
	t.Run("managed fields share the registry instance", func(t *testing.T) {
		storage := ecs.NewStorage(newTestRegistry())
		singletons := ecs.NewSingletonRegistry(ecs.NewStorageHost(storage))
		scheduler := ecs.NewScheduler(storage, ecs.WithSingletons(singletons))
		assert.Same(t, singletons, scheduler.Singletons())

		audio := &AudioSystem{}
		scheduler.Register(audio)
		assert.False(t, audio.Save.Exists(), "registration does not create instances")

		scheduler.Once(1.0)
		scheduler.Once(1.0)

		require.NotNil(t, audio.Seen)
		assert.Same(t, audio.Seen, ecs.Instance[AudioManager](singletons))
		assert.InDelta(t, 0.2, audio.Seen.Volume, 1e-6)
		assert.True(t, audio.Audio.Exists())
	})

	t.Run("duplicates are destroyed at frame end", func(t *testing.T) {
		storage := ecs.NewStorage(newTestRegistry())
		singletons := ecs.NewSingletonRegistry(ecs.NewStorageHost(storage))
		scheduler := ecs.NewScheduler(storage, ecs.WithSingletons(singletons))

		audio := &AudioSystem{}
		scheduler.Register(audio)
		scheduler.Register(&intruderSystem{})

		for i := 0; i < 5; i++ {
			scheduler.Once(1.0)
		}

		count := 0
		for _, archetype := range storage.GetArchetypes() {
			if archetype.HasComponent(reflect.TypeFor[AudioManager]()) {
				count += archetype.Len()
			}
		}
		assert.Equal(t, 1, count)
		assert.InDelta(t, 0.5, ecs.Instance[AudioManager](singletons).Volume, 1e-6)
	})

	t.Run("managed field without registry panics", func(t *testing.T) {
		scheduler := ecs.NewScheduler(ecs.NewStorage(newTestRegistry()))
		assert.Panics(t, func() { scheduler.Register(&AudioSystem{}) })
	})

	t.Run("frame exposes the registry", func(t *testing.T) {
		storage := ecs.NewStorage(newTestRegistry())
		singletons := ecs.NewSingletonRegistry(ecs.NewStorageHost(storage))
		scheduler := ecs.NewScheduler(storage, ecs.WithSingletons(singletons))

		var seen *ecs.SingletonRegistry
		scheduler.Register(frameFunc(func(frame *ecs.UpdateFrame) {
			seen = frame.Singletons
		}))
		scheduler.Once(1.0)
		assert.Same(t, singletons, seen)
	})
}

type frameFunc func(frame *ecs.UpdateFrame)

func (f frameFunc) Execute(frame *ecs.UpdateFrame) { f(frame) }

func TestSchedulerCompaction(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	singletons := ecs.NewSingletonRegistry(ecs.NewStorageHost(storage))
	scheduler := ecs.NewScheduler(storage, ecs.WithSingletons(singletons), ecs.WithCompaction(4))

	var ids []ecs.EntityId
	for i := range 10 {
		ids = append(ids, storage.Spawn(Position{X: float32(i)}))
	}
	last := storage.CreateEntityRef(ids[9])

	deleteFirst := func(n int) frameFunc {
		return func(frame *ecs.UpdateFrame) {
			for _, id := range ids[:n] {
				frame.Commands.Delete(id)
			}
			ids = ids[n:]
		}
	}

	scheduler.Register(deleteFirst(3))
	scheduler.Once(1.0)

	archetype := storage.GetArchetype(Position{})
	require.NotNil(t, archetype)
	assert.Equal(t, 3, archetype.Holes(), "below the threshold nothing moves")
	assert.Equal(t, uint32(9), last.Id.Index())

	scheduler.Once(1.0)
	assert.Zero(t, archetype.Holes())
	assert.Equal(t, 4, archetype.Len())
	require.True(t, last.Valid())
	assert.Equal(t, float32(9), ecs.ReadComponent[Position](storage, last.Id).X)
}
