package ecs_test

import (
	"testing"

	"github.com/plus3/soloecs/ecs"
)

func BenchmarkSpawn(b *testing.B) {
	storage := ecs.NewStorage(newTestRegistry())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		storage.Spawn(Position{X: 1, Y: 2}, Velocity{DX: 0.5, DY: 0.5})
	}
}

func BenchmarkAddComponent(b *testing.B) {
	storage := ecs.NewStorage(newTestRegistry())

	ids := make([]ecs.EntityId, b.N)
	for i := range ids {
		ids[i] = storage.Spawn(Position{X: 1, Y: 2})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		storage.AddComponent(ids[i], Velocity{DX: 0.5, DY: 0.5})
	}
}

func BenchmarkViewIter(b *testing.B) {
	storage := ecs.NewStorage(newTestRegistry())
	for i := range 10000 {
		storage.Spawn(Position{X: float32(i)}, Velocity{DX: 1})
	}
	view := ecs.NewView[movingView](storage)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, item := range view.Iter() {
			item.Position.X += item.Velocity.DX
		}
	}
}

func BenchmarkQueryIter(b *testing.B) {
	storage := ecs.NewStorage(newTestRegistry())
	for i := range 10000 {
		storage.Spawn(Position{X: float32(i)}, Velocity{DX: 1})
	}
	query := ecs.NewQuery[movingView](storage)
	query.Execute()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for item := range query.Values() {
			item.Position.X += item.Velocity.DX
		}
	}
}

func BenchmarkStorageCompact(b *testing.B) {
	storage := ecs.NewStorage(newTestRegistry())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		ids := spawnMoving(storage, 1000)
		for j := 0; j < len(ids); j += 2 {
			storage.Delete(ids[j])
		}
		b.StartTimer()

		storage.Compact(1)
	}
}

func BenchmarkInstance(b *testing.B) {
	storage := ecs.NewStorage(newTestRegistry())
	singletons := ecs.NewSingletonRegistry(ecs.NewStorageHost(storage))
	ecs.Instance[AudioManager](singletons)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ecs.Instance[AudioManager](singletons)
	}
}

func BenchmarkInstanceParallel(b *testing.B) {
	storage := ecs.NewStorage(newTestRegistry())
	singletons := ecs.NewSingletonRegistry(ecs.NewStorageHost(storage))
	ecs.Instance[AudioManager](singletons)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = ecs.Instance[AudioManager](singletons)
		}
	})
}

func BenchmarkSchedulerOnceWithSingletons(b *testing.B) {
	storage := ecs.NewStorage(newTestRegistry())
	for i := range 1000 {
		storage.Spawn(Position{X: float32(i)}, Velocity{DX: 1})
	}
	singletons := ecs.NewSingletonRegistry(ecs.NewStorageHost(storage))
	scheduler := ecs.NewScheduler(storage, ecs.WithSingletons(singletons), ecs.WithCompaction(64))
	scheduler.Register(&MovementSystem{})
	scheduler.Register(&AudioSystem{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scheduler.Once(1.0 / 60)
	}
}
