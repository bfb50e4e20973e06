package ecs_test

import (
	"fmt"

	"github.com/plus3/soloecs/ecs"
)

type MusicPlayer struct {
	ecs.SingletonBase
	Track string
}

func (m *MusicPlayer) OnInit() {
	m.Track = "title-theme"
	fmt.Println("music player ready")
}

func (m *MusicPlayer) OnCleanUp() {
	fmt.Println("music player stopped on", m.Track)
}

type GameConfig struct {
	MaxPlayers int
	Difficulty string
}

// ExampleInstance shows lazy creation: the first access builds a persistent
// container entity, later accesses return the same component.
func ExampleInstance() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[MusicPlayer](registry)
	storage := ecs.NewStorage(registry)

	singletons := ecs.NewSingletonRegistry(ecs.NewStorageHost(storage))

	player := ecs.Instance[MusicPlayer](singletons)
	player.Track = "level-1"

	state := ecs.StateOf[MusicPlayer](singletons)
	fmt.Println("same instance:", ecs.Instance[MusicPlayer](singletons) == player)
	fmt.Println("persistent:", storage.IsPersistent(state.Instance.Id))
	fmt.Println("entities:", storage.CollectStats().TotalEntityCount)

	// Output:
	// music player ready
	// same instance: true
	// persistent: true
	// entities: 1
}

// ExampleSingletonRegistry_OnTeardown shows that a torn-down singleton is not
// recreated by the accessor until an entity carrying it is spawned again.
func ExampleSingletonRegistry_OnTeardown() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[MusicPlayer](registry)
	storage := ecs.NewStorage(registry)

	singletons := ecs.NewSingletonRegistry(ecs.NewStorageHost(storage))

	ecs.Instance[MusicPlayer](singletons).Track = "boss-fight"
	storage.Delete(ecs.StateOf[MusicPlayer](singletons).Instance.Id)

	fmt.Println("after teardown:", ecs.Instance[MusicPlayer](singletons))

	storage.Spawn(MusicPlayer{Track: "credits"})
	fmt.Println("after spawn:", ecs.Instance[MusicPlayer](singletons).Track)

	// Output:
	// music player ready
	// music player stopped on boss-fight
	// after teardown: <nil>
	// music player ready
	// after spawn: title-theme
}

// ExampleStorage_ReadSingleton reads entity-less storage singletons, which
// are a separate mechanism from registry-managed singletons.
func ExampleStorage_ReadSingleton() {
	storage := ecs.NewStorage(ecs.NewComponentRegistry())

	ecs.NewSingleton[GameConfig](storage, GameConfig{
		MaxPlayers: 8,
		Difficulty: "Expert",
	})

	var config *GameConfig
	if storage.ReadSingleton(&config) {
		fmt.Printf("Game: %d players, %s mode\n", config.MaxPlayers, config.Difficulty)
	}

	var player *MusicPlayer
	if !storage.ReadSingleton(&player) {
		fmt.Println("MusicPlayer is not a storage singleton")
	}

	// Output:
	// Game: 8 players, Expert mode
	// MusicPlayer is not a storage singleton
}
