package ecs

import "reflect"

// Persistent marks an entity that survives UnloadScene.
type Persistent struct{}

// ContainerName labels entities created to host a single component,
// such as the containers built by a SingletonRegistry.
type ContainerName string

var persistentType = reflect.TypeFor[Persistent]()

// IsPersistent reports whether the entity carries the Persistent marker.
func (s *Storage) IsPersistent(id EntityId) bool {
	return s.HasComponent(id, persistentType)
}

// UnloadScene deletes every entity that is not marked Persistent and
// returns the number of deleted entities. Observers see each deletion.
func (s *Storage) UnloadScene() int {
	var doomed []EntityId
	for _, archetype := range s.GetArchetypes() {
		if archetype.HasComponent(persistentType) {
			continue
		}
		for id := range archetype.Iter() {
			doomed = append(doomed, id)
		}
	}

	deleted := 0
	for _, id := range doomed {
		// An observer may already have removed it.
		if !s.Alive(id) {
			continue
		}
		s.Delete(id)
		deleted++
	}
	return deleted
}
