package ecs

import "reflect"

// StorageObserver receives structural notifications from a Storage.
//
// EntitySpawned fires after an entity is created or a component is attached;
// types lists only the newly attached component types. EntityDeleting fires
// before an entity is deleted or a component is removed, while the component
// data can still be read. EntityMoved fires when a live entity changes id,
// after an archetype migration or a compaction; types lists the components
// that moved with it.
type StorageObserver interface {
	EntitySpawned(id EntityId, types []reflect.Type)
	EntityDeleting(id EntityId, types []reflect.Type)
	EntityMoved(from, to EntityId, types []reflect.Type)
}

// Observe registers an observer. Registering the same observer twice is a no-op.
func (s *Storage) Observe(o StorageObserver) {
	for _, existing := range s.observers {
		if existing == o {
			return
		}
	}
	s.observers = append(s.observers, o)
}

// Unobserve removes a previously registered observer.
func (s *Storage) Unobserve(o StorageObserver) {
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Storage) notifySpawned(id EntityId, types []reflect.Type) {
	for _, o := range s.observers {
		o.EntitySpawned(id, types)
	}
}

func (s *Storage) notifyMoved(from, to EntityId, types []reflect.Type) {
	for _, o := range s.observers {
		o.EntityMoved(from, to, types)
	}
}

func (s *Storage) notifyDeleting(id EntityId, types []reflect.Type) {
	for _, o := range s.observers {
		o.EntityDeleting(id, types)
	}
}

// SingletonHooks is implemented by singleton components that want to observe
// their own lifecycle. OnInit runs once the instance has been initialized,
// OnCleanUp runs when the instance is torn down while it can still be read.
type SingletonHooks interface {
	OnInit()
	OnCleanUp()
}

// SingletonBase provides no-op SingletonHooks. Embed it and override what you need.
type SingletonBase struct{}

func (SingletonBase) OnInit()    {}
func (SingletonBase) OnCleanUp() {}
