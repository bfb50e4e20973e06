package ecs

import (
	"reflect"
	"unsafe"
)

// singletonEntry holds a storage-level singleton value on the heap so its
// address stays stable for cached accessors.
type singletonEntry struct {
	value   reflect.Value // *T
	dataPtr unsafe.Pointer
}

// AddSingleton stores value as the storage-level singleton for its type.
// An existing value is overwritten in place, keeping accessor pointers valid.
func (s *Storage) AddSingleton(value any) {
	typ := reflect.TypeOf(value)
	src := reflect.ValueOf(value)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
		src = src.Elem()
	}

	if entry, ok := s.singletons[typ]; ok {
		entry.value.Elem().Set(src)
		return
	}

	ptr := reflect.New(typ)
	ptr.Elem().Set(src)
	s.singletons[typ] = &singletonEntry{
		value:   ptr,
		dataPtr: ptr.UnsafePointer(),
	}
	s.singletonGen++
}

// RemoveSingleton drops the storage-level singleton of the given type.
func (s *Storage) RemoveSingleton(typ reflect.Type) bool {
	if _, ok := s.singletons[typ]; !ok {
		return false
	}
	delete(s.singletons, typ)
	s.singletonGen++
	return true
}

// ReadSingleton sets *out to the singleton of the pointed-to type.
// out must be a **T; it returns false when no such singleton exists.
func (s *Storage) ReadSingleton(out any) bool {
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Ptr || target.Elem().Kind() != reflect.Ptr {
		panic("ReadSingleton expects a pointer to a pointer")
	}

	entry := s.getSingletonEntry(target.Elem().Type().Elem())
	if entry == nil {
		return false
	}
	target.Elem().Set(entry.value)
	return true
}

func (s *Storage) getSingletonEntry(typ reflect.Type) *singletonEntry {
	return s.singletons[typ]
}

// Singleton provides efficient access to a single component instance
// that is not associated with any entity. Use this for global game state,
// configuration, or other singleton data.
//
// Pick Singleton for plain entity-less data owned by one Storage. Pick
// Managed (backed by a SingletonRegistry) when the instance lives on an
// entity: it is created lazily, survives scene unloads, deduplicates spawned
// copies and runs SingletonHooks.
type Singleton[T any] struct {
	storage       *Storage
	componentPtr  unsafe.Pointer
	componentType reflect.Type
	gen           uint64
}

// NewSingleton creates a new Singleton accessor for the given storage.
// If initializer is provided and the singleton doesn't exist in storage,
// it will be created with the initializer value. Otherwise, a zero value is used.
// This guarantees the singleton exists in storage after the call.
func NewSingleton[T any](storage *Storage, initializer ...T) *Singleton[T] {
	componentType := reflect.TypeFor[T]()

	if storage.getSingletonEntry(componentType) == nil {
		var value T
		if len(initializer) > 0 {
			value = initializer[0]
		}
		storage.AddSingleton(&value)
	}

	s := &Singleton[T]{
		storage:       storage,
		componentType: componentType,
	}
	s.updateCache()
	return s
}

// Init initializes the Singleton with a storage reference.
// This is called automatically by the Scheduler during system registration.
func (s *Singleton[T]) Init(storage *Storage) {
	s.storage = storage
	s.componentType = reflect.TypeFor[T]()
	s.updateCache()
}

// Get returns a pointer to the singleton component.
// Returns nil if the singleton has not been added to storage.
func (s *Singleton[T]) Get() *T {
	if s.componentPtr == nil || s.stale() {
		s.updateCache()
	}
	if s.componentPtr == nil {
		return nil
	}
	return (*T)(s.componentPtr)
}

func (s *Singleton[T]) stale() bool {
	return s.storage != nil && s.gen != s.storage.singletonGen
}

func (s *Singleton[T]) updateCache() {
	if s.storage == nil {
		return
	}
	s.gen = s.storage.singletonGen
	if entry := s.storage.getSingletonEntry(s.componentType); entry != nil {
		s.componentPtr = entry.dataPtr
	} else {
		s.componentPtr = nil
	}
}

// Exists returns true if the singleton component has been added to storage
func (s *Singleton[T]) Exists() bool {
	return s.Get() != nil
}
