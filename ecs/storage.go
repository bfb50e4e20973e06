package ecs

import (
	"reflect"
	"slices"
	"unsafe"
	"weak"
)

// Storage is the main ECS storage interface. It is not safe for concurrent
// mutation; structural changes belong to the goroutine driving the frames.
type Storage struct {
	archetypes map[uint32]*Archetype
	registry   *ComponentRegistry

	singletons   map[reflect.Type]*singletonEntry
	singletonGen uint64

	observers      []StorageObserver
	destroyPending []*EntityRef
}

// NewStorage creates a new ECS storage system with the given component registry
func NewStorage(registry *ComponentRegistry) *Storage {
	return &Storage{
		archetypes: make(map[uint32]*Archetype),
		registry:   registry,
		singletons: make(map[reflect.Type]*singletonEntry),
	}
}

// Registry returns the component registry backing this storage.
func (s *Storage) Registry() *ComponentRegistry {
	return s.registry
}

func (s *Storage) CreateEntityRef(id EntityId) *EntityRef {
	archetype := s.archetypes[id.ArchetypeId()]
	if archetype == nil {
		return nil
	}

	// Check if we already have a ref for this entity
	if weakPtr, ok := archetype.refs.Get(id); ok {
		if ref := weakPtr.Value(); ref != nil {
			return ref
		}
		// Weak pointer is dead, remove it
		archetype.refs.Del(id)
	}

	// Create new EntityRef
	ref := &EntityRef{
		Id:        id,
		Archetype: archetype,
	}

	// Store weak pointer in archetype
	weakPtr := weak.Make(ref)
	archetype.refs.Put(id, weakPtr)

	return ref
}

func (s *Storage) ResolveEntityRef(ref *EntityRef) (EntityId, bool) {
	if ref == nil {
		return 0, false
	}
	// Check if the ref has been invalidated (Id == 0 means deleted)
	if ref.Id == 0 {
		return 0, false
	}
	return ref.Id, true
}

func (s *Storage) InvalidateEntityRef(ref *EntityRef) bool {
	if ref == nil || ref.Id == 0 {
		return false
	}

	// Mark the ref as deleted
	archetype := s.archetypes[ref.Id.ArchetypeId()]
	if archetype != nil {
		archetype.refs.Del(ref.Id)
	}

	ref.Id = 0
	ref.Archetype = nil
	return true
}

// GetArchetype returns an archetype storage (if one exists)
func (s *Storage) GetArchetype(components ...any) *Archetype {
	types := extractComponentTypes(components)
	archetypeId := hashTypesToUint32(types)
	return s.archetypes[archetypeId]
}

// GetArchetypeByTypes returns an archetype storage (if one exists) based on reflect.Type
func (s *Storage) GetArchetypeByTypes(types []reflect.Type) *Archetype {
	sortTypes(types)
	archetypeId := hashTypesToUint32(types)
	return s.archetypes[archetypeId]
}

// GetArchetypeById returns the archetype with the given id, or nil
func (s *Storage) GetArchetypeById(id uint32) *Archetype {
	return s.archetypes[id]
}

// GetArchetypes returns all archetypes ordered by id
func (s *Storage) GetArchetypes() []*Archetype {
	archetypes := make([]*Archetype, 0, len(s.archetypes))
	for _, archetype := range s.archetypes {
		archetypes = append(archetypes, archetype)
	}
	slices.SortFunc(archetypes, func(a, b *Archetype) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return archetypes
}

// FindFirst returns the first live entity carrying a component of the given type.
// Archetypes are visited in id order so the result is stable for a given storage.
func (s *Storage) FindFirst(compType reflect.Type) (EntityId, bool) {
	for _, archetype := range s.GetArchetypes() {
		if !archetype.HasComponent(compType) {
			continue
		}
		if id, ok := archetype.First(); ok {
			return id, true
		}
	}
	return 0, false
}

// Alive reports whether the entity id refers to live component data
func (s *Storage) Alive(id EntityId) bool {
	archetype, ok := s.archetypes[id.ArchetypeId()]
	if !ok || len(archetype.storages) == 0 {
		return false
	}
	return archetype.storages[0].Has(int(id.Index()))
}

// Spawn creates an entity from component values (or pointers to them) and
// notifies observers.
func (s *Storage) Spawn(components ...any) EntityId {
	if len(components) == 0 {
		panic("cannot spawn entity without components")
	}

	types := extractComponentTypes(components)
	archetype := s.archetypeFor(types)
	id := NewEntityId(archetype.id, archetype.Spawn(components))
	s.notifySpawned(id, types)
	return id
}

// Delete removes all data related to the entity ID.
// Observers are told before any component data is released.
func (s *Storage) Delete(id EntityId) {
	if !s.Alive(id) {
		return
	}

	archetype := s.archetypes[id.ArchetypeId()]
	s.notifyDeleting(id, archetype.types)
	archetype.Delete(id.Index())
}

// DestroyLater queues the entity behind ref for deletion at the next FlushDestroyed.
func (s *Storage) DestroyLater(ref *EntityRef) {
	if !ref.Valid() {
		return
	}
	s.destroyPending = append(s.destroyPending, ref)
}

// FlushDestroyed deletes every queued entity that is still alive and
// returns how many were deleted.
func (s *Storage) FlushDestroyed() int {
	deleted := 0
	for len(s.destroyPending) > 0 {
		pending := s.destroyPending
		s.destroyPending = nil

		for _, ref := range pending {
			id, ok := s.ResolveEntityRef(ref)
			if !ok || !s.Alive(id) {
				continue
			}
			s.Delete(id)
			deleted++
		}
	}
	return deleted
}

// AddComponent attaches component to the entity, moving it to the matching
// archetype, and returns the entity's new id. If the entity already carries
// the type its value is replaced in place. Returns 0 for an unknown archetype.
func (s *Storage) AddComponent(id EntityId, component any) EntityId {
	archetype := s.archetypes[id.ArchetypeId()]
	if archetype == nil {
		return 0
	}

	compType := reflect.TypeOf(component)
	if compType.Kind() == reflect.Ptr {
		compType = compType.Elem()
	}

	if col := archetype.column(compType); col >= 0 {
		dst := reflect.ValueOf(archetype.storages[col].Get(int(id.Index())))
		if dst.IsValid() && !dst.IsNil() {
			src := reflect.ValueOf(component)
			if src.Kind() == reflect.Ptr {
				src = src.Elem()
			}
			dst.Elem().Set(src)
		}
		return id
	}

	types := make([]reflect.Type, 0, len(archetype.types)+1)
	types = append(types, archetype.types...)
	types = append(types, compType)
	sortTypes(types)

	newId := s.migrate(id, types, compType, component)
	s.notifySpawned(newId, []reflect.Type{compType})
	return newId
}

// RemoveComponent detaches compType from the entity and returns its new id.
// Removing the last component deletes the entity and returns 0. Observers are
// told before the component is released.
func (s *Storage) RemoveComponent(id EntityId, compType reflect.Type) EntityId {
	archetype := s.archetypes[id.ArchetypeId()]
	if archetype == nil || !archetype.HasComponent(compType) {
		return id
	}

	s.notifyDeleting(id, []reflect.Type{compType})

	types := make([]reflect.Type, 0, len(archetype.types)-1)
	for _, typ := range archetype.types {
		if typ != compType {
			types = append(types, typ)
		}
	}
	if len(types) == 0 {
		archetype.Delete(id.Index())
		return 0
	}

	return s.migrate(id, types, nil, nil)
}

// migrate copies the entity into the archetype for types, taking the value of
// extraType from extra and every other value from the old archetype, then
// frees the old slot. A live EntityRef is moved along with the entity.
func (s *Storage) migrate(id EntityId, types []reflect.Type, extraType reflect.Type, extra any) EntityId {
	from := s.archetypes[id.ArchetypeId()]
	to := s.archetypeFor(types)

	components := make([]any, 0, len(types))
	for _, typ := range types {
		if typ == extraType {
			components = append(components, extra)
			continue
		}
		components = append(components, from.GetComponent(id.Index(), typ))
	}
	newId := NewEntityId(to.id, to.Spawn(components))

	if weakPtr, ok := from.refs.Get(id); ok {
		if ref := weakPtr.Value(); ref != nil {
			ref.Id = newId
			ref.Archetype = to
			to.refs.Put(newId, weakPtr)
		}
		from.refs.Del(id)
	}

	from.Delete(id.Index())

	carried := types
	if extraType != nil {
		carried = make([]reflect.Type, 0, len(types)-1)
		for _, typ := range types {
			if typ != extraType {
				carried = append(carried, typ)
			}
		}
	}
	s.notifyMoved(id, newId, carried)
	return newId
}

// Compact packs every archetype with at least minHoles freed slots so live
// entities occupy the lowest indices. EntityRefs follow their entities and
// observers are told about every entity whose id changed. It returns the
// number of archetypes compacted. Component pointers into a compacted
// archetype must be re-resolved.
func (s *Storage) Compact(minHoles int) int {
	minHoles = max(minHoles, 1)

	compacted := 0
	for _, archetype := range s.GetArchetypes() {
		if archetype.Holes() < minHoles {
			continue
		}
		for oldIdx, newIdx := range archetype.Compact() {
			if oldIdx == newIdx {
				continue
			}
			s.notifyMoved(
				NewEntityId(archetype.id, uint32(oldIdx)),
				NewEntityId(archetype.id, uint32(newIdx)),
				archetype.types,
			)
		}
		compacted++
	}
	return compacted
}

// archetypeFor returns the archetype for the sorted types, creating it if needed.
func (s *Storage) archetypeFor(types []reflect.Type) *Archetype {
	id := hashTypesToUint32(types)
	archetype, ok := s.archetypes[id]
	if !ok {
		archetype = NewArchetype(id, types, s.registry)
		s.archetypes[id] = archetype
	}
	return archetype
}

// GetComponent returns the component for the given entity ID and component type
func (s *Storage) GetComponent(id EntityId, compType reflect.Type) any {
	archetypeId := id.ArchetypeId()
	entityIndex := id.Index()

	archetype, ok := s.archetypes[archetypeId]
	if !ok {
		return nil
	}

	return archetype.GetComponent(entityIndex, compType)
}

// HasComponent checks if an entity has a specific component type
func (s *Storage) HasComponent(id EntityId, compType reflect.Type) bool {
	archetypeId := id.ArchetypeId()
	archetype, ok := s.archetypes[archetypeId]
	if !ok {
		return false
	}
	return archetype.HasComponent(compType)
}

// extractComponentTypes extracts and sorts component types from a slice of components
func extractComponentTypes(components []any) []reflect.Type {
	types := make([]reflect.Type, 0, len(components))
	for _, comp := range components {
		compType := reflect.TypeOf(comp)

		// If it's a pointer, get the underlying type
		if compType.Kind() == reflect.Ptr {
			compType = compType.Elem()
		}

		// Components can be structs or primitives (int, string, etc.)
		// But not pointers, maps, channels, or functions (those aren't value types)
		if compType.Kind() == reflect.Ptr || compType.Kind() == reflect.Map ||
			compType.Kind() == reflect.Chan || compType.Kind() == reflect.Func {
			panic("components cannot be pointers, maps, channels, or functions")
		}

		types = append(types, compType)
	}
	sortTypes(types)
	return types
}

func typeId(t reflect.Type) int {
	ptr := (*iface)(unsafe.Pointer(&t)).data
	return int(uintptr(ptr))
}

// hashTypesToUint32 generates a uint32 hash for a sorted slice of types
func hashTypesToUint32(types []reflect.Type) uint32 {
	var h uint32 = 2166136261     // FNV-1a 32-bit offset basis
	const prime uint32 = 16777619 // FNV-1a 32-bit prime

	for _, t := range types {
		// Use the type's pointer as a unique identifier
		ptr := (*iface)(unsafe.Pointer(&t)).data
		val := uint32(uintptr(ptr))

		// Mix in all 4 bytes if on 64-bit system
		if unsafe.Sizeof(uintptr(0)) == 8 {
			val ^= uint32(uintptr(ptr) >> 32)
		}

		h ^= val
		h *= prime
	}

	return h
}

type ComponentReader interface {
	GetComponent(EntityId, reflect.Type) any
}

func ReadComponent[T any](reader ComponentReader, entityId EntityId) *T {
	return reader.GetComponent(entityId, reflect.TypeFor[T]()).(*T)
}
