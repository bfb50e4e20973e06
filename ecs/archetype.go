package ecs

import (
	"iter"
	"reflect"
	"slices"
	"strings"
	"weak"

	"github.com/kamstrup/intmap"
)

// sortTypes orders component types by name, the canonical archetype order.
func sortTypes(types []reflect.Type) {
	slices.SortFunc(types, func(a, b reflect.Type) int {
		return strings.Compare(a.String(), b.String())
	})
}

// Archetype stores every entity sharing one exact set of component types.
// Each type has its own column; an entity's index is its position in every column.
type Archetype struct {
	id       uint32
	types    []reflect.Type
	storages []iComponentStorage
	refs     *intmap.Map[EntityId, weak.Pointer[EntityRef]]
}

// NewArchetype creates an archetype for types, which must be sorted and registered.
func NewArchetype(id uint32, types []reflect.Type, registry *ComponentRegistry) *Archetype {
	a := &Archetype{
		id:       id,
		types:    types,
		storages: make([]iComponentStorage, len(types)),
		refs:     intmap.New[EntityId, weak.Pointer[EntityRef]](256),
	}

	for idx, typ := range types {
		factory := registry.getFactory(typ)
		if factory == nil {
			panic("component type " + typ.String() + " not registered")
		}
		a.storages[idx] = factory()
	}

	return a
}

func (a *Archetype) column(compType reflect.Type) int {
	return slices.Index(a.types, compType)
}

// Spawn appends one value (or pointer to value) per column and returns the entity index.
func (a *Archetype) Spawn(components []any) uint32 {
	var index int
	for _, comp := range components {
		compType := reflect.TypeOf(comp)
		if compType.Kind() == reflect.Ptr {
			compType = compType.Elem()
		}
		if col := a.column(compType); col >= 0 {
			index = a.storages[col].Append(comp)
		}
	}
	return uint32(index)
}

// GetComponent returns a pointer to the entity's component of compType, or nil.
func (a *Archetype) GetComponent(entityIndex uint32, compType reflect.Type) any {
	col := a.column(compType)
	if col < 0 {
		return nil
	}
	return a.storages[col].Get(int(entityIndex))
}

// Delete frees the entity's slot in every column and invalidates its EntityRef.
// Other entities keep their indices.
func (a *Archetype) Delete(entityIndex uint32) {
	entityId := NewEntityId(a.id, entityIndex)

	if weakPtr, ok := a.refs.Get(entityId); ok {
		if ref := weakPtr.Value(); ref != nil {
			ref.Id = 0
			ref.Archetype = nil
		}
		a.refs.Del(entityId)
	}

	for _, storage := range a.storages {
		storage.Delete(int(entityIndex))
	}
}

func (a *Archetype) HasComponent(compType reflect.Type) bool {
	return a.column(compType) >= 0
}

// Len returns the number of live entities.
func (a *Archetype) Len() int {
	if len(a.storages) == 0 {
		return 0
	}
	return a.storages[0].Len()
}

// First returns the lowest-index live entity.
func (a *Archetype) First() (EntityId, bool) {
	for id := range a.Iter() {
		return id, true
	}
	return 0, false
}

func (a *Archetype) ID() uint32 {
	return a.id
}

// Types returns the sorted component types. The slice must not be modified.
func (a *Archetype) Types() []reflect.Type {
	return a.types
}

// Holes returns the number of freed slots below the highest used index.
func (a *Archetype) Holes() int {
	if len(a.storages) == 0 {
		return 0
	}
	return a.storages[0].Span() - a.storages[0].Len()
}

// Compact packs every column so live entities occupy the lowest indices and
// returns the old-to-new index of every live entity. Live EntityRefs are
// moved to the new ids; component addresses change.
func (a *Archetype) Compact() map[int]int {
	if len(a.storages) == 0 {
		return nil
	}

	indexMap := a.storages[0].Compact()
	for _, storage := range a.storages[1:] {
		storage.Compact()
	}

	moved := make(map[EntityId]weak.Pointer[EntityRef], len(indexMap))
	for oldIdx, newIdx := range indexMap {
		weakPtr, ok := a.refs.Get(NewEntityId(a.id, uint32(oldIdx)))
		if !ok {
			continue
		}
		if ref := weakPtr.Value(); ref != nil {
			ref.Id = NewEntityId(a.id, uint32(newIdx))
			moved[ref.Id] = weakPtr
		}
	}

	a.refs.Clear()
	for id, weakPtr := range moved {
		a.refs.Put(id, weakPtr)
	}
	return indexMap
}

// Iter yields the ids of live entities in index order.
func (a *Archetype) Iter() iter.Seq[EntityId] {
	return func(yield func(EntityId) bool) {
		if len(a.storages) == 0 {
			return
		}
		for index := range a.storages[0].Iter() {
			if !yield(NewEntityId(a.id, uint32(index))) {
				return
			}
		}
	}
}
