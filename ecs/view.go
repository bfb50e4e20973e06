package ecs

import (
	"iter"
	"reflect"
	"unsafe"
)

// View matches entities carrying a combination of components.
//
// T is a struct whose fields are pointers to component types. Embedded fields
// are required; named fields may be tagged `ecs:"optional"` and are left nil
// when the entity lacks that component.
type View[T any] struct {
	storage *Storage
	fields  []viewField
}

type viewField struct {
	typ      reflect.Type
	offset   uintptr
	optional bool
}

// NewView creates a view over storage. It panics if T is not a struct of
// component pointers or carries an unknown ecs tag.
func NewView[T any](storage *Storage) *View[T] {
	structType := reflect.TypeFor[T]()
	if structType.Kind() != reflect.Struct {
		panic("View type parameter must be a struct")
	}

	v := &View[T]{storage: storage}
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if field.Type.Kind() != reflect.Ptr {
			panic("View struct fields must be pointer types")
		}

		optional := false
		if tag := field.Tag.Get("ecs"); tag != "" && !field.Anonymous {
			if tag != "optional" {
				panic("invalid ecs tag value: \"" + tag + "\" (only \"optional\" is supported)")
			}
			optional = true
		}

		v.fields = append(v.fields, viewField{
			typ:      field.Type.Elem(),
			offset:   field.Offset,
			optional: optional,
		})
	}
	return v
}

// Fill points the fields of *ptr at the components of entity id.
// It returns false if the entity lacks a required component.
func (v *View[T]) Fill(id EntityId, ptr *T) bool {
	archetype, ok := v.storage.archetypes[id.ArchetypeId()]
	if !ok {
		return false
	}
	return v.populateResult(unsafe.Pointer(ptr), archetype, int(id.Index()), v.buildStorageIndices(archetype))
}

// Get returns the view of entity id, or nil if it does not match.
func (v *View[T]) Get(id EntityId) *T {
	var result T
	if !v.Fill(id, &result) {
		return nil
	}
	return &result
}

// GetRef is Get for an EntityRef. A stale ref yields nil.
func (v *View[T]) GetRef(ref *EntityRef) *T {
	id, ok := v.storage.ResolveEntityRef(ref)
	if !ok {
		return nil
	}
	return v.Get(id)
}

func (v *View[T]) matchesArchetype(archetype *Archetype) bool {
	for _, f := range v.fields {
		if !f.optional && !archetype.HasComponent(f.typ) {
			return false
		}
	}
	return true
}

// buildStorageIndices maps each view field to its storage slot in archetype, -1 if absent.
func (v *View[T]) buildStorageIndices(archetype *Archetype) []int {
	indices := make([]int, len(v.fields))
	for i, f := range v.fields {
		indices[i] = -1
		for idx, typ := range archetype.types {
			if typ == f.typ {
				indices[i] = idx
				break
			}
		}
	}
	return indices
}

func (v *View[T]) populateResult(resultPtr unsafe.Pointer, archetype *Archetype, entityIndex int, storageIndices []int) bool {
	for i, storageIdx := range storageIndices {
		fieldPtr := (*unsafe.Pointer)(unsafe.Add(resultPtr, v.fields[i].offset))

		var component any
		if storageIdx != -1 {
			component = archetype.storages[storageIdx].Get(entityIndex)
		}
		if component == nil {
			if !v.fields[i].optional {
				return false
			}
			*fieldPtr = nil
			continue
		}
		*fieldPtr = (*iface)(unsafe.Pointer(&component)).data
	}
	return true
}

// Iter yields every matching entity with its view, visiting archetypes in id order.
func (v *View[T]) Iter() iter.Seq2[EntityId, T] {
	return func(yield func(EntityId, T) bool) {
		for _, archetype := range v.storage.GetArchetypes() {
			if !v.matchesArchetype(archetype) || len(archetype.storages) == 0 {
				continue
			}

			indices := v.buildStorageIndices(archetype)
			var result T
			resultPtr := unsafe.Pointer(&result)
			for index := range archetype.storages[0].Iter() {
				if !v.populateResult(resultPtr, archetype, index, indices) {
					continue
				}
				if !yield(NewEntityId(archetype.id, uint32(index)), result) {
					return
				}
			}
		}
	}
}

// Values yields only the views.
func (v *View[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, value := range v.Iter() {
			if !yield(value) {
				return
			}
		}
	}
}

// Spawn creates an entity from the components referenced by data.
// Nil optional fields are skipped; a nil required field panics.
func (v *View[T]) Spawn(data T) EntityId {
	base := unsafe.Pointer(&data)

	components := make([]any, 0, len(v.fields))
	for _, f := range v.fields {
		ptr := *(*unsafe.Pointer)(unsafe.Add(base, f.offset))
		if ptr == nil {
			if !f.optional {
				panic("required component is nil in View.Spawn")
			}
			continue
		}
		components = append(components, reflect.NewAt(f.typ, ptr).Elem().Interface())
	}

	return v.storage.Spawn(components...)
}
