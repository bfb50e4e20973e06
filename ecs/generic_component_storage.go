package ecs

import (
	"iter"
	"reflect"
)

// ComponentRegistry manages component type registration for an ECS instance.
// Each Storage instance has its own ComponentRegistry, allowing multiple
// independent ECS systems to coexist without interference.
type ComponentRegistry struct {
	factories map[reflect.Type]func() iComponentStorage
}

// NewComponentRegistry creates a new component registry.
// The built-in Persistent and ContainerName components are always registered.
func NewComponentRegistry() *ComponentRegistry {
	r := &ComponentRegistry{
		factories: make(map[reflect.Type]func() iComponentStorage),
	}
	RegisterComponent[Persistent](r)
	RegisterComponent[ContainerName](r)
	return r
}

// RegisterComponent registers a new component type with the given registry.
// This must be called for each component type before it can be used.
func RegisterComponent[T any](r *ComponentRegistry) {
	r.factories[reflect.TypeFor[T]()] = func() iComponentStorage {
		return &genericComponentStorage[T]{}
	}
}

// IsRegistered reports whether the component type has a storage factory.
func (r *ComponentRegistry) IsRegistered(t reflect.Type) bool {
	_, ok := r.factories[t]
	return ok
}

// getFactory returns the factory function for a given component type.
// Returns nil if the type is not registered.
func (r *ComponentRegistry) getFactory(t reflect.Type) func() iComponentStorage {
	return r.factories[t]
}

const (
	genericBlockSize = 64
)

type componentBlock[T any] struct {
	items  [genericBlockSize]T
	filled [genericBlockSize]bool
}

// genericComponentStorage is a generic implementation of iComponentStorage.
// It stores components of a specific type `T` in individually allocated blocks,
// so a component's address does not move when the storage grows.
type genericComponentStorage[T any] struct {
	blocks    []*componentBlock[T]
	freeSlots []int
	nextIndex int
	live      int
}

// Append adds a component to storage and returns its index.
func (cs *genericComponentStorage[T]) Append(item any) int {
	var concreteItem T
	if ptr, ok := item.(*T); ok {
		concreteItem = *ptr
	} else if val, ok := item.(T); ok {
		concreteItem = val
	} else {
		return -1
	}

	var index int
	if n := len(cs.freeSlots); n > 0 {
		index = cs.freeSlots[n-1]
		cs.freeSlots = cs.freeSlots[:n-1]
	} else {
		index = cs.nextIndex
		cs.nextIndex++
		if index/genericBlockSize >= len(cs.blocks) {
			cs.blocks = append(cs.blocks, &componentBlock[T]{})
		}
	}

	block := cs.blocks[index/genericBlockSize]
	slot := index % genericBlockSize
	block.items[slot] = concreteItem
	block.filled[slot] = true
	cs.live++
	return index
}

func (cs *genericComponentStorage[T]) slot(index int) (*componentBlock[T], int, bool) {
	if index < 0 {
		return nil, 0, false
	}
	blockIdx := index / genericBlockSize
	if blockIdx >= len(cs.blocks) {
		return nil, 0, false
	}
	return cs.blocks[blockIdx], index % genericBlockSize, true
}

// Get returns a pointer to the component at the given index.
func (cs *genericComponentStorage[T]) Get(index int) any {
	block, slot, ok := cs.slot(index)
	if !ok || !block.filled[slot] {
		return nil
	}
	return &block.items[slot]
}

// Delete marks a component slot as empty.
func (cs *genericComponentStorage[T]) Delete(index int) {
	block, slot, ok := cs.slot(index)
	if !ok || !block.filled[slot] {
		return
	}

	var zero T
	block.filled[slot] = false
	block.items[slot] = zero
	cs.freeSlots = append(cs.freeSlots, index)
	cs.live--
}

// Has checks if a component exists at the given index.
func (cs *genericComponentStorage[T]) Has(index int) bool {
	block, slot, ok := cs.slot(index)
	return ok && block.filled[slot]
}

// Len returns the number of live components.
func (cs *genericComponentStorage[T]) Len() int {
	return cs.live
}

// Span returns one past the highest index ever handed out since the last compaction.
func (cs *genericComponentStorage[T]) Span() int {
	return cs.nextIndex
}

// Compact reorganizes component storage to remove empty slots.
// Component addresses change; callers must re-resolve pointers afterwards.
func (cs *genericComponentStorage[T]) Compact() map[int]int {
	indexMap := make(map[int]int)

	if cs.live == 0 {
		cs.blocks = nil
		cs.freeSlots = nil
		cs.nextIndex = 0
		return indexMap
	}

	newBlocks := make([]*componentBlock[T], (cs.live+genericBlockSize-1)/genericBlockSize)
	for i := range newBlocks {
		newBlocks[i] = &componentBlock[T]{}
	}

	writePos := 0
	for readIdx := range cs.Iter() {
		block, slot, _ := cs.slot(readIdx)
		indexMap[readIdx] = writePos

		dst := newBlocks[writePos/genericBlockSize]
		dst.items[writePos%genericBlockSize] = block.items[slot]
		dst.filled[writePos%genericBlockSize] = true
		writePos++
	}

	cs.blocks = newBlocks
	cs.freeSlots = nil
	cs.nextIndex = writePos

	return indexMap
}

func (cs *genericComponentStorage[T]) Iter() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := 0; i < cs.nextIndex; i++ {
			block, slot, ok := cs.slot(i)
			if !ok || !block.filled[slot] {
				continue
			}
			if !yield(i) {
				return
			}
		}
	}
}
