package ecs

import (
	"iter"
	"unsafe"
)

// Query is a View whose matching archetypes and results are cached per frame.
// The Scheduler refreshes a system's queries right before the system runs,
// so results reflect every structural change flushed by earlier frames.
type Query[T any] struct {
	view    *View[T]
	storage *Storage

	archetypes     []*Archetype
	archetypeCount int

	ids    []EntityId
	items  []T
	frozen bool
}

// NewQuery creates a Query over storage.
func NewQuery[T any](storage *Storage) *Query[T] {
	q := &Query[T]{}
	q.Init(storage)
	return q
}

// Init binds the Query to storage and drops any cached results.
func (q *Query[T]) Init(storage *Storage) {
	q.view = NewView[T](storage)
	q.storage = storage
	q.archetypes = nil
	q.archetypeCount = -1
	q.frozen = false
}

// Execute rebuilds the cached results.
func (q *Query[T]) Execute() {
	q.refreshArchetypes()

	q.ids = q.ids[:0]
	q.items = q.items[:0]
	for _, archetype := range q.archetypes {
		q.collect(archetype)
	}
	q.frozen = true
}

// Len returns the number of results from the last Execute.
func (q *Query[T]) Len() int {
	q.mustBeExecuted("Len")
	return len(q.ids)
}

// Iter yields entity ids with their component data.
// Panics if Execute has not been called.
func (q *Query[T]) Iter() iter.Seq2[EntityId, T] {
	q.mustBeExecuted("Iter")
	return func(yield func(EntityId, T) bool) {
		for i, id := range q.ids {
			if !yield(id, q.items[i]) {
				return
			}
		}
	}
}

// Values yields component data only.
// Panics if Execute has not been called.
func (q *Query[T]) Values() iter.Seq[T] {
	q.mustBeExecuted("Values")
	return func(yield func(T) bool) {
		for _, item := range q.items {
			if !yield(item) {
				return
			}
		}
	}
}

func (q *Query[T]) mustBeExecuted(method string) {
	if !q.frozen {
		panic("Query." + method + "() called before Query.Execute()")
	}
}

// refreshArchetypes rescans storage when archetypes were added since the last scan.
func (q *Query[T]) refreshArchetypes() {
	count := len(q.storage.archetypes)
	if q.archetypes != nil && count == q.archetypeCount {
		return
	}
	q.archetypeCount = count

	q.archetypes = q.archetypes[:0]
	for _, archetype := range q.storage.GetArchetypes() {
		if q.view.matchesArchetype(archetype) {
			q.archetypes = append(q.archetypes, archetype)
		}
	}
}

func (q *Query[T]) collect(archetype *Archetype) {
	if len(archetype.storages) == 0 {
		return
	}

	indices := q.view.buildStorageIndices(archetype)

	var result T
	resultPtr := unsafe.Pointer(&result)
	for index := range archetype.storages[0].Iter() {
		if !q.view.populateResult(resultPtr, archetype, index, indices) {
			continue
		}
		q.ids = append(q.ids, NewEntityId(archetype.id, uint32(index)))
		q.items = append(q.items, result)
	}
}
