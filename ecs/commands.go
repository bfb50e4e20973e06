package ecs

import "reflect"

// Commands buffers structural changes made while systems run. The Scheduler
// flushes the buffer once every system of the frame has executed.
type Commands struct {
	spawns   []spawnCommand
	deletes  []EntityId
	destroys []*EntityRef
	adds     []addComponentCommand
	removes  []removeComponentCommand
	defers   []func()
	unload   bool
}

func newCommands() *Commands {
	return &Commands{}
}

type spawnCommand struct {
	components []any
}

type addComponentCommand struct {
	entity    EntityId
	component any
}

type removeComponentCommand struct {
	entity   EntityId
	compType reflect.Type
}

// Defer queues fn to run after every other command.
func (c *Commands) Defer(fn func()) {
	c.defers = append(c.defers, fn)
}

// Spawn queues an entity spawn with the given components.
func (c *Commands) Spawn(components ...any) {
	c.spawns = append(c.spawns, spawnCommand{components: components})
}

// Delete queues an entity deletion.
func (c *Commands) Delete(entity EntityId) {
	c.deletes = append(c.deletes, entity)
}

// Destroy queues the entity behind ref for the storage's deferred destruction.
// Unlike Delete it follows the entity if it migrates before the flush.
func (c *Commands) Destroy(ref *EntityRef) {
	c.destroys = append(c.destroys, ref)
}

// AddComponent queues a component addition.
func (c *Commands) AddComponent(entity EntityId, component any) {
	c.adds = append(c.adds, addComponentCommand{
		entity:    entity,
		component: component,
	})
}

// RemoveComponent queues a component removal.
func (c *Commands) RemoveComponent(entity EntityId, compType reflect.Type) {
	c.removes = append(c.removes, removeComponentCommand{
		entity:   entity,
		compType: compType,
	})
}

// UnloadScene queues a scene transition: every non-persistent entity is
// deleted before the rest of the buffer is applied.
func (c *Commands) UnloadScene() {
	c.unload = true
}

// Pending returns the number of queued commands.
func (c *Commands) Pending() int {
	n := len(c.spawns) + len(c.deletes) + len(c.destroys) + len(c.adds) + len(c.removes) + len(c.defers)
	if c.unload {
		n++
	}
	return n
}

// Flush applies the buffer to storage in a fixed order: scene unload,
// deletes, removals, additions, spawns, destroys, deferred functions.
// Removals and additions follow an entity that an earlier command in the
// same flush migrated to another archetype.
func (c *Commands) Flush(storage *Storage) {
	if c.unload {
		storage.UnloadScene()
	}

	deleted := make(map[EntityId]bool, len(c.deletes))
	for _, id := range c.deletes {
		storage.Delete(id)
		deleted[id] = true
	}

	// Refs are taken before anything migrates, so later commands follow
	// the entity instead of a slot another entity may reuse.
	refs := make(map[EntityId]*EntityRef)
	track := func(id EntityId) {
		if _, ok := refs[id]; ok || deleted[id] || !storage.Alive(id) {
			return
		}
		refs[id] = storage.CreateEntityRef(id)
	}
	for _, cmd := range c.removes {
		track(cmd.entity)
	}
	for _, cmd := range c.adds {
		track(cmd.entity)
	}

	for _, cmd := range c.removes {
		if ref := refs[cmd.entity]; ref.Valid() {
			storage.RemoveComponent(ref.Id, cmd.compType)
		}
	}

	for _, cmd := range c.adds {
		if ref := refs[cmd.entity]; ref.Valid() {
			storage.AddComponent(ref.Id, cmd.component)
		}
	}

	for _, cmd := range c.spawns {
		storage.Spawn(cmd.components...)
	}

	for _, ref := range c.destroys {
		storage.DestroyLater(ref)
	}

	for _, fn := range c.defers {
		fn()
	}

	c.spawns = c.spawns[:0]
	c.deletes = c.deletes[:0]
	c.destroys = c.destroys[:0]
	c.adds = c.adds[:0]
	c.removes = c.removes[:0]
	c.defers = c.defers[:0]
	c.unload = false
}
