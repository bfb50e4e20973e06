package ecs

import (
	"reflect"

	"go.uber.org/zap"
)

// Host is the object model a SingletonRegistry manages instances in.
// Handles are EntityRefs; a nil ref means "no object".
type Host interface {
	// Find returns a live object carrying a component of type t, or nil.
	Find(t reflect.Type) *EntityRef
	// Create builds a new container object named name with component attached.
	Create(name string, component any) *EntityRef
	// Persist marks the object to survive scene transitions.
	Persist(ref *EntityRef)
	// Destroy requests destruction of the object.
	Destroy(ref *EntityRef)
	// Resolve returns a pointer to the component of type t on the object, or nil.
	Resolve(ref *EntityRef, t reflect.Type) any

	Subscribe(l HostListener)
	Unsubscribe(l HostListener)
}

// HostListener is notified when components are attached to, relocated on
// or torn down from host objects. Tracks filters the types a listener cares
// about. OnMove means pointers previously resolved for ref are stale.
type HostListener interface {
	Tracks(t reflect.Type) bool
	OnCreate(ref *EntityRef, t reflect.Type)
	OnMove(ref *EntityRef, t reflect.Type)
	OnTeardown(ref *EntityRef, t reflect.Type)
}

// StorageHost adapts a Storage to the Host interface. Destruction is deferred
// to Storage.FlushDestroyed, which the Scheduler calls at the end of a frame.
type StorageHost struct {
	storage   *Storage
	listeners []HostListener
	logger    *zap.Logger
}

// StorageHostOption configures a StorageHost.
type StorageHostOption func(*StorageHost)

// WithHostLogger sets the logger used for host events.
func WithHostLogger(logger *zap.Logger) StorageHostOption {
	return func(h *StorageHost) {
		h.logger = logger
	}
}

// NewStorageHost returns a Host backed by storage and starts observing it.
func NewStorageHost(storage *Storage, opts ...StorageHostOption) *StorageHost {
	h := &StorageHost{
		storage: storage,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	storage.Observe(h)
	return h
}

// Storage returns the underlying storage.
func (h *StorageHost) Storage() *Storage {
	return h.storage
}

func (h *StorageHost) Find(t reflect.Type) *EntityRef {
	if !h.storage.Registry().IsRegistered(t) {
		h.logger.Debug("find skipped for unregistered component", zap.Stringer("type", t))
		return nil
	}
	id, ok := h.storage.FindFirst(t)
	if !ok {
		return nil
	}
	return h.storage.CreateEntityRef(id)
}

// Create returns nil when the component's type is not registered with the storage.
func (h *StorageHost) Create(name string, component any) *EntityRef {
	t := reflect.TypeOf(component)
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if !h.storage.Registry().IsRegistered(t) {
		h.logger.Debug("container not created for unregistered component", zap.String("name", name), zap.Stringer("type", t))
		return nil
	}

	id := h.storage.Spawn(ContainerName(name), component)
	h.logger.Debug("container created", zap.String("name", name), zap.Uint64("entity", uint64(id)))
	return h.storage.CreateEntityRef(id)
}

func (h *StorageHost) Persist(ref *EntityRef) {
	id, ok := h.storage.ResolveEntityRef(ref)
	if !ok || h.storage.IsPersistent(id) {
		return
	}
	h.storage.AddComponent(id, Persistent{})
}

func (h *StorageHost) Destroy(ref *EntityRef) {
	h.storage.DestroyLater(ref)
}

func (h *StorageHost) Resolve(ref *EntityRef, t reflect.Type) any {
	id, ok := h.storage.ResolveEntityRef(ref)
	if !ok {
		return nil
	}
	return h.storage.GetComponent(id, t)
}

func (h *StorageHost) Subscribe(l HostListener) {
	for _, existing := range h.listeners {
		if existing == l {
			return
		}
	}
	h.listeners = append(h.listeners, l)
}

func (h *StorageHost) Unsubscribe(l HostListener) {
	for i, existing := range h.listeners {
		if existing == l {
			h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
			return
		}
	}
}

// EntitySpawned implements StorageObserver.
func (h *StorageHost) EntitySpawned(id EntityId, types []reflect.Type) {
	h.dispatch(id, types, HostListener.OnCreate)
}

// EntityMoved implements StorageObserver.
func (h *StorageHost) EntityMoved(_, to EntityId, types []reflect.Type) {
	h.dispatch(to, types, HostListener.OnMove)
}

// EntityDeleting implements StorageObserver.
func (h *StorageHost) EntityDeleting(id EntityId, types []reflect.Type) {
	h.dispatch(id, types, HostListener.OnTeardown)
}

func (h *StorageHost) dispatch(id EntityId, types []reflect.Type, call func(HostListener, *EntityRef, reflect.Type)) {
	var ref *EntityRef
	for _, l := range h.listeners {
		for _, t := range types {
			if !l.Tracks(t) {
				continue
			}
			if ref == nil {
				ref = h.storage.CreateEntityRef(id)
				if ref == nil {
					return
				}
			}
			call(l, ref, t)
		}
	}
}
