package ecs

import (
	"reflect"
	"sort"
	"sync"

	"github.com/kamstrup/intmap"
	"go.uber.org/zap"
)

// SingletonRegistry keeps at most one live instance of each registered
// component type inside a Host, creating it on first access.
//
// Each type has its own slot: a gate serializing accessor calls for that type,
// and a state lock guarding the current instance and its initialized and
// destroyed flags. Host callbacks only take the state lock, so a callback
// raised by the accessor's own Create never waits on the gate.
type SingletonRegistry struct {
	host    Host
	logger  *zap.Logger
	metrics *SingletonMetrics

	mu     sync.RWMutex
	slots  *intmap.Map[int, slot]
	closed bool
}

// SingletonState is a snapshot of one slot.
type SingletonState struct {
	Type        reflect.Type
	Name        string
	Instance    *EntityRef
	Initialized bool
	Destroyed   bool
}

// RegistryOption configures a SingletonRegistry.
type RegistryOption func(*SingletonRegistry)

// WithLogger sets the logger for lifecycle events. The default discards everything.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *SingletonRegistry) {
		r.logger = logger
	}
}

// WithMetrics wires lifecycle counters into the registry.
func WithMetrics(m *SingletonMetrics) RegistryOption {
	return func(r *SingletonRegistry) {
		r.metrics = m
	}
}

// NewSingletonRegistry creates a registry managing instances inside host
// and subscribes it to the host's lifecycle notifications.
func NewSingletonRegistry(host Host, opts ...RegistryOption) *SingletonRegistry {
	r := &SingletonRegistry{
		host:   host,
		logger: zap.NewNop(),
		slots:  intmap.New[int, slot](16),
	}
	for _, opt := range opts {
		opt(r)
	}
	host.Subscribe(r)
	return r
}

// Host returns the host the registry manages instances in.
func (r *SingletonRegistry) Host() Host {
	return r.host
}

// RegisterSingleton makes T a managed singleton type. Registering twice is a no-op.
// T must also be registered as a component with the host's storage.
func RegisterSingleton[T any](r *SingletonRegistry) {
	slotFor[T](r)
}

// Instance returns the live instance of T, creating it on first use.
//
// It returns nil once the current instance has been torn down: only a normal
// creation through the host (a spawn carrying T) brings the singleton back.
// Calling Instance may create and persist a new host object, which must
// happen on the goroutine that owns the host. Once the instance exists,
// Instance reads a cached pointer and may be called from any goroutine.
func Instance[T any](r *SingletonRegistry) *T {
	s := slotFor[T](r)
	if s == nil {
		return nil
	}
	return s.get()
}

// StateOf returns a snapshot of T's slot. An unregistered type reports the zero state.
func StateOf[T any](r *SingletonRegistry) SingletonState {
	state, _ := r.State(reflect.TypeFor[T]())
	return state
}

// State returns a snapshot of the slot for t.
func (r *SingletonRegistry) State(t reflect.Type) (SingletonState, bool) {
	s := r.lookup(t)
	if s == nil {
		return SingletonState{Type: t, Name: t.Name()}, false
	}
	return s.state(), true
}

// States returns snapshots of every slot, ordered by type name.
func (r *SingletonRegistry) States() []SingletonState {
	var states []SingletonState
	for _, s := range r.all() {
		states = append(states, s.state())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Type.String() < states[j].Type.String()
	})
	return states
}

// Tracks implements HostListener.
func (r *SingletonRegistry) Tracks(t reflect.Type) bool {
	return r.lookup(t) != nil
}

// OnCreate implements HostListener. The first object carrying t becomes the
// current instance; any later one is handed back to the host for destruction.
func (r *SingletonRegistry) OnCreate(ref *EntityRef, t reflect.Type) {
	if s := r.lookup(t); s != nil {
		s.onCreate(ref)
	}
}

// OnMove implements HostListener. The cached pointer of a relocated current
// instance is re-resolved.
func (r *SingletonRegistry) OnMove(ref *EntityRef, t reflect.Type) {
	if s := r.lookup(t); s != nil {
		s.onMove(ref)
	}
}

// OnTeardown implements HostListener. Only the current instance changes state.
func (r *SingletonRegistry) OnTeardown(ref *EntityRef, t reflect.Type) {
	if s := r.lookup(t); s != nil {
		s.onTeardown(ref)
	}
}

// Reset forgets every current instance and clears both flags.
// Host objects are left alone.
func (r *SingletonRegistry) Reset() {
	for _, s := range r.all() {
		s.reset()
	}
	r.logger.Debug("singleton registry reset")
}

// Close unsubscribes from the host and drops every slot. Instance returns nil
// afterwards. Host objects are left alone.
func (r *SingletonRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.slots.Clear()
	r.mu.Unlock()

	r.host.Unsubscribe(r)
	r.logger.Debug("singleton registry closed")
}

func (r *SingletonRegistry) lookup(t reflect.Type) slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, _ := r.slots.Get(typeId(t))
	return s
}

func (r *SingletonRegistry) all() []slot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slots := make([]slot, 0, r.slots.Len())
	r.slots.ForEach(func(_ int, s slot) bool {
		slots = append(slots, s)
		return true
	})
	return slots
}

func slotFor[T any](r *SingletonRegistry) *singletonSlot[T] {
	t := reflect.TypeFor[T]()
	key := typeId(t)

	r.mu.RLock()
	existing, ok := r.slots.Get(key)
	closed := r.closed
	r.mu.RUnlock()
	if ok {
		return existing.(*singletonSlot[T])
	}
	if closed {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if existing, ok := r.slots.Get(key); ok {
		return existing.(*singletonSlot[T])
	}

	s := &singletonSlot[T]{
		registry: r,
		typ:      t,
		name:     t.Name(),
	}
	r.slots.Put(key, s)
	r.logger.Debug("singleton registered", zap.String("type", t.String()))
	return s
}

// slot is the per-type state a registry stores in its table.
type slot interface {
	onCreate(ref *EntityRef)
	onMove(ref *EntityRef)
	onTeardown(ref *EntityRef)
	state() SingletonState
	reset()
}

// singletonSlot caches the resolved instance pointer. The pointer is only
// refreshed from host callbacks, so reading an existing instance never
// touches host storage and is safe from any goroutine.
type singletonSlot[T any] struct {
	registry *SingletonRegistry
	typ      reflect.Type
	name     string

	gate sync.Mutex

	mu          sync.Mutex
	current     *EntityRef
	ptr         *T
	initialized bool
	destroyed   bool
}

func (s *singletonSlot[T]) get() *T {
	if ptr, ok := s.cached(); ok {
		return ptr
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	if s.initialized && s.ptr != nil {
		ptr := s.ptr
		s.mu.Unlock()
		return ptr
	}
	s.dropStaleLocked()
	current := s.current
	s.mu.Unlock()

	if current == nil {
		current = s.locate()
		if current == nil {
			return nil
		}
	}

	ptr := s.resolve(current)

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return nil
	}
	if s.current == nil {
		s.current = current
	}
	if s.current == current && s.ptr == nil {
		s.ptr = ptr
	}
	ptr = s.ptr
	current = s.current
	ran := s.internalInitLocked()
	s.mu.Unlock()

	if ran {
		s.announceInit(current, ptr)
	}
	return ptr
}

// cached reports the answer for an initialized or destroyed slot without
// calling the host.
func (s *singletonSlot[T]) cached() (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil, true
	}
	if s.initialized && s.ptr != nil {
		return s.ptr, true
	}
	return nil, false
}

// locate finds an existing object carrying T or asks the host for a new,
// persistent container. The host may report the new object back through
// onCreate before Create returns.
func (s *singletonSlot[T]) locate() *EntityRef {
	r := s.registry
	if ref := r.host.Find(s.typ); ref != nil {
		r.logger.Debug("singleton found in scene", zap.String("type", s.name), zap.Uint64("entity", uint64(ref.Id)))
		return ref
	}

	ref := r.host.Create(s.name, new(T))
	if ref == nil {
		return nil
	}
	r.host.Persist(ref)
	r.metrics.recordCreated(s.name)
	r.logger.Debug("singleton container created", zap.String("type", s.name), zap.Uint64("entity", uint64(ref.Id)))
	return ref
}

func (s *singletonSlot[T]) onCreate(ref *EntityRef) {
	r := s.registry

	s.mu.Lock()
	s.dropStaleLocked()
	switch s.current {
	case nil:
		s.current = ref
		s.ptr = nil
		ran := s.internalInitLocked()
		s.mu.Unlock()

		ptr := s.resolve(ref)
		s.mu.Lock()
		if s.current == ref {
			s.ptr = ptr
		}
		s.mu.Unlock()

		if ran {
			s.announceInit(ref, ptr)
		}
	case ref:
		s.mu.Unlock()
	default:
		keep := s.current
		s.mu.Unlock()

		r.host.Destroy(ref)
		r.metrics.recordDuplicate(s.name)
		r.logger.Debug("duplicate singleton destroyed",
			zap.String("type", s.name),
			zap.Uint64("entity", uint64(ref.Id)),
			zap.Uint64("current", uint64(keep.Id)),
		)
	}
}

// onMove re-resolves the cached pointer after the host relocated the
// current instance.
func (s *singletonSlot[T]) onMove(ref *EntityRef) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current != ref {
		return
	}

	ptr := s.resolve(ref)
	s.mu.Lock()
	if s.current == ref {
		s.ptr = ptr
	}
	s.mu.Unlock()
}

func (s *singletonSlot[T]) onTeardown(ref *EntityRef) {
	s.mu.Lock()
	if s.current == nil || s.current != ref {
		s.mu.Unlock()
		return
	}
	ptr := s.ptr
	s.initialized = false
	s.destroyed = true
	s.current = nil
	s.ptr = nil
	s.mu.Unlock()

	r := s.registry
	if ptr == nil {
		ptr = s.resolve(ref)
	}
	if hooks, ok := any(ptr).(SingletonHooks); ok && ptr != nil {
		hooks.OnCleanUp()
	}
	r.metrics.recordTeardown(s.name)
	r.logger.Debug("singleton torn down", zap.String("type", s.name), zap.Uint64("entity", uint64(ref.Id)))
}

// internalInitLocked marks the current instance initialized. It reports
// whether this call performed the transition.
func (s *singletonSlot[T]) internalInitLocked() bool {
	if s.initialized || s.current == nil {
		return false
	}
	s.initialized = true
	s.destroyed = false
	return true
}

// dropStaleLocked forgets an instance whose host object vanished without a
// teardown notification.
func (s *singletonSlot[T]) dropStaleLocked() {
	if s.current != nil && !s.current.Valid() {
		s.current = nil
		s.ptr = nil
		s.initialized = false
	}
}

func (s *singletonSlot[T]) announceInit(ref *EntityRef, ptr *T) {
	r := s.registry
	if hooks, ok := any(ptr).(SingletonHooks); ok && ptr != nil {
		hooks.OnInit()
	}
	r.metrics.recordInitialized(s.name)
	r.logger.Debug("singleton initialized", zap.String("type", s.name), zap.Uint64("entity", uint64(ref.Id)))
}

func (s *singletonSlot[T]) resolve(ref *EntityRef) *T {
	ptr, _ := s.registry.host.Resolve(ref, s.typ).(*T)
	return ptr
}

func (s *singletonSlot[T]) state() SingletonState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SingletonState{
		Type:        s.typ,
		Name:        s.name,
		Instance:    s.current,
		Initialized: s.initialized,
		Destroyed:   s.destroyed,
	}
}

func (s *singletonSlot[T]) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.ptr = nil
	s.initialized = false
	s.destroyed = false
}
