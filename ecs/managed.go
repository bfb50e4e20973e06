package ecs

// Managed is a system field giving access to a registry-managed singleton.
// The Scheduler initializes Managed fields when it has a registry.
type Managed[T any] struct {
	registry *SingletonRegistry
}

// NewManaged returns an accessor for T, registering T with r.
func NewManaged[T any](r *SingletonRegistry) *Managed[T] {
	m := &Managed[T]{}
	m.Init(r)
	return m
}

// Init binds the accessor to a registry and registers T.
func (m *Managed[T]) Init(r *SingletonRegistry) {
	m.registry = r
	RegisterSingleton[T](r)
}

// Get returns the live instance of T, creating it on first use, or nil after teardown.
func (m *Managed[T]) Get() *T {
	if m.registry == nil {
		return nil
	}
	return Instance[T](m.registry)
}

// Exists reports whether T currently has an initialized instance, without creating one.
func (m *Managed[T]) Exists() bool {
	if m.registry == nil {
		return false
	}
	state := StateOf[T](m.registry)
	return state.Instance != nil && state.Initialized && !state.Destroyed
}
