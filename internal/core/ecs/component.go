package ecs

// Removable is implemented by all component stores so the Registry can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID) bool
}

// RemoveHook observes a component right before it leaves its store.
// The component pointer is still valid for the duration of the call.
type RemoveHook[T any] func(id EntityID, c *T)

// PtrComponentStore is a generic typed map store for ECS components.
// No reflect, no interface{} — pure generics.
type PtrComponentStore[T any] struct {
	data     map[EntityID]*T
	onRemove []RemoveHook[T]
}

func NewPtrComponentStore[T any]() *PtrComponentStore[T] {
	return &PtrComponentStore[T]{
		data: make(map[EntityID]*T, 256),
	}
}

// OnRemove registers a hook fired synchronously for every removal,
// including removals triggered by entity destruction.
func (s *PtrComponentStore[T]) OnRemove(fn RemoveHook[T]) {
	s.onRemove = append(s.onRemove, fn)
}

func (s *PtrComponentStore[T]) Set(id EntityID, c *T) {
	s.data[id] = c
}

func (s *PtrComponentStore[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

// Remove deletes the component after running the remove hooks.
// Returns false when the entity had no component in this store.
func (s *PtrComponentStore[T]) Remove(id EntityID) bool {
	c, ok := s.data[id]
	if !ok {
		return false
	}
	for _, fn := range s.onRemove {
		fn(id, c)
	}
	delete(s.data, id)
	return true
}

func (s *PtrComponentStore[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *PtrComponentStore[T]) Len() int {
	return len(s.data)
}

func (s *PtrComponentStore[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}
