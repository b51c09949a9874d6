package bworker

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
)

// Entry is a key and its stored value.
type Entry struct {
	Key   string
	Value []byte
}

// Storage is the durable key-value store of a single object.
type Storage interface {
	// Get returns the value, or false if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes the key. Deleting a key that does not exist is not an error.
	Delete(ctx context.Context, key string) error
	// List returns the entries whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
}

// ObjectState is the state of a durable object. It is handed to handler factories and is
// available on every request context of an [ObjectRouter].
type ObjectState struct {
	ID      string
	Storage Storage
}

// NewObjectState inits the state of the object with the given id.
func NewObjectState(id string, storage Storage) *ObjectState {
	return &ObjectState{ID: id, Storage: storage}
}

// GetJSON decodes the value stored under key into v. It returns false if the key does not exist.
func (s *ObjectState) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := s.Storage.Get(ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "get %q", key)
	} else if !ok {
		return false, nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "decode %q", key)
	}

	return true, nil
}

// PutJSON stores the JSON encoding of v under key.
func (s *ObjectState) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}

	return errors.Wrapf(s.Storage.Put(ctx, key, data), "put %q", key)
}

// ObjectRouter is a router for a durable object. It behaves like a [Router] but handler
// factories and request contexts carry the object's state.
type ObjectRouter[E Environment] struct {
	*Router[E]
}

// NewObjectRouter creates a router for the object with the given state.
func NewObjectRouter[E Environment](state *ObjectState, env E, opts ...Option[E]) *ObjectRouter[E] {
	rtr := NewRouter(env, opts...)
	rtr.state = state

	return &ObjectRouter[E]{Router: rtr}
}

// State returns the object's state.
func (o *ObjectRouter[E]) State() *ObjectState { return o.state }

// Namespace addresses durable objects by id. Every id gets its own [ObjectRouter], created on
// first use and reused afterwards.
type Namespace[E Environment] struct {
	storage func(id string) Storage
	setup   func(o *ObjectRouter[E])
	env     E
	opts    []Option[E]

	mu      sync.Mutex
	objects map[string]*ObjectRouter[E]
}

// NewNamespace creates a namespace. The storage function returns the storage of an object, setup
// registers the middleware and handlers of a newly created object router.
func NewNamespace[E Environment](
	storage func(id string) Storage, setup func(o *ObjectRouter[E]), env E, opts ...Option[E],
) *Namespace[E] {
	return &Namespace[E]{
		storage: storage,
		setup:   setup,
		env:     env,
		opts:    opts,
		objects: map[string]*ObjectRouter[E]{},
	}
}

// Get returns the router of the object with the given id.
func (ns *Namespace[E]) Get(id string) *ObjectRouter[E] {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if obj, ok := ns.objects[id]; ok {
		return obj
	}

	obj := NewObjectRouter(NewObjectState(id, ns.storage(id)), ns.env, ns.opts...)
	ns.setup(obj)
	obj.Build()

	ns.objects[id] = obj

	return obj
}

// Fetch forwards the request to the object with the given id.
func (ns *Namespace[E]) Fetch(id string, r *http.Request, env E) *Response {
	return ns.Get(id).Fetch(r, env)
}
