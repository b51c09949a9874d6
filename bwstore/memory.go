// Package bwstore implements storage backends for the state of durable objects.
package bwstore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/advdv/bworker"
)

// Memory keeps the state of all objects in memory. It is meant for tests and local development.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]map[string][]byte
}

// NewMemory inits an empty memory store.
func NewMemory() *Memory {
	return &Memory{objs: map[string]map[string][]byte{}}
}

// Object returns the storage of the object with the given id.
func (m *Memory) Object(id string) bworker.Storage {
	return &memoryObject{m: m, id: id}
}

type memoryObject struct {
	m  *Memory
	id string
}

func (o *memoryObject) Get(_ context.Context, key string) ([]byte, bool, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()

	v, ok := o.m.objs[o.id][key]

	return slices.Clone(v), ok, nil
}

func (o *memoryObject) Put(_ context.Context, key string, value []byte) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()

	if o.m.objs[o.id] == nil {
		o.m.objs[o.id] = map[string][]byte{}
	}

	o.m.objs[o.id][key] = slices.Clone(value)

	return nil
}

func (o *memoryObject) Delete(_ context.Context, key string) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()

	delete(o.m.objs[o.id], key)

	return nil
}

func (o *memoryObject) List(_ context.Context, prefix string) ([]bworker.Entry, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()

	var entries []bworker.Entry
	for k, v := range o.m.objs[o.id] {
		if strings.HasPrefix(k, prefix) {
			entries = append(entries, bworker.Entry{Key: k, Value: slices.Clone(v)})
		}
	}

	slices.SortFunc(entries, func(a, b bworker.Entry) int { return strings.Compare(a.Key, b.Key) })

	return entries, nil
}
