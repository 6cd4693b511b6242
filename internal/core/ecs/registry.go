package ecs

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// TypeID is the small integer a registered component type is known by.
// TypeID 0 is reserved.
type TypeID uint16

var (
	ErrTypeRegistered = errors.New("component type already registered")
	ErrTypeLimit      = errors.New("component type limit reached")
)

// ManagerFactory creates the manager for a component type in one world.
type ManagerFactory func(w *World, info *TypeInfo) ComponentManager

// TypeInfo describes a registered component type.
type TypeInfo struct {
	ID         TypeID
	Name       string
	Version    uint32
	NewManager ManagerFactory
}

// TypeRegistry maps component type names to TypeInfo. It is created by the
// host and handed to every world through WorldDesc.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]*TypeInfo
	byID   []*TypeInfo
	free   []TypeID
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: make(map[string]*TypeInfo),
		byID:   make([]*TypeInfo, 1, 16),
	}
}

// Register adds a component type.
func (r *TypeRegistry) Register(name string, version uint32, factory ManagerFactory) (*TypeInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("register %q: %w", name, ErrTypeRegistered)
	}
	var id TypeID
	if n := len(r.free); n > 0 {
		id = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		if len(r.byID) > math.MaxUint16 {
			return nil, fmt.Errorf("register %q: %w", name, ErrTypeLimit)
		}
		id = TypeID(len(r.byID))
		r.byID = append(r.byID, nil)
	}
	info := &TypeInfo{ID: id, Name: name, Version: version, NewManager: factory}
	r.byID[id] = info
	r.byName[name] = info
	return info, nil
}

// MustRegister is Register for package init paths; it panics on error.
func (r *TypeRegistry) MustRegister(name string, version uint32, factory ManagerFactory) *TypeInfo {
	info, err := r.Register(name, version, factory)
	if err != nil {
		panic(err)
	}
	return info
}

// Unregister removes a type and recycles its id. Worlds that already
// created a manager for it keep that manager.
func (r *TypeRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.byName[name]
	if !ok {
		return false
	}
	delete(r.byName, name)
	r.byID[info.ID] = nil
	r.free = append(r.free, info.ID)
	return true
}

func (r *TypeRegistry) Lookup(name string) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byName[name]
	return info, ok
}

func (r *TypeRegistry) ByID(id TypeID) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.byID) || r.byID[id] == nil {
		return nil, false
	}
	return r.byID[id], true
}

// Types returns all registered types sorted by name.
func (r *TypeRegistry) Types() []*TypeInfo {
	r.mu.RLock()
	out := make([]*TypeInfo, 0, len(r.byName))
	for _, info := range r.byName {
		out = append(out, info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
