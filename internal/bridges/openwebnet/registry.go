package openwebnet

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps logical device ids to device handles for one gateway.
// It is read on the gateway event goroutine and written from device
// lifecycle calls.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

// Register adds or replaces the handle for id.
//
// Returns:
//   - error: ErrInvalidArgument if id is empty or handle is nil
func (r *Registry) Register(id string, handle *Device) error {
	if id == "" || handle == nil {
		return fmt.Errorf("%w: register requires an id and a handle (id=%q)", ErrInvalidArgument, id)
	}
	r.mu.Lock()
	r.devices[id] = handle
	r.mu.Unlock()
	return nil
}

// Unregister removes id. Removing an unknown id is not an error.
//
// Returns:
//   - error: ErrInvalidArgument if id is empty
func (r *Registry) Unregister(id string) error {
	if id == "" {
		return fmt.Errorf("%w: unregister requires an id", ErrInvalidArgument)
	}
	r.mu.Lock()
	delete(r.devices, id)
	r.mu.Unlock()
	return nil
}

// Lookup returns the handle registered for id.
func (r *Registry) Lookup(id string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Devices returns a snapshot of the registered handles.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}
