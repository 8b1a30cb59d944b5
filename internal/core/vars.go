package core

import "sync"

// Variables provides named values to payload templates.
type Variables interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapVariables is a map-based Variables implementation, safe for concurrent use.
type MapVariables struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewVariables() *MapVariables {
	return &MapVariables{data: make(map[string]any)}
}

// NewVariablesFrom seeds a MapVariables with a copy of m.
func NewVariablesFrom(m map[string]any) *MapVariables {
	v := &MapVariables{data: make(map[string]any, len(m))}
	for k, val := range m {
		v.data[k] = val
	}
	return v
}

func (v *MapVariables) Get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.data[key]
	return val, ok
}

func (v *MapVariables) Set(key string, value any) {
	v.mu.Lock()
	v.data[key] = value
	v.mu.Unlock()
}
