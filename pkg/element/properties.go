package element

import (
	"maps"
	"reflect"
	"slices"
)

// Properties is an immutable key/value map. Never write to a Properties value
// obtained from a state; use With and Without, which copy.
type Properties map[string]any

// With returns a copy of p with key set to value, or p itself when the key
// already holds an equal value.
func (p Properties) With(key string, value any) Properties {
	if old, ok := p[key]; ok && reflect.DeepEqual(old, value) {
		return p
	}
	next := make(Properties, len(p)+1)
	maps.Copy(next, p)
	next[key] = value
	return next
}

// Without returns a copy of p without key, or p itself when key is absent.
func (p Properties) Without(key string) Properties {
	if _, ok := p[key]; !ok {
		return p
	}
	next := make(Properties, len(p))
	for k, v := range p {
		if k != key {
			next[k] = v
		}
	}
	return next
}

// Equal compares keys and values.
func (p Properties) Equal(other Properties) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		o, ok := other[k]
		if !ok || !reflect.DeepEqual(v, o) {
			return false
		}
	}
	return true
}

// Keys returns the keys in sorted order.
func (p Properties) Keys() []string {
	keys := slices.Collect(maps.Keys(p))
	slices.Sort(keys)
	return keys
}

// Clone returns a mutable copy.
func (p Properties) Clone() map[string]any {
	return maps.Clone(map[string]any(p))
}
