package interpreter

import (
	"maps"
	"slices"
)

// Scope is a name to value binding environment. Every write bumps its version.
type Scope struct {
	vars    map[string]Value
	version uint64
}

// NewScope creates an empty scope
func NewScope() *Scope {
	return &Scope{vars: make(map[string]Value)}
}

// Get looks up a binding
func (s *Scope) Get(name string) (Value, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Set binds name to v
func (s *Scope) Set(name string, v Value) {
	s.vars[name] = v
	s.version++
}

// Delete removes a binding, reporting whether it existed
func (s *Scope) Delete(name string) bool {
	if _, ok := s.vars[name]; !ok {
		return false
	}
	delete(s.vars, name)
	s.version++
	return true
}

// Has reports whether name is bound
func (s *Scope) Has(name string) bool {
	_, ok := s.vars[name]
	return ok
}

// Names returns the bound names in sorted order
func (s *Scope) Names() []string {
	return slices.Sorted(maps.Keys(s.vars))
}

// Len returns the number of bindings
func (s *Scope) Len() int {
	return len(s.vars)
}

// Version returns the number of writes applied to the scope
func (s *Scope) Version() uint64 {
	return s.version
}

// Clone copies the bindings into a new scope. Reference objects held by the
// values are shared, the binding map is not.
func (s *Scope) Clone() *Scope {
	return &Scope{vars: maps.Clone(s.vars), version: s.version}
}
