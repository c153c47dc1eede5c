package analysis

import (
	"maps"
	"slices"
)

// VarSet is a set of variable names
type VarSet map[string]struct{}

// NewVarSet creates a set holding names
func NewVarSet(names ...string) VarSet {
	s := make(VarSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s VarSet) Add(name string) {
	s[name] = struct{}{}
}

func (s VarSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// AddAll adds every member of o to s
func (s VarSet) AddAll(o VarSet) {
	for n := range o {
		s[n] = struct{}{}
	}
}

// Union returns s ∪ o as a new set
func (s VarSet) Union(o VarSet) VarSet {
	u := maps.Clone(s)
	if u == nil {
		u = VarSet{}
	}
	u.AddAll(o)
	return u
}

// Intersect returns s ∩ o as a new set
func (s VarSet) Intersect(o VarSet) VarSet {
	r := VarSet{}
	for n := range s {
		if o.Has(n) {
			r.Add(n)
		}
	}
	return r
}

// Minus returns s \ o as a new set
func (s VarSet) Minus(o VarSet) VarSet {
	r := VarSet{}
	for n := range s {
		if !o.Has(n) {
			r.Add(n)
		}
	}
	return r
}

// SubsetOf reports whether every member of s is in o
func (s VarSet) SubsetOf(o VarSet) bool {
	for n := range s {
		if !o.Has(n) {
			return false
		}
	}
	return true
}

func (s VarSet) Equal(o VarSet) bool {
	return len(s) == len(o) && s.SubsetOf(o)
}

func (s VarSet) Clone() VarSet {
	c := maps.Clone(s)
	if c == nil {
		c = VarSet{}
	}
	return c
}

// Sorted returns the members in lexical order
func (s VarSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}
