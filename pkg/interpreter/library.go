package interpreter

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
)

// Importer resolves library names for IMPORT_NAME and for rebuilding
// migrated state on a destination host.
type Importer interface {
	Import(name string) (*Module, error)
}

// Registry is an Importer over an in-process set of modules. It is safe for
// concurrent use and counts every import for diagnostics.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Module
	loads   map[string]int
}

// NewRegistry creates a registry holding mods
func NewRegistry(mods ...*Module) *Registry {
	r := &Registry{
		modules: make(map[string]*Module),
		loads:   make(map[string]int),
	}
	for _, m := range mods {
		r.Register(m)
	}
	return r
}

// Register adds or replaces a module
func (r *Registry) Register(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name] = m
}

func (r *Registry) Import(name string) (*Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	r.loads[name]++
	return m, nil
}

// Loads returns how many times name was imported
func (r *Registry) Loads(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loads[name]
}

// Names returns the registered module names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.modules))
}

// StandardLibrary returns a registry with the math, text and stats modules
func StandardLibrary() *Registry {
	return NewRegistry(mathModule(), textModule(), statsModule())
}

func newModule(name string, members map[string]Value) *Module {
	return &Module{Name: name, Members: members}
}

func member(module, name string, fn NativeFunc) Value {
	return NewNative(module+"."+name, fn)
}

func floatArg(args []Value, idx int) (float64, error) {
	return args[idx].AsFloat64()
}

func mathModule() *Module {
	unary := func(name string, fn func(float64) float64) Value {
		return member("math", name, func(_ *Interpreter, args []Value) (Value, error) {
			if err := arity(args, 1, 1); err != nil {
				return Value{}, err
			}
			x, err := floatArg(args, 0)
			if err != nil {
				return Value{}, err
			}
			return NewFloat(fn(x)), nil
		})
	}
	rounding := func(name string, fn func(float64) float64) Value {
		return member("math", name, func(_ *Interpreter, args []Value) (Value, error) {
			if err := arity(args, 1, 1); err != nil {
				return Value{}, err
			}
			x, err := floatArg(args, 0)
			if err != nil {
				return Value{}, err
			}
			n, err := floatToInt(fn(x))
			if err != nil {
				return Value{}, err
			}
			return NewInt(n), nil
		})
	}

	return newModule("math", map[string]Value{
		"pi":    NewFloat(math.Pi),
		"e":     NewFloat(math.E),
		"sqrt":  unary("sqrt", math.Sqrt),
		"floor": rounding("floor", math.Floor),
		"ceil":  rounding("ceil", math.Ceil),
		"pow": member("math", "pow", func(_ *Interpreter, args []Value) (Value, error) {
			if err := arity(args, 2, 2); err != nil {
				return Value{}, err
			}
			x, err := floatArg(args, 0)
			if err != nil {
				return Value{}, err
			}
			y, err := floatArg(args, 1)
			if err != nil {
				return Value{}, err
			}
			return NewFloat(math.Pow(x, y)), nil
		}),
		"log": member("math", "log", func(_ *Interpreter, args []Value) (Value, error) {
			if err := arity(args, 1, 2); err != nil {
				return Value{}, err
			}
			x, err := floatArg(args, 0)
			if err != nil {
				return Value{}, err
			}
			if len(args) == 1 {
				return NewFloat(math.Log(x)), nil
			}
			base, err := floatArg(args, 1)
			if err != nil {
				return Value{}, err
			}
			return NewFloat(math.Log(x) / math.Log(base)), nil
		}),
	})
}

func stringArg(args []Value, idx int) (string, error) {
	if args[idx].Kind != KindString {
		return "", fmt.Errorf("%w: expected str, got %v", ErrTypeMismatch, args[idx].Kind)
	}
	return args[idx].Str, nil
}

func textModule() *Module {
	transform := func(name string, fn func(string) string) Value {
		return member("text", name, func(_ *Interpreter, args []Value) (Value, error) {
			if err := arity(args, 1, 1); err != nil {
				return Value{}, err
			}
			s, err := stringArg(args, 0)
			if err != nil {
				return Value{}, err
			}
			return NewString(fn(s)), nil
		})
	}

	return newModule("text", map[string]Value{
		"upper": transform("upper", strings.ToUpper),
		"lower": transform("lower", strings.ToLower),
		"strip": transform("strip", strings.TrimSpace),
		"split": member("text", "split", func(_ *Interpreter, args []Value) (Value, error) {
			if err := arity(args, 1, 2); err != nil {
				return Value{}, err
			}
			s, err := stringArg(args, 0)
			if err != nil {
				return Value{}, err
			}

			var parts []string
			if len(args) == 1 {
				parts = strings.Fields(s)
			} else {
				sep, err := stringArg(args, 1)
				if err != nil {
					return Value{}, err
				}
				parts = strings.Split(s, sep)
			}

			items := make([]Value, len(parts))
			for idx, p := range parts {
				items[idx] = NewString(p)
			}
			return NewList(items...), nil
		}),
		"join": member("text", "join", func(_ *Interpreter, args []Value) (Value, error) {
			if err := arity(args, 2, 2); err != nil {
				return Value{}, err
			}
			sep, err := stringArg(args, 0)
			if err != nil {
				return Value{}, err
			}
			if args[1].Kind != KindList {
				return Value{}, fmt.Errorf("%w: join expects a list, got %v", ErrTypeMismatch, args[1].Kind)
			}
			parts := make([]string, len(args[1].List.Items))
			for idx, item := range args[1].List.Items {
				parts[idx] = item.String()
			}
			return NewString(strings.Join(parts, sep)), nil
		}),
	})
}

func numbers(v Value) ([]float64, error) {
	if v.Kind != KindList {
		return nil, fmt.Errorf("%w: expected a list, got %v", ErrTypeMismatch, v.Kind)
	}
	out := make([]float64, len(v.List.Items))
	for idx, item := range v.List.Items {
		f, err := item.AsFloat64()
		if err != nil {
			return nil, err
		}
		out[idx] = f
	}
	return out, nil
}

func statsModule() *Module {
	return newModule("stats", map[string]Value{
		"mean": member("stats", "mean", func(_ *Interpreter, args []Value) (Value, error) {
			if err := arity(args, 1, 1); err != nil {
				return Value{}, err
			}
			xs, err := numbers(args[0])
			if err != nil {
				return Value{}, err
			}
			if len(xs) == 0 {
				return Value{}, fmt.Errorf("%w: mean of an empty list", ErrZeroDivision)
			}
			var sum float64
			for _, x := range xs {
				sum += x
			}
			return NewFloat(sum / float64(len(xs))), nil
		}),
		"total": member("stats", "total", func(i *Interpreter, args []Value) (Value, error) {
			if err := arity(args, 1, 1); err != nil {
				return Value{}, err
			}
			return builtinSum(i, args)
		}),
	})
}

// ResolveNative finds a native by its qualified name: builtins are unqualified,
// library members are "module.member".
func ResolveNative(imp Importer, name string) (Value, error) {
	mod, fn, qualified := strings.Cut(name, ".")
	if !qualified {
		v, ok := builtinTable[name]
		if !ok {
			return Value{}, fmt.Errorf("%w: builtin %s", ErrUndefinedName, name)
		}
		return v, nil
	}

	m, err := imp.Import(mod)
	if err != nil {
		return Value{}, err
	}
	v, ok := m.Members[fn]
	if !ok || v.Kind != KindNative {
		return Value{}, fmt.Errorf("%w: %s", ErrUndefinedName, name)
	}
	return v, nil
}
