package analysis

import (
	"sync"

	"hopvm/pkg/bytecode"
)

// Cache memoizes tables by code object identity
type Cache struct {
	mu     sync.Mutex
	tables map[*bytecode.CodeObject]*Table
}

func NewCache() *Cache {
	return &Cache{tables: make(map[*bytecode.CodeObject]*Table)}
}

// Table returns the cached table of code, analysing it on first use
func (c *Cache) Table(code *bytecode.CodeObject) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tables[code]; ok {
		return t, nil
	}
	t, err := Analyze(code)
	if err != nil {
		return nil, err
	}
	c.tables[code] = t
	return t, nil
}

// Len returns the number of cached tables
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tables)
}

var shared = NewCache()

// Cached analyses code through the process-wide cache
func Cached(code *bytecode.CodeObject) (*Table, error) {
	return shared.Table(code)
}
