package stack

// Stack is a LIFO used for operand stacks, block stacks and the call stack.
type Stack[T any] struct {
	a []T
	l int
}

// NewStack creates a new stack instance holding elm, bottom first
func NewStack[T any](elm ...T) *Stack[T] {
	stack := Stack[T]{
		a: make([]T, 0, len(elm)),
		l: 0,
	}

	for _, e := range elm {
		stack.l++
		stack.a = append(stack.a, e)
	}

	return &stack
}

// Push adds an element to the top of the stack
func (s *Stack[T]) Push(elm T) {
	s.l++
	s.a = append(s.a, elm)
}

// Pop removes and returns the top element of the stack.
// ok is false when the stack is empty.
func (s *Stack[T]) Pop() (elm T, ok bool) {
	if s.l < 1 {
		return elm, false
	}

	s.l--
	elm = s.a[s.l]
	var zero T
	s.a[s.l] = zero
	s.a = s.a[:s.l]

	return elm, true
}

// Peek returns the top element of the stack without removing it
func (s *Stack[T]) Peek() (elm T, ok bool) {
	if s.l < 1 {
		return elm, false
	}

	return s.a[s.l-1], true
}

// PeekAt returns the element n positions below the top (0 is the top)
func (s *Stack[T]) PeekAt(n int) (elm T, ok bool) {
	if n < 0 || n >= s.l {
		return elm, false
	}

	return s.a[s.l-1-n], true
}

// Truncate drops elements until the stack holds at most size elements
func (s *Stack[T]) Truncate(size int) {
	if size < 0 {
		size = 0
	}
	var zero T
	for s.l > size {
		s.l--
		s.a[s.l] = zero
	}
	s.a = s.a[:s.l]
}

// Size returns the size of the stack
func (s *Stack[T]) Size() int {
	return s.l
}

// Array returns a copy of the stack contents, bottom first
func (s *Stack[T]) Array() []T {
	return append([]T(nil), s.a...)
}
