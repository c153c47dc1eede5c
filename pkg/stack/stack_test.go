package stack_test

import (
	"testing"

	"hopvm/pkg/stack"
)

func TestPushPop(t *testing.T) {
	s := stack.NewStack(1, 2)
	s.Push(3)

	if s.Size() != 3 {
		t.Fatalf("expected size 3, got %d", s.Size())
	}

	for _, expected := range []int{3, 2, 1} {
		got, ok := s.Pop()
		if !ok || got != expected {
			t.Errorf("expected %d, got %d (ok=%v)", expected, got, ok)
		}
	}

	if _, ok := s.Pop(); ok {
		t.Errorf("pop on empty stack should fail")
	}
}

func TestPeekAndTruncate(t *testing.T) {
	s := stack.NewStack("a", "b", "c", "d")

	if top, _ := s.Peek(); top != "d" {
		t.Errorf("expected top d, got %s", top)
	}
	if second, _ := s.PeekAt(1); second != "c" {
		t.Errorf("expected c one below top, got %s", second)
	}
	if _, ok := s.PeekAt(4); ok {
		t.Errorf("PeekAt past the bottom should fail")
	}

	s.Truncate(1)
	if s.Size() != 1 {
		t.Fatalf("expected size 1 after truncate, got %d", s.Size())
	}
	if got := s.Array(); len(got) != 1 || got[0] != "a" {
		t.Errorf("unexpected contents after truncate: %v", got)
	}
}

func TestArrayIsACopy(t *testing.T) {
	s := stack.NewStack(1, 2)
	arr := s.Array()
	arr[0] = 99

	if bottom, _ := s.PeekAt(1); bottom != 1 {
		t.Errorf("Array must not alias the stack, bottom became %d", bottom)
	}
}
