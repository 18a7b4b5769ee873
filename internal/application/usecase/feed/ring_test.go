package feed

import (
	"reflect"
	"testing"
)

func TestRingKeepsLastCapacity(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	if got, want := r.All(), []int{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("All() = %v, want %v", got, want)
	}
	if r.Len() != 3 || r.Cap() != 3 {
		t.Errorf("Len/Cap = %d/%d, want 3/3", r.Len(), r.Cap())
	}
}

func TestRingLastWindows(t *testing.T) {
	r := NewRing[int](10)
	for i := 1; i <= 4; i++ {
		r.Push(i)
	}

	cases := []struct {
		n    int
		want []int
	}{
		{0, []int{1, 2, 3, 4}},
		{-1, []int{1, 2, 3, 4}},
		{1, []int{4}},
		{3, []int{2, 3, 4}},
		{4, []int{1, 2, 3, 4}},
		{50, []int{1, 2, 3, 4}},
	}
	for _, tc := range cases {
		if got := r.Last(tc.n); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Last(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestRingWrapMany(t *testing.T) {
	r := NewRing[int](4)
	for i := 0; i < 103; i++ {
		r.Push(i)
	}
	if got, want := r.All(), []int{99, 100, 101, 102}; !reflect.DeepEqual(got, want) {
		t.Fatalf("All() = %v, want %v", got, want)
	}
	if got, want := r.Last(2), []int{101, 102}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Last(2) = %v, want %v", got, want)
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing[*int](2)
	a, b := 1, 2
	r.Push(&a)
	r.Push(&b)
	r.Clear()

	if r.Len() != 0 || len(r.All()) != 0 {
		t.Fatalf("ring not empty after Clear: len=%d", r.Len())
	}
	for i, p := range r.buf {
		if p != nil {
			t.Errorf("slot %d still holds a reference", i)
		}
	}

	r.Push(&a)
	if got := r.All(); len(got) != 1 || *got[0] != 1 {
		t.Errorf("unexpected contents after reuse: %v", got)
	}
}

func TestRingMinimumCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	r.Push(2)
	if got := r.All(); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("All() = %v, want [2]", got)
	}
}

func TestRingLastReturnsCopy(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	got := r.All()
	got[0] = 99
	if r.All()[0] != 1 {
		t.Fatal("mutating the returned slice changed the ring")
	}
}
