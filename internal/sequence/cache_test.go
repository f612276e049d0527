package sequence

import "testing"

func TestAppendSequential(t *testing.T) {
	c := NewSequential[int]()
	for k := 9; k < 100; k++ {
		if err := c.Append(uint64(k), k); err != nil {
			t.Fatalf("append(%d): %v", k, err)
		}
	}
	for i := 9; i < 100; i++ {
		v, ok := c.Get(uint64(i))
		if !ok || v != i {
			t.Fatalf("get(%d) = %v, %v; want %d, true", i, v, ok, i)
		}
	}
	if _, ok := c.Get(100); ok {
		t.Fatalf("get(100) should miss")
	}
	if lb, _ := c.LowerBound(); lb != 9 {
		t.Fatalf("lower bound = %d, want 9", lb)
	}
	if ub, _ := c.UpperBound(); ub != 99 {
		t.Fatalf("upper bound = %d, want 99", ub)
	}
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	c := NewSequential[int]()
	must(t, c.Append(10, 10))
	if err := c.Append(12, 12); err != AboveBound {
		t.Fatalf("want AboveBound, got %v", err)
	}
	must(t, c.Append(11, 11))
	if err := c.Append(11, 11); err != AlreadyInserted {
		t.Fatalf("want AlreadyInserted, got %v", err)
	}
	if err := c.Append(9, 9); err != BelowBound {
		t.Fatalf("want BelowBound, got %v", err)
	}
}

func TestRanges(t *testing.T) {
	c := NewSequential[int]()
	for k := 1; k < 100; k++ {
		must(t, c.Append(uint64(k), k))
	}
	from50 := c.ValuesFrom(50)
	if len(from50) != 50 {
		t.Fatalf("values_from(50) len = %d, want 50", len(from50))
	}
	within := c.ValuesWithin(50, 60)
	if len(within) != 11 {
		t.Fatalf("values_within(50,60) len = %d, want 11", len(within))
	}
}

func TestRemoveBelowAbove(t *testing.T) {
	c := NewSequential[int]()
	for k := 0; k < 100; k++ {
		must(t, c.Append(uint64(k), k))
	}
	c.RemoveKeyBelow(10)
	c.RemoveKeyAbove(50)
	vals := c.Values()
	if len(vals) != 41 {
		t.Fatalf("len = %d, want 41", len(vals))
	}
	if vals[0] != 10 || vals[len(vals)-1] != 50 {
		t.Fatalf("unexpected bounds: %d..%d", vals[0], vals[len(vals)-1])
	}
}

func TestDifferentIncrement(t *testing.T) {
	c := New[int](101)
	for k := 0; k < 100; k++ {
		must(t, c.Append(uint64(k)*101, k))
	}
	vals := c.ValuesFrom(102)
	if len(vals) != 98 {
		t.Fatalf("len = %d, want 98", len(vals))
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
