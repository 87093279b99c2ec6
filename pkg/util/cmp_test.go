package util

import "testing"

func eqInt(a, b int) bool { return a == b }

func TestEqualSlices_Ordered(t *testing.T) {
	if !EqualSlices([]int{1, 2, 3}, []int{1, 2, 3}, eqInt, false) {
		t.Fatal("equal slices reported unequal")
	}
	if EqualSlices([]int{1, 2, 3}, []int{3, 2, 1}, eqInt, false) {
		t.Fatal("order ignored without ignoreOrder")
	}
	if EqualSlices([]int{1, 2}, []int{1, 2, 3}, eqInt, false) {
		t.Fatal("length mismatch reported equal")
	}
}

func TestEqualSlices_IgnoreOrder(t *testing.T) {
	if !EqualSlices([]int{3, 1, 2}, []int{1, 2, 3}, eqInt, true) {
		t.Fatal("permutation reported unequal")
	}
	if EqualSlices([]int{1, 1, 2}, []int{1, 2, 2}, eqInt, true) {
		t.Fatal("different multisets reported equal")
	}
}

func TestEqualSlices_Empty(t *testing.T) {
	if !EqualSlices(nil, []int{}, eqInt, false) {
		t.Fatal("nil and empty should compare equal")
	}
}
