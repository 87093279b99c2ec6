package util

import (
	"fmt"
	"sort"
)

// EqualSlices reports whether a and b hold the same elements under eq.
// With ignoreOrder set, both slices are compared as multisets.
func EqualSlices[T any](a, b []T, eq func(x, y T) bool, ignoreOrder bool) bool {
	if len(a) != len(b) {
		return false
	}
	if ignoreOrder {
		a = sortedCopy(a)
		b = sortedCopy(b)
	}
	for i := range a {
		if !eq(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sortedCopy[T any](s []T) []T {
	c := append([]T(nil), s...)
	sort.Slice(c, func(i, j int) bool {
		return fmt.Sprint(c[i]) < fmt.Sprint(c[j])
	})
	return c
}
