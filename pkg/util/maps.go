// Package util holds small generic helpers shared across packages.
package util

import (
	"cmp"
	"maps"
	"slices"
)

// SortedKeys returns the keys of a map in sorted order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}

// MissingKeys returns, in sorted order, the keys of a that are absent from b.
func MissingKeys[K cmp.Ordered, V, W any](a map[K]V, b map[K]W) []K {
	var out []K
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
