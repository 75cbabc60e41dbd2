package dummydb

import (
	"sort"
	"strings"

	"github.com/trezcool/dabestan/core"
)

// comparators compare two items on a field, returning <0, 0 or >0.
type comparators[T any] map[string]func(a, b T) int

// sortBy sorts items by ordering, ignoring unknown fields. Ties keep insertion order.
func sortBy[T any](items []T, ordering []core.DBOrdering, cmps comparators[T]) {
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			c := cmp(items[i], items[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
