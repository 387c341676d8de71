// Package sampler picks a random fixed-size subset of a slice.
package sampler

import (
	"errors"
	"math/rand/v2"
)

var ErrInvalidArgument = errors.New("sampler: invalid argument")

// Source draws a uniform integer in [0, n). *rand.Rand from math/rand/v2
// satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Default is safe for concurrent use.
var Default Source = globalSource{}

// Shuffle permutes items in place with the Durstenfeld variant of
// Fisher-Yates and returns the same slice. A nil src uses Default.
func Shuffle[T any](items []T, src Source) []T {
	if src == nil {
		src = Default
	}
	for i := len(items) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		items[i], items[j] = items[j], items[i]
	}
	return items
}

// TakePrefix returns the first min(k, len(items)) elements. Asking for more
// than is available is a short read, not an error.
func TakePrefix[T any](items []T, k int) ([]T, error) {
	if k < 0 {
		return nil, ErrInvalidArgument
	}
	n := min(k, len(items))
	return items[:n:n], nil
}

// Sample shuffles items in place and returns its first k elements.
// items is left untouched when k is invalid.
func Sample[T any](items []T, k int, src Source) ([]T, error) {
	if k < 0 {
		return nil, ErrInvalidArgument
	}
	return TakePrefix(Shuffle(items, src), k)
}
