package sampler

import (
	"math/rand/v2"
	"testing"
)

func BenchmarkSample(b *testing.B) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	rng := rand.New(rand.NewPCG(1, 1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Sample(items, 10, rng)
	}
}
