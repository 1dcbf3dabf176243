package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetOrCreateReportsCreation(t *testing.T) {
	reg := New[int]()

	v, created := reg.GetOrCreate("/x", func() int { return 1 })
	assert.True(t, created)
	assert.Equal(t, 1, v)

	v, created = reg.GetOrCreate("/x", func() int { return 2 })
	assert.False(t, created)
	assert.Equal(t, 1, v, "second call must return the already-inserted value")
}

func TestGetOrCreateIsAtomicUnderConcurrency(t *testing.T) {
	reg := New[int]()
	const n = 100

	var wg sync.WaitGroup
	createdCount := make([]bool, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			_, created := reg.GetOrCreate("/shared", func() int { return 42 })
			createdCount[i] = created
		}()
	}
	wg.Wait()

	total := 0
	for _, c := range createdCount {
		if c {
			total++
		}
	}
	assert.Equal(t, 1, total, "exactly one caller should observe created=true")
}

func TestRemoveIsIdempotent(t *testing.T) {
	reg := New[int]()
	reg.GetOrCreate("/x", func() int { return 1 })
	reg.Remove("/x")
	reg.Remove("/x") // must not panic or error
	assert.Equal(t, 0, reg.Len())

	_, ok := reg.Get("/x")
	assert.False(t, ok)
}

func TestForceExitAllVisitsSnapshot(t *testing.T) {
	reg := New[int]()
	reg.GetOrCreate("/a", func() int { return 1 })
	reg.GetOrCreate("/b", func() int { return 2 })

	var seen []int
	reg.ForceExitAll(func(v int) {
		seen = append(seen, v)
	})
	assert.ElementsMatch(t, []int{1, 2}, seen)
}
