package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetRandomElement(t *testing.T) {
	t.Run("returns an element from the slice", func(t *testing.T) {
		arr := []string{"a", "b", "c"}
		for i := 0; i < 50; i++ {
			got := GetRandomElement(arr)
			assert.Contains(t, arr, got)
		}
	})

	t.Run("single element slice always returns it", func(t *testing.T) {
		assert.Equal(t, 7, GetRandomElement([]int{7}))
	})

	t.Run("panics on empty slice", func(t *testing.T) {
		assert.Panics(t, func() { GetRandomElement([]int{}) })
	})
}

func TestRandomIntBetween(t *testing.T) {
	t.Run("stays inside inclusive bounds", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			n := RandomIntBetween(4, 7)
			assert.GreaterOrEqual(t, n, 4)
			assert.LessOrEqual(t, n, 7)
		}
	})

	t.Run("degenerate range returns min", func(t *testing.T) {
		assert.Equal(t, 5, RandomIntBetween(5, 5))
		assert.Equal(t, 5, RandomIntBetween(5, 2))
	})
}

func TestRandomFloatBetween(t *testing.T) {
	t.Run("stays inside bounds", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			f := RandomFloatBetween(30, 100)
			assert.GreaterOrEqual(t, f, 30.0)
			assert.Less(t, f, 100.0)
		}
	})

	t.Run("degenerate range returns min", func(t *testing.T) {
		assert.Equal(t, 3.5, RandomFloatBetween(3.5, 3.5))
		assert.Equal(t, 3.5, RandomFloatBetween(3.5, 1.0))
	})
}

func TestRandomDurationBetween(t *testing.T) {
	t.Run("stays inside inclusive bounds", func(t *testing.T) {
		min := 100 * time.Millisecond
		max := 300 * time.Millisecond
		for i := 0; i < 200; i++ {
			d := RandomDurationBetween(min, max)
			assert.GreaterOrEqual(t, d, min)
			assert.LessOrEqual(t, d, max)
		}
	})

	t.Run("degenerate range returns min", func(t *testing.T) {
		assert.Equal(t, time.Second, RandomDurationBetween(time.Second, time.Second))
		assert.Equal(t, time.Second, RandomDurationBetween(time.Second, 0))
	})
}

func TestRandomSample(t *testing.T) {
	arr := []string{"a", "b", "c", "d", "e"}

	t.Run("returns n distinct elements", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			got := RandomSample(arr, 3)
			assert.Len(t, got, 3)

			seen := map[string]bool{}
			for _, v := range got {
				assert.Contains(t, arr, v)
				assert.False(t, seen[v], "element %q picked twice", v)
				seen[v] = true
			}
		}
	})

	t.Run("n larger than slice returns everything", func(t *testing.T) {
		got := RandomSample(arr, 10)
		assert.ElementsMatch(t, arr, got)
	})

	t.Run("does not modify the input", func(t *testing.T) {
		before := []int{1, 2, 3, 4}
		_ = RandomSample(before, 2)
		assert.Equal(t, []int{1, 2, 3, 4}, before)
	})

	t.Run("non-positive n returns nil", func(t *testing.T) {
		assert.Nil(t, RandomSample(arr, 0))
		assert.Nil(t, RandomSample(arr, -1))
	})
}
