package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intLess(a, b int) bool { return a < b }

func TestSetLeavesOriginalUntouched(t *testing.T) {
	m0 := New[int, string](intLess)
	m1 := m0.Set(2, "two")
	m2 := m1.Set(1, "one")
	m3 := m2.Set(2, "TWO")

	assert.Equal(t, 0, m0.Len())
	assert.Equal(t, 1, m1.Len())
	assert.Equal(t, 2, m2.Len())

	v, ok := m2.Get(2)
	require.True(t, ok)
	assert.Equal(t, "two", v)

	v, ok = m3.Get(2)
	require.True(t, ok)
	assert.Equal(t, "TWO", v)
}

func TestDeleteLeavesOriginalUntouched(t *testing.T) {
	m := New[int, string](intLess).Set(1, "a").Set(2, "b").Set(3, "c")
	smaller := m.Delete(2)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 2, smaller.Len())
	_, ok := smaller.Get(2)
	assert.False(t, ok)

	// Deleting an absent key returns the receiver unchanged.
	same := smaller.Delete(99)
	assert.Equal(t, smaller, same)
}

func TestAscendVisitsKeysInOrderRegardlessOfInsertion(t *testing.T) {
	m := New[int, string](intLess).Set(5, "e").Set(1, "a").Set(3, "c").Set(2, "b").Set(4, "d")
	var keys []int
	m.Ascend(func(k int, _ string) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []int{1, 2, 3, 4, 5}, keys)
}

func TestAscendStopsEarly(t *testing.T) {
	m := New[int, string](intLess).Set(1, "a").Set(2, "b").Set(3, "c")
	var keys []int
	m.Ascend(func(k int, _ string) bool {
		keys = append(keys, k)
		return len(keys) < 2
	})
	assert.Equal(t, []int{1, 2}, keys)
}

func TestAscendRangeIsHalfOpen(t *testing.T) {
	m := New[int, string](intLess)
	for i := 0; i < 10; i++ {
		m = m.Set(i, "")
	}
	from, to := 3, 7
	var keys []int
	m.AscendRange(&from, &to, func(k int, _ string) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []int{3, 4, 5, 6}, keys)
}

func TestDescendRangeWalksBackward(t *testing.T) {
	m := New[int, string](intLess)
	for i := 0; i < 10; i++ {
		m = m.Set(i, "")
	}
	from, to := 3, 7
	var keys []int
	m.DescendRange(&from, &to, func(k int, _ string) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []int{6, 5, 4, 3}, keys)
}

func TestAscendRangeStartsAtInsertionPointForAbsentBound(t *testing.T) {
	m := New[int, string](intLess).Set(10, "").Set(20, "").Set(30, "")
	from := 15
	var keys []int
	m.AscendRange(&from, nil, func(k int, _ string) bool {
		keys = append(keys, k)
		return true
	})
	assert.Equal(t, []int{20, 30}, keys)
}
