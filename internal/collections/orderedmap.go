// Package collections holds small, dependency-free persistent data
// structures shared across the kernel and the projection store. Both
// need an ordered, value-semantic map, and neither can afford to guess
// at an unfamiliar generics API it cannot compile-check: this package
// is the single, carefully-reasoned implementation both build on.
package collections

// OrderedMap is a persistent, copy-on-write ordered map: Set and
// Delete never mutate the receiver, they return a new map that shares
// no backing array with the original. Lookups are O(log n) by binary
// search; Set/Delete are O(n) since every mutation copies the entry
// slice, which is the right tradeoff for catalog- and row-store-sized
// collections, where simplicity matters more than asymptotics.
type OrderedMap[K comparable, V any] struct {
	less    func(a, b K) bool
	entries []orderedEntry[K, V]
}

type orderedEntry[K comparable, V any] struct {
	key K
	val V
}

// New returns an empty map ordered by less.
func New[K comparable, V any](less func(a, b K) bool) *OrderedMap[K, V] {
	return &OrderedMap[K, V]{less: less}
}

// search returns the index of key if present, and the insertion index
// (where key would go to keep entries sorted) otherwise.
func (m *OrderedMap[K, V]) search(key K) (int, bool) {
	lo, hi := 0, len(m.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case m.entries[mid].key == key:
			return mid, true
		case m.less(m.entries[mid].key, key):
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// Get returns the value stored at key, if any.
func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	idx, ok := m.search(key)
	if !ok {
		var zero V
		return zero, false
	}
	return m.entries[idx].val, true
}

// Set returns a new map with key bound to val, leaving m untouched.
func (m *OrderedMap[K, V]) Set(key K, val V) *OrderedMap[K, V] {
	idx, ok := m.search(key)
	if ok {
		next := make([]orderedEntry[K, V], len(m.entries))
		copy(next, m.entries)
		next[idx] = orderedEntry[K, V]{key: key, val: val}
		return &OrderedMap[K, V]{less: m.less, entries: next}
	}
	next := make([]orderedEntry[K, V], 0, len(m.entries)+1)
	next = append(next, m.entries[:idx]...)
	next = append(next, orderedEntry[K, V]{key: key, val: val})
	next = append(next, m.entries[idx:]...)
	return &OrderedMap[K, V]{less: m.less, entries: next}
}

// Delete returns a new map with key absent, leaving m untouched. It
// returns m itself (no copy) when key was never present.
func (m *OrderedMap[K, V]) Delete(key K) *OrderedMap[K, V] {
	idx, ok := m.search(key)
	if !ok {
		return m
	}
	next := make([]orderedEntry[K, V], 0, len(m.entries)-1)
	next = append(next, m.entries[:idx]...)
	next = append(next, m.entries[idx+1:]...)
	return &OrderedMap[K, V]{less: m.less, entries: next}
}

// Len returns the number of entries.
func (m *OrderedMap[K, V]) Len() int {
	return len(m.entries)
}

// Ascend calls fn for every entry in ascending key order, stopping
// early if fn returns false.
func (m *OrderedMap[K, V]) Ascend(fn func(key K, val V) bool) {
	for _, e := range m.entries {
		if !fn(e.key, e.val) {
			return
		}
	}
}

// AscendRange calls fn for every entry with from <= key < to (nil
// bound means unbounded on that side), in ascending order.
func (m *OrderedMap[K, V]) AscendRange(from, to *K, fn func(key K, val V) bool) {
	start := 0
	if from != nil {
		start, _ = m.search(*from)
	}
	for i := start; i < len(m.entries); i++ {
		e := m.entries[i]
		if to != nil && !m.less(e.key, *to) {
			return
		}
		if !fn(e.key, e.val) {
			return
		}
	}
}

// DescendRange calls fn for every entry with from <= key < to, in
// descending order (nil bound means unbounded on that side).
func (m *OrderedMap[K, V]) DescendRange(from, to *K, fn func(key K, val V) bool) {
	end := len(m.entries) - 1
	if to != nil {
		idx, _ := m.search(*to)
		end = idx - 1
	}
	for i := end; i >= 0; i-- {
		e := m.entries[i]
		if from != nil && m.less(e.key, *from) {
			return
		}
		if !fn(e.key, e.val) {
			return
		}
	}
}
