package cmap

// Range iterates over all key-value pairs.
//
// The callback returns false to stop iteration. It must not call back into
// the map.
func (m *Map[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Keys returns all keys.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	m.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// RemoveIf deletes every entry for which pred returns true and reports how
// many were removed. Each shard is write-locked while it is scanned.
func (m *Map[V]) RemoveIf(pred func(key string, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if pred(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// CountIf reports how many entries satisfy pred.
func (m *Map[V]) CountIf(pred func(key string, value V) bool) int {
	n := 0
	m.Range(func(k string, v V) bool {
		if pred(k, v) {
			n++
		}
		return true
	})
	return n
}
