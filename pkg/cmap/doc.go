// Package cmap provides a concurrent map keyed by strings.
//
// Keys are spread over a power-of-two number of shards using a seeded
// murmur3 hash. Each shard has its own RWMutex, so readers and writers of
// different shards never contend.
//
// Usage:
//
//	m := cmap.New[*Document]()
//	m.Set("01HX...", doc)
//	doc, ok := m.Get("01HX...")
//
// Range and RemoveIf lock shard by shard, so they see a consistent view of
// each shard but not of the whole map.
package cmap
