// Package storage defines the document collection contract that backs a
// session store, and the embedded Badger implementation of it.
//
// A Collection holds session documents shaped {_id, lastAccess, ...fields}.
// Concrete backends live next to this package:
//
//   - storage (this package): Badger, embedded and optionally encrypted
//   - storage/mongo: MongoDB
//   - storage/redis: Redis, one JSON value per document plus a sorted set
//   - storage/memory: volatile, sharded in-process map
//
// Every backend passes the conformance suite in storage/storagetest.
package storage
