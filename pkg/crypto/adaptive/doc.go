// Package adaptive provides at-rest encryption for embedded session storage.
//
// Ciphers are AEADs: AES-GCM when the CPU accelerates AES, ChaCha20-Poly1305
// otherwise. The nonce is prepended to every sealed record, and callers bind
// the record key as additional data so a value cannot be moved between keys.
//
// Usage:
//
//	key, err := adaptive.DeriveKey([]byte(passphrase), []byte("sessiondb/badger"))
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(value, recordKey)
//	value, err := c.Decrypt(sealed, recordKey)
package adaptive
