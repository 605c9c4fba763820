// Package seal encrypts export artifacts with an AEAD before they leave the
// host.
//
// The cipher is chosen per host: AES-256-GCM where the CPU accelerates AES,
// ChaCha20-Poly1305 elsewhere. The choice is recorded in the envelope so either
// side can open the other's files.
//
// Envelope layout:
//
//	[magic:6 "SDSEAL"][version:1][cipher:1][saltLen:1][salt:saltLen]
//	[nonce][ciphertext+tag]
//
// The header bytes are authenticated as additional data. A salt is present
// only when the key was derived from a passphrase (Argon2id).
//
// Usage:
//
//	s, err := seal.New(secret)
//	sealed, err := s.Seal(plaintext)
//	plain, err := s.Open(sealed)
package seal
