package seal

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// KeySize is the AEAD key size in bytes.
const KeySize = 32

// Extension is appended to the names of sealed artifacts.
const Extension = ".sealed"

const (
	version  = 1
	saltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var magic = []byte("SDSEAL")

var (
	ErrEmptySecret  = errors.New("seal: empty secret")
	ErrNotSealed    = errors.New("seal: not a sealed envelope")
	ErrVersion      = errors.New("seal: unsupported envelope version")
	ErrAuthFailed   = errors.New("seal: authentication failed")
	headerFixedSize = len(magic) + 3
)

// Sealer seals and opens envelopes with one secret.
type Sealer struct {
	cipher CipherType
	key    []byte // nil in passphrase mode
	secret []byte
}

// New returns a Sealer for secret. A secret that decodes as 32 bytes of hex
// or standard base64 is used as the key directly; anything else is treated
// as a passphrase and stretched per envelope with Argon2id.
func New(secret string) (*Sealer, error) {
	return NewWithCipher(secret, preferredCipher())
}

// NewWithCipher is New with a fixed cipher for sealing. Open accepts either
// cipher regardless.
func NewWithCipher(secret string, t CipherType) (*Sealer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if _, err := newAEAD(t, make([]byte, KeySize)); err != nil {
		return nil, err
	}
	s := &Sealer{cipher: t}
	if key, ok := decodeKey(secret); ok {
		s.key = key
	} else {
		s.secret = []byte(secret)
	}
	return s, nil
}

func decodeKey(secret string) ([]byte, bool) {
	if len(secret) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(secret); err == nil {
			return key, true
		}
	}
	if key, err := base64.StdEncoding.DecodeString(secret); err == nil && len(key) == KeySize {
		return key, true
	}
	return nil, false
}

// Cipher returns the cipher used for sealing.
func (s *Sealer) Cipher() CipherType { return s.cipher }

// Passphrase reports whether keys are derived from a passphrase.
func (s *Sealer) Passphrase() bool { return s.key == nil }

func (s *Sealer) keyFor(salt []byte) []byte {
	if s.key != nil {
		return s.key
	}
	return argon2.IDKey(s.secret, salt, argonTime, argonMemory, argonThreads, KeySize)
}

// Seal encrypts plaintext into a new envelope.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var salt []byte
	if s.key == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("seal: salt: %w", err)
		}
	}

	header := make([]byte, 0, headerFixedSize+len(salt))
	header = append(header, magic...)
	header = append(header, version, byte(s.cipher), byte(len(salt)))
	header = append(header, salt...)

	aead, err := newAEAD(s.cipher, s.keyFor(salt))
	if err != nil {
		return nil, err
	}
	out, err := encrypt(aead, header, plaintext, header)
	if err != nil {
		return nil, fmt.Errorf("seal: encrypt: %w", err)
	}
	return out, nil
}

// Open authenticates and decrypts an envelope.
func (s *Sealer) Open(envelope []byte) ([]byte, error) {
	if !IsSealed(envelope) || len(envelope) < headerFixedSize {
		return nil, ErrNotSealed
	}
	if envelope[len(magic)] != version {
		return nil, ErrVersion
	}
	t := CipherType(envelope[len(magic)+1])
	saltLen := int(envelope[len(magic)+2])
	headerLen := headerFixedSize + saltLen
	if len(envelope) < headerLen {
		return nil, ErrNotSealed
	}
	header := envelope[:headerLen]
	salt := envelope[headerFixedSize:headerLen]

	if s.key != nil && saltLen != 0 {
		return nil, fmt.Errorf("%w: envelope was sealed with a passphrase", ErrAuthFailed)
	}
	if s.key == nil && saltLen == 0 {
		return nil, fmt.Errorf("%w: envelope was sealed with a raw key", ErrAuthFailed)
	}

	aead, err := newAEAD(t, s.keyFor(salt))
	if err != nil {
		return nil, err
	}
	plain, err := decrypt(aead, envelope[headerLen:], header)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plain, nil
}

// IsSealed reports whether data starts with the envelope magic.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// GenerateKey returns a random key encoded as hex, suitable for New.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
