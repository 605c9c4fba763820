package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"
)

// Size is the fingerprint length in bytes.
const Size = sha256.Size

// Separator joins the canonical field values.
const Separator = "|"

// DefaultKeys are the fields hashed when no explicit key set is configured.
var DefaultKeys = []string{"name", "price"}

// ErrInvalid is returned when a hex fingerprint cannot be parsed.
var ErrInvalid = errors.New("fingerprint: invalid hex fingerprint")

// Fingerprint is a SHA-256 content digest.
type Fingerprint [Size]byte

// Zero is the zero-value fingerprint. It is never produced by Hash.
var Zero Fingerprint

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero reports whether f is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Zero
}

// Equal compares two fingerprints in constant time.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return subtle.ConstantTimeCompare(f[:], other[:]) == 1
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Parse decodes a 64-character hex fingerprint. Surrounding whitespace and
// upper-case digits are accepted.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(Size) {
		return f, ErrInvalid
	}
	if _, err := hex.Decode(f[:], []byte(strings.ToLower(s))); err != nil {
		return f, ErrInvalid
	}
	return f, nil
}

// Normalize trims surrounding whitespace and replaces invalid UTF-8 sequences
// with U+FFFD.
func Normalize(value string) string {
	value = strings.TrimSpace(value)
	if !utf8.ValidString(value) {
		value = strings.ToValidUTF8(value, "�")
	}
	return value
}

// Canonical builds the string that Hash digests.
func Canonical(fields map[string]string, keys []string) string {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(Separator)
		}
		// Absent keys read as "".
		sb.WriteString(Normalize(fields[k]))
	}
	return sb.String()
}

// Hash computes the fingerprint of fields over keys, in key order.
func Hash(fields map[string]string, keys []string) Fingerprint {
	return sha256.Sum256([]byte(Canonical(fields, keys)))
}

// Verify reports whether fields hash to expected.
func Verify(fields map[string]string, keys []string, expected Fingerprint) bool {
	return Hash(fields, keys).Equal(expected)
}
