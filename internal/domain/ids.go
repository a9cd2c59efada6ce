package domain

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InternalIDLength is the length of a storage-internal record id.
const InternalIDLength = 24

// NewInternalID returns a 24-character lowercase hex id made of a 4-byte
// big-endian unix timestamp followed by 8 random bytes.
func NewInternalID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:])
	return hex.EncodeToString(b[:])
}

// IsInternalID reports whether s has the shape of an internal id. It says
// nothing about whether a record with that id exists.
func IsInternalID(s string) bool {
	if len(s) != InternalIDLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// NormalizeInternalID lower-cases an id so that hex ids typed in upper case
// still match.
func NormalizeInternalID(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// NewToken returns a new public token (UUID v4).
func NewToken() string { return uuid.NewString() }

// NormalizeEmail trims and lower-cases an email address. Every email is
// stored and compared in this form.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
