package filekeep

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNameLength is the longest display name accepted, in bytes.
const MaxNameLength = 255

// IsValidName validates a display name supplied by a client.
// It checks that the name:
//   - is not empty or only whitespace
//   - is at most MaxNameLength bytes
//   - is valid UTF-8
//   - does not contain null bytes, control characters (< 0x20) or DEL (0x7f)
//   - does not contain path separators
func IsValidName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}

	if len(name) > MaxNameLength {
		return false
	}

	if !utf8.ValidString(name) {
		return false
	}

	if strings.ContainsAny(name, `/\`) {
		return false
	}

	for _, r := range name {
		if r < 0x20 || r == 0x7f || (unicode.IsSpace(r) && r != ' ') {
			return false
		}
	}

	return true
}

// NewBlobKey returns a fresh blob key for owner. Keys look like
// "<owner-hash>/<yyyymmdd>/<uuid>" so that objects of one owner share a
// prefix without leaking the owner id into the blob namespace.
func NewBlobKey(ownerID string, now time.Time) string {
	sum := sha256.Sum256([]byte(ownerID))
	return hex.EncodeToString(sum[:8]) + "/" + now.UTC().Format("20060102") + "/" + uuid.NewString()
}

// IsValidBlobKey checks that a key is a relative slash separated path with no
// empty, "." or ".." segments.
func IsValidBlobKey(key string) bool {
	if key == "" || key[0] == '/' || strings.HasSuffix(key, "/") {
		return false
	}

	if !utf8.ValidString(key) || strings.ContainsAny(key, `\?#`) {
		return false
	}

	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}

	for _, r := range key {
		if r < 0x20 || r == 0x7f || unicode.IsSpace(r) {
			return false
		}
	}

	return true
}
