package filekeep

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// digestReader hashes and counts every byte read through it. When limit is
// positive, reading more than limit bytes fails with ErrTooLarge.
type digestReader struct {
	r        io.Reader
	h        hash.Hash
	n        int64
	limit    int64
	exceeded bool
}

func newDigestReader(r io.Reader, limit int64) *digestReader {
	return &digestReader{r: r, h: sha256.New(), limit: limit}
}

func (d *digestReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.h.Write(p[:n])
		d.n += int64(n)
		if d.limit > 0 && d.n > d.limit {
			d.exceeded = true
			return n, fmt.Errorf("read upload: %w: more than %d bytes", ErrTooLarge, d.limit)
		}
	}
	return n, err
}

// Size is the number of bytes read so far.
func (d *digestReader) Size() int64 {
	return d.n
}

// Exceeded reports whether the limit was crossed.
func (d *digestReader) Exceeded() bool {
	return d.exceeded
}

// Digest is the lowercase hex SHA-256 of the bytes read so far.
func (d *digestReader) Digest() string {
	return hex.EncodeToString(d.h.Sum(nil))
}
