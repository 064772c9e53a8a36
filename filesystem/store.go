// Package filesystem provides a local directory blob store for filekeep.
// It supports atomic writes using temp files, SHA256 digests and ranged
// reads, sandboxed to one root directory.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sagarc03/filekeep"
)

const tmpPrefix = ".t"

// Store provides file system blob storage operations.
type Store struct {
	root *os.Root
}

// NewFileStorage creates a new Store with the given root directory.
// The root provides sandboxed file operations preventing path traversal.
func NewFileStorage(root *os.Root) *Store {
	return &Store{root: root}
}

// Get opens the object for reading. No bytes are read until the caller reads.
// Returns filekeep.ErrNotFound if the object does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.open(key)
	if err != nil {
		return nil, err
	}

	return f, nil
}

// GetRange opens length bytes of the object starting at offset.
// length < 0 reads to the end.
func (s *Store) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if offset < 0 {
		return nil, fmt.Errorf("get range: %w: negative offset", filekeep.ErrInvalidInput)
	}

	f, err := s.open(key)
	if err != nil {
		return nil, err
	}

	if length < 0 {
		info, statErr := f.Stat()
		if statErr != nil {
			_ = f.Close()
			return nil, fmt.Errorf("get range: %w: %w", filekeep.ErrBlobRead, statErr)
		}
		length = max(info.Size()-offset, 0)
	}

	return &sectionReadCloser{SectionReader: io.NewSectionReader(f, offset, length), f: f}, nil
}

func (s *Store) open(key string) (*os.File, error) {
	if !filekeep.IsValidBlobKey(key) {
		return nil, fmt.Errorf("open %q: %w", key, filekeep.ErrInvalidInput)
	}

	f, err := s.root.Open(filepath.FromSlash(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, filekeep.ErrNotFound
		}
		return nil, fmt.Errorf("open %q: %w: %w", key, filekeep.ErrBlobRead, err)
	}

	return f, nil
}

type sectionReadCloser struct {
	*io.SectionReader
	f *os.File
}

func (r *sectionReadCloser) Close() error {
	return r.f.Close()
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Put atomically writes content to key using a temp file, fsync and rename.
// It creates intermediate directories as needed and returns the number of
// bytes written and their SHA256 digest. Errors wrap filekeep.ErrBlobWrite
// and keep the reader's error in the chain.
func (s *Store) Put(ctx context.Context, key string, content io.Reader) (filekeep.PutResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: %w", key, filekeep.ErrBlobWrite, ctxErr)
	}

	if !filekeep.IsValidBlobKey(key) {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: %w", key, filekeep.ErrBlobWrite, filekeep.ErrInvalidInput)
	}

	tmpFile := tmpFileName()
	t, createErr := s.root.Create(tmpFile)
	if createErr != nil {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: could not open temp file: %w", key, filekeep.ErrBlobWrite, createErr)
	}

	success := false
	defer func() {
		if closeErr := t.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			slog.Warn("failed to close tmp file", "err", closeErr)
		}
		if !success {
			if rmErr := s.root.Remove(tmpFile); rmErr != nil {
				slog.Warn("failed to remove tmp file", "err", rmErr)
			}
		}
	}()

	h := sha256.New()
	w := io.MultiWriter(h, t)

	size, err := io.Copy(w, &ctxReader{ctx: ctx, r: content})
	if err != nil {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: could not copy contents: %w", key, filekeep.ErrBlobWrite, err)
	}

	if err = t.Sync(); err != nil {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: could not sync written file: %w", key, filekeep.ErrBlobWrite, err)
	}

	if err = t.Close(); err != nil {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: could not close written file: %w", key, filekeep.ErrBlobWrite, err)
	}

	dest := filepath.FromSlash(key)
	if destDir := filepath.Dir(dest); destDir != "." {
		if err := s.root.MkdirAll(destDir, 0o755); err != nil {
			return filekeep.PutResult{}, fmt.Errorf("put %q: %w: could not create intermediate directories: %w", key, filekeep.ErrBlobWrite, err)
		}
	}

	if renameErr := s.root.Rename(tmpFile, dest); renameErr != nil {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: failed to rename file: %w", key, filekeep.ErrBlobWrite, renameErr)
	}

	success = true

	return filekeep.PutResult{Size: size, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

// Delete removes the object. A missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !filekeep.IsValidBlobKey(key) {
		return fmt.Errorf("delete %q: %w", key, filekeep.ErrInvalidInput)
	}

	err := s.root.Remove(filepath.FromSlash(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not delete file: %w", err)
	}
	return nil
}

// Exists reports whether an object is stored under key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if !filekeep.IsValidBlobKey(key) {
		return false, fmt.Errorf("exists %q: %w", key, filekeep.ErrInvalidInput)
	}

	info, err := s.root.Stat(filepath.FromSlash(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", key, err)
	}

	return info.Mode().IsRegular(), nil
}

// ListKeys walks the root directory and calls fn with the key of every
// stored object. Temp files of in-flight writes are skipped.
func (s *Store) ListKeys(ctx context.Context, fn func(key string) error) error {
	err := fs.WalkDir(s.root.FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(path.Base(p), tmpPrefix) {
			return nil
		}
		return fn(p)
	})
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	return nil
}

func tmpFileName() string {
	return fmt.Sprintf("%s%s", tmpPrefix, uuid.New().String())
}
