package filesystem_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/filesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*filesystem.Store, string) {
	t.Helper()
	tempDir := t.TempDir()
	root, err := os.OpenRoot(tempDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })
	return filesystem.NewFileStorage(root), tempDir
}

func writeFile(t *testing.T, dir, key string, content []byte) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))
}

func TestStore_Get_Success(t *testing.T) {
	store, dir := newStore(t)
	content := []byte("test content")
	writeFile(t, dir, "owner/20240101/obj", content)

	result, err := store.Get(context.Background(), "owner/20240101/obj")
	require.NoError(t, err)

	readContent, err := io.ReadAll(result)
	assert.NoError(t, err)
	assert.Equal(t, content, readContent)
	assert.NoError(t, result.Close())
}

func TestStore_Get_ContextCanceled(t *testing.T) {
	store, _ := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := store.Get(ctx, "a/b")
	assert.Nil(t, result)
	assert.Equal(t, context.Canceled, err)
}

func TestStore_Get_NotFound(t *testing.T) {
	store, _ := newStore(t)

	result, err := store.Get(context.Background(), "a/nonexistent")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, filekeep.ErrNotFound)
}

func TestStore_Get_InvalidKey(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Get(context.Background(), "../escape")
	assert.ErrorIs(t, err, filekeep.ErrInvalidInput)
}

func TestStore_GetRange(t *testing.T) {
	store, dir := newStore(t)
	writeFile(t, dir, "k/range", []byte("0123456789"))
	ctx := context.Background()

	tests := []struct {
		name   string
		offset int64
		length int64
		want   string
	}{
		{"prefix", 0, 4, "0123"},
		{"middle", 3, 3, "345"},
		{"to end", 6, -1, "6789"},
		{"past end is clipped", 8, 10, "89"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := store.GetRange(ctx, "k/range", tt.offset, tt.length)
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetRange(ctx, "k/missing", 0, 1)
		assert.ErrorIs(t, err, filekeep.ErrNotFound)
	})
}

func TestStore_Put_Success(t *testing.T) {
	store, dir := newStore(t)

	result, err := store.Put(context.Background(), "ab/20240101/obj", bytes.NewReader([]byte("test content")))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("test content"))
	assert.Equal(t, int64(12), result.Size)
	assert.Equal(t, hex.EncodeToString(sum[:]), result.Digest)

	data, err := os.ReadFile(filepath.Join(dir, "ab", "20240101", "obj"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("test content"), data)
}

func TestStore_Put_Empty(t *testing.T) {
	store, _ := newStore(t)

	result, err := store.Put(context.Background(), "a/empty", bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Size)

	exists, err := store.Exists(context.Background(), "a/empty")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_Put_ContextCanceledBefore(t *testing.T) {
	store, _ := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := store.Put(ctx, "a/b", bytes.NewReader([]byte("test")))
	assert.ErrorIs(t, err, filekeep.ErrBlobWrite)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, filekeep.PutResult{}, result)
}

func TestStore_Put_ContextCanceledDuringCopy(t *testing.T) {
	store, dir := newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	reader := &slowReader{data: []byte("test content"), cancel: cancel}

	result, err := store.Put(ctx, "a/b", reader)
	assert.ErrorIs(t, err, filekeep.ErrBlobWrite)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, filekeep.PutResult{}, result)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be removed")
}

func TestStore_Put_ReaderError(t *testing.T) {
	store, dir := newStore(t)
	boom := errors.New("connection reset")

	_, err := store.Put(context.Background(), "a/b", io.MultiReader(
		strings.NewReader("partial"),
		&failingReader{err: boom},
	))
	assert.ErrorIs(t, err, filekeep.ErrBlobWrite)
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(filepath.Join(dir, "a", "b"))
	assert.True(t, os.IsNotExist(statErr), "a failed put must not leave the object")
}

type slowReader struct {
	data   []byte
	pos    int
	cancel context.CancelFunc
}

func (r *slowReader) Read(p []byte) (n int, err error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	r.cancel()
	n = copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestStore_Delete(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()
	writeFile(t, dir, "a/b", []byte("content"))

	t.Run("removes object", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "a/b"))
		_, err := os.Stat(filepath.Join(dir, "a", "b"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("absent key twice is not an error", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "a/b"))
		assert.NoError(t, store.Delete(ctx, "a/b"))
	})

	t.Run("context canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Equal(t, context.Canceled, store.Delete(cctx, "a/b"))
	})
}

func TestStore_Exists(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()
	writeFile(t, dir, "a/present", []byte("x"))

	ok, err := store.Exists(ctx, "a/present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "a/absent")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "directories are not objects")
}

func TestStore_ListKeys(t *testing.T) {
	store, dir := newStore(t)
	ctx := context.Background()

	writeFile(t, dir, "a/20240101/one", []byte("1"))
	writeFile(t, dir, "a/20240102/two", []byte("2"))
	writeFile(t, dir, "b/20240101/three", []byte("3"))
	writeFile(t, dir, ".tin-flight", []byte("tmp"))

	var keys []string
	err := store.ListKeys(ctx, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)

	sort.Strings(keys)
	assert.Equal(t, []string{"a/20240101/one", "a/20240102/two", "b/20240101/three"}, keys)

	t.Run("callback error stops the walk", func(t *testing.T) {
		stop := errors.New("stop")
		calls := 0
		err := store.ListKeys(ctx, func(string) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})
}

func TestStore_Integration_PutGetDelete(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	key := filekeep.NewBlobKey("alice", time.Now())

	content := bytes.Repeat([]byte("abc"), 100_000)
	result, err := store.Put(ctx, key, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), result.Size)

	r, err := store.Get(ctx, key)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, content, got)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, filekeep.ErrNotFound)
}

func TestStore_ConcurrentPuts(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Put(ctx, fmt.Sprintf("c/%02d", i), strings.NewReader(fmt.Sprintf("content %d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	count := 0
	require.NoError(t, store.ListKeys(ctx, func(string) error { count++; return nil }))
	assert.Equal(t, 20, count)
}
