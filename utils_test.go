package filekeep_test

import (
	"strings"
	"testing"
	"time"

	"github.com/sagarc03/filekeep"
	"github.com/stretchr/testify/assert"
)

func TestIsValidName(t *testing.T) {
	invalidUTF8 := string([]byte{'a', 0xff, 'b'})

	tt := []struct {
		Name  string
		Input string
		Want  bool
	}{
		{Name: "empty", Input: "", Want: false},
		{Name: "only spaces", Input: "   ", Want: false},
		{Name: "slash", Input: "a/b.txt", Want: false},
		{Name: "backslash", Input: `a\b.txt`, Want: false},
		{Name: "newline", Input: "a\nb", Want: false},
		{Name: "tab", Input: "a\tb", Want: false},
		{Name: "NUL", Input: "a\x00b", Want: false},
		{Name: "DEL", Input: "a\x7fb", Want: false},
		{Name: "invalid utf8", Input: invalidUTF8, Want: false},
		{Name: "too long", Input: strings.Repeat("a", filekeep.MaxNameLength+1), Want: false},

		{Name: "simple", Input: "report.pdf", Want: true},
		{Name: "inner spaces", Input: "annual report 2024.pdf", Want: true},
		{Name: "unicode", Input: "отчёт 世界.txt", Want: true},
		{Name: "max length", Input: strings.Repeat("a", filekeep.MaxNameLength), Want: true},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Want, filekeep.IsValidName(tc.Input), "name %q", tc.Input)
		})
	}
}

func TestNewBlobKey(t *testing.T) {
	now := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

	t.Run("shape", func(t *testing.T) {
		key := filekeep.NewBlobKey("alice", now)
		parts := strings.Split(key, "/")
		assert.Len(t, parts, 3)
		assert.Len(t, parts[0], 16)
		assert.Equal(t, "20240309", parts[1])
		assert.True(t, filekeep.IsValidBlobKey(key))
	})

	t.Run("same owner shares prefix", func(t *testing.T) {
		a := filekeep.NewBlobKey("alice", now)
		b := filekeep.NewBlobKey("alice", now)
		assert.NotEqual(t, a, b)
		assert.Equal(t, strings.Split(a, "/")[0], strings.Split(b, "/")[0])
	})

	t.Run("owner id is not leaked", func(t *testing.T) {
		key := filekeep.NewBlobKey("alice@example.com", now)
		assert.NotContains(t, key, "alice")
	})
}

func TestIsValidBlobKey(t *testing.T) {
	tt := []struct {
		Name string
		Key  string
		Want bool
	}{
		{Name: "empty", Key: "", Want: false},
		{Name: "absolute", Key: "/a/b", Want: false},
		{Name: "trailing slash", Key: "a/b/", Want: false},
		{Name: "dot dot segment", Key: "a/../b", Want: false},
		{Name: "dot segment", Key: "a/./b", Want: false},
		{Name: "empty segment", Key: "a//b", Want: false},
		{Name: "space", Key: "a/b c", Want: false},
		{Name: "question mark", Key: "a/b?c", Want: false},

		{Name: "generated shape", Key: "0123456789abcdef/20240309/4b8f4b1e-0c8b-4c55-9f3f-4f0c2f3a7d11", Want: true},
		{Name: "dots inside segment", Key: "a/b..c", Want: true},
	}

	for _, tc := range tt {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, tc.Want, filekeep.IsValidBlobKey(tc.Key))
		})
	}
}
