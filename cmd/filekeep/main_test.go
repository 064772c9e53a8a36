package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/filekeep/config"
	"github.com/sagarc03/filekeep/filesystem"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewLogHandler_ProdWritesJSONWithTS(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "prod", "info"))

	logger.Debug("hidden")
	logger.Info("hello", "file_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "abc", line["file_id"])
	assert.Contains(t, line, "ts")
	assert.NotContains(t, line, "time")
}

func TestNewLogHandler_DevIsText(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "dev", "debug"))

	logger.Debug("visible")

	assert.Contains(t, buf.String(), "visible")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
}

func TestOpenBackends_SQLiteAndFilesystem(t *testing.T) {
	dir := t.TempDir()

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)
	cfg.Database.DSN = filepath.Join(dir, "meta.db")
	cfg.Database.AutoMigrate = true
	cfg.Storage.Path = filepath.Join(dir, "blobs")

	b, err := openBackends(context.Background(), cfg)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.db.Ping(context.Background()))
	assert.IsType(t, &filesystem.Store{}, b.blobs)
	assert.DirExists(t, cfg.Storage.Path)
}

func TestOpenBackends_UnmigratedDatabaseFails(t *testing.T) {
	dir := t.TempDir()

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)
	cfg.Database.DSN = filepath.Join(dir, "meta.db")
	cfg.Storage.Path = filepath.Join(dir, "blobs")

	_, err = openBackends(context.Background(), cfg)
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestUploadDeadline(t *testing.T) {
	tests := []struct {
		staleAfter time.Duration
		want       time.Duration
	}{
		{time.Hour, 54 * time.Minute},
		{10 * time.Minute, 9 * time.Minute},
		{0, 54 * time.Minute},
	}

	for _, tt := range tests {
		got := uploadDeadline(tt.staleAfter)
		assert.Equal(t, tt.want, got, "stale_after=%s", tt.staleAfter)
		if tt.staleAfter > 0 {
			assert.Less(t, got, tt.staleAfter)
		}
	}
}

func TestNewServer_ReadTimeoutFollowsStaleness(t *testing.T) {
	t.Setenv("FILEKEEP_RECONCILE_STALE_AFTER", "2h")
	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	srv := newServer(cfg, http.NotFoundHandler())
	assert.Equal(t, ":5708", srv.Addr)
	assert.Equal(t, 108*time.Minute, srv.ReadTimeout)
	assert.Less(t, srv.ReadTimeout, cfg.Reconcile.StaleAfter)
	assert.Equal(t, cfg.Server.ReadHeaderTimeout, srv.ReadHeaderTimeout)
}
