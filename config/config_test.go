package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/filekeep/config"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 5708, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "filekeep.db", cfg.Database.DSN)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "filesystem", cfg.Storage.Backend)
	assert.Equal(t, "./data", cfg.Storage.Path)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
	assert.Equal(t, 30*time.Second, cfg.Auth.Token.Leeway)
	assert.Equal(t, time.Hour, cfg.Auth.Token.RefreshInterval)
	assert.Equal(t, int64(0), cfg.Upload.MaxSize)
	assert.Equal(t, 0.0, cfg.Upload.SizeTolerance)
	assert.Equal(t, int64(8<<20), cfg.Upload.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Upload.CleanupTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Upload.PresignTTL)
	assert.True(t, cfg.Reconcile.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, time.Hour, cfg.Reconcile.StaleAfter)
	assert.Equal(t, 100, cfg.Reconcile.PageSize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
env: prod
server:
  port: 8080
database:
  type: postgres
  dsn: postgres://localhost/test
  auto_migrate: true
storage:
  backend: s3
  s3:
    bucket: files
    region: eu-west-1
    endpoint: http://localhost:9000
    use_path_style: true
auth:
  issuer: https://idp.example.com
  audience: filekeep
  leeway: 1m
  jwks_url: https://idp.example.com/.well-known/jwks.json
upload:
  max_size: 1073741824
  size_tolerance: 0.05
  presign_ttl: 5m
reconcile:
  interval: 30s
  stale_after: 2h
  list_blobs: true
log:
  level: debug
`)

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "files", cfg.Storage.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Storage.S3.Region)
	assert.Equal(t, "http://localhost:9000", cfg.Storage.S3.Endpoint)
	assert.True(t, cfg.Storage.S3.UsePathStyle)
	assert.Equal(t, "https://idp.example.com", cfg.Auth.Token.Issuer)
	assert.Equal(t, "filekeep", cfg.Auth.Token.Audience)
	assert.Equal(t, time.Minute, cfg.Auth.Token.Leeway)
	assert.Equal(t, "https://idp.example.com/.well-known/jwks.json", cfg.Auth.Token.JWKSURL)
	assert.Equal(t, int64(1<<30), cfg.Upload.MaxSize)
	assert.InDelta(t, 0.05, cfg.Upload.SizeTolerance, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.Upload.PresignTTL)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, 2*time.Hour, cfg.Reconcile.StaleAfter)
	assert.True(t, cfg.Reconcile.ListBlobs)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFileMerge(t *testing.T) {
	base := writeConfig(t, "base.yaml", `
server:
  port: 5708
database:
  type: sqlite
  dsn: filekeep.db
auth:
  audience: filekeep
log:
  level: info
`)
	override := writeConfig(t, "override.yaml", `
server:
  port: 9000
auth:
  issuer: https://idp.example.com
`)

	cfg, err := config.Load([]string{base, override}, nil)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://idp.example.com", cfg.Auth.Token.Issuer)

	assert.Equal(t, "filekeep", cfg.Auth.Token.Audience)
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid port", "server:\n  port: 99999\n"},
		{"invalid env", "env: staging\n"},
		{"invalid database type", "database:\n  type: mysql\n"},
		{"invalid backend", "storage:\n  backend: ftp\n"},
		{"filesystem without path", "storage:\n  backend: filesystem\n  path: \"\"\n"},
		{"s3 without bucket", "storage:\n  backend: s3\n"},
		{"tolerance above one", "upload:\n  size_tolerance: 1.5\n"},
		{"negative max size", "upload:\n  max_size: -1\n"},
		{"page size too large", "reconcile:\n  page_size: 5000\n"},
		{"invalid log level", "log:\n  level: verbose\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.content)

			_, err := config.Load([]string{path}, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validate config")
		})
	}
}

func TestLoad_S3WithoutPath(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
storage:
  backend: s3
  path: ""
  s3:
    bucket: files
`)

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)
	assert.Equal(t, "files", cfg.Storage.S3.Bucket)
}

func TestLoad_WithInlineKeys(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
auth:
  keys:
    inline:
      - kid: "2026-01"
        secret: secret-one
      - kid: "2026-07"
        secret: secret-two
    file: /etc/filekeep/keys.json
`)

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)

	require.Len(t, cfg.Auth.Keys.Inline, 2)
	assert.Equal(t, "2026-01", cfg.Auth.Keys.Inline[0].KeyID)
	assert.Equal(t, "secret-one", cfg.Auth.Keys.Inline[0].Secret)
	assert.Equal(t, "2026-07", cfg.Auth.Keys.Inline[1].KeyID)
	assert.Equal(t, "/etc/filekeep/keys.json", cfg.Auth.Keys.File)
}

func TestLoad_WithCORS(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
cors:
  enabled: true
  allowed_origins:
    - https://example.com
    - https://app.example.com
  allowed_methods:
    - GET
    - POST
  allowed_headers:
    - Authorization
  exposed_headers:
    - ETag
  allow_credentials: true
  max_age: 600
`)

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)

	assert.True(t, cfg.CORS.Enabled)
	assert.Equal(t, []string{"https://example.com", "https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"GET", "POST"}, cfg.CORS.AllowedMethods)
	assert.Equal(t, []string{"Authorization"}, cfg.CORS.AllowedHeaders)
	assert.Equal(t, []string{"ETag"}, cfg.CORS.ExposedHeaders)
	assert.True(t, cfg.CORS.AllowCredentials)
	assert.Equal(t, 600, cfg.CORS.MaxAge)
}

func TestLoad_CORSFromEnv(t *testing.T) {
	t.Setenv("FILEKEEP_CORS_ENABLED", "true")
	t.Setenv("FILEKEEP_CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.True(t, cfg.CORS.Enabled)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Contains(t, cfg.CORS.ExposedHeaders, "ETag")
	assert.Equal(t, 300, cfg.CORS.MaxAge)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("FILEKEEP_SERVER_PORT", "9090")
	t.Setenv("FILEKEEP_DATABASE_TYPE", "postgres")
	t.Setenv("FILEKEEP_RECONCILE_STALE_AFTER", "90m")
	t.Setenv("FILEKEEP_AUTH_AUDIENCE", "files-api")

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 90*time.Minute, cfg.Reconcile.StaleAfter)
	assert.Equal(t, "files-api", cfg.Auth.Token.Audience)
}

func TestLoad_Flags(t *testing.T) {
	t.Setenv("FILEKEEP_SERVER_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 5708, "")
	flags.String("db-dsn", "", "")
	flags.String("storage-path", "", "")
	require.NoError(t, flags.Parse([]string{"--port=7000", "--db-dsn=other.db"}))

	cfg, err := config.Load(nil, flags)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "other.db", cfg.Database.DSN)
	assert.Equal(t, "./data", cfg.Storage.Path)
}

func TestLoad_NamedFileMustExist(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	_, err := config.Load([]string{missing}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file "+missing)
}
