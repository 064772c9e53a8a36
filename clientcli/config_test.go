package clientcli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/filekeep/clientcli"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := &clientcli.Config{}
	withDefaults := cfg.WithDefaults()

	assert.Equal(t, clientcli.DefaultEndpoint, withDefaults.Endpoint)
	assert.Empty(t, cfg.Endpoint, "original must not be mutated")
}

func TestConfig_ValidateWithAuth(t *testing.T) {
	assert.NoError(t, (&clientcli.Config{Token: "tok"}).ValidateWithAuth())
	assert.NoError(t, (&clientcli.Config{Endpoint: "https://files.example.com", Token: "tok"}).ValidateWithAuth())
	assert.ErrorIs(t, (&clientcli.Config{}).ValidateWithAuth(), clientcli.ErrTokenRequired)

	for _, endpoint := range []string{"files.example.com", "ftp://files.example.com", "http://"} {
		err := (&clientcli.Config{Endpoint: endpoint, Token: "tok"}).ValidateWithAuth()
		assert.ErrorIs(t, err, clientcli.ErrInvalidEndpoint, endpoint)
	}
}

func TestConfigFromProfile(t *testing.T) {
	t.Run("inline token", func(t *testing.T) {
		cfg, err := clientcli.ConfigFromProfile(&clientcli.Profile{Endpoint: "http://a", Token: "inline", TokenFile: "/ignored"})
		require.NoError(t, err)
		assert.Equal(t, &clientcli.Config{Endpoint: "http://a", Token: "inline"}, cfg)
	})

	t.Run("token file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("eyJhbGciOi.payload.sig\n"), 0o600))

		cfg, err := clientcli.ConfigFromProfile(&clientcli.Profile{Endpoint: "http://a", TokenFile: path})
		require.NoError(t, err)
		assert.Equal(t, "eyJhbGciOi.payload.sig", cfg.Token)
	})

	t.Run("token file under home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		require.NoError(t, os.WriteFile(filepath.Join(home, "fk-token"), []byte("from-home"), 0o600))

		cfg, err := clientcli.ConfigFromProfile(&clientcli.Profile{TokenFile: "~/fk-token"})
		require.NoError(t, err)
		assert.Equal(t, "from-home", cfg.Token)
	})

	t.Run("missing token file", func(t *testing.T) {
		_, err := clientcli.ConfigFromProfile(&clientcli.Profile{Name: "ci", TokenFile: filepath.Join(t.TempDir(), "nope")})
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.ErrorContains(t, err, "profile ci")
	})

	t.Run("nil profile", func(t *testing.T) {
		cfg, err := clientcli.ConfigFromProfile(nil)
		require.NoError(t, err)
		assert.Equal(t, &clientcli.Config{}, cfg)
	})
}

func TestConfigFile_Profiles(t *testing.T) {
	cfg := &clientcli.ConfigFile{}

	_, err := cfg.GetProfile("")
	assert.ErrorIs(t, err, clientcli.ErrNoProfiles)

	require.NoError(t, cfg.AddProfile(clientcli.Profile{Name: "local", Endpoint: "http://localhost:5708"}))
	require.NoError(t, cfg.AddProfile(clientcli.Profile{Name: "prod", Endpoint: "https://files.example.com", Token: "t"}))
	assert.ErrorIs(t, cfg.AddProfile(clientcli.Profile{Name: "prod"}), clientcli.ErrProfileExists)

	p, err := cfg.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name, "first profile is the default when none is marked")

	require.NoError(t, cfg.SetDefault("prod"))
	p, err = cfg.GetDefaultProfile()
	require.NoError(t, err)
	assert.Equal(t, "prod", p.Name)

	require.NoError(t, cfg.UpdateProfile(clientcli.Profile{Name: "prod", Endpoint: "https://new.example.com", Default: true}))
	p, err = cfg.GetProfile("prod")
	require.NoError(t, err)
	assert.Equal(t, "https://new.example.com", p.Endpoint)

	assert.ErrorIs(t, cfg.UpdateProfile(clientcli.Profile{Name: "nope"}), clientcli.ErrProfileNotFound)
	assert.ErrorIs(t, cfg.SetDefault("nope"), clientcli.ErrProfileNotFound)

	require.NoError(t, cfg.RemoveProfile("local"))
	assert.Equal(t, []string{"prod"}, cfg.ProfileNames())
	assert.ErrorIs(t, cfg.RemoveProfile("local"), clientcli.ErrProfileNotFound)
}

func TestConfigFile_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := &clientcli.ConfigFile{Profiles: []clientcli.Profile{
		{Name: "local", Endpoint: "http://localhost:5708", Token: "secret-token", Default: true},
	}}
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := clientcli.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigFile(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		_, err := clientcli.LoadConfigFile("/nonexistent/path/config.yaml")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`profiles: [yaml: content`), 0o600))

		_, err := clientcli.LoadConfigFile(path)
		assert.Error(t, err)
	})
}

func TestMergeConfig(t *testing.T) {
	tests := []struct {
		name     string
		configs  []*clientcli.Config
		expected *clientcli.Config
	}{
		{
			name:     "empty configs",
			configs:  []*clientcli.Config{},
			expected: &clientcli.Config{},
		},
		{
			name: "later config overrides",
			configs: []*clientcli.Config{
				{Endpoint: "http://a.com", Token: "t1"},
				{Endpoint: "http://b.com"},
			},
			expected: &clientcli.Config{Endpoint: "http://b.com", Token: "t1"},
		},
		{
			name: "nil config is skipped",
			configs: []*clientcli.Config{
				{Endpoint: "http://a.com"},
				nil,
				{Token: "t2"},
			},
			expected: &clientcli.Config{Endpoint: "http://a.com", Token: "t2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, clientcli.MergeConfig(tt.configs...))
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("FILEKEEP_ENDPOINT", "http://test.example.com")
	t.Setenv("FILEKEEP_TOKEN", "env-token")
	t.Setenv("FILEKEEP_PROFILE", "prod")
	t.Setenv("FILEKEEP_CONFIG", "/tmp/fk.yaml")

	cfg := clientcli.ConfigFromEnv()

	assert.Equal(t, "http://test.example.com", cfg.Endpoint)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "prod", clientcli.ProfileFromEnv())
	assert.Equal(t, "/tmp/fk.yaml", clientcli.ConfigPathFromEnv())
}
