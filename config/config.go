package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sagarc03/filekeep/database"
	filekeephttp "github.com/sagarc03/filekeep/http"
	"github.com/sagarc03/filekeep/keybackend"
	"github.com/sagarc03/filekeep/s3store"
	"github.com/sagarc03/filekeep/token"
)

type configKey struct{}

// WithContext stores cfg in ctx for commands further down the cobra tree.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

func FromContext(ctx context.Context) (*Config, error) {
	if cfg, ok := ctx.Value(configKey{}).(*Config); ok && cfg != nil {
		return cfg, nil
	}
	return nil, errors.New("config not found in context")
}

// Config is the root configuration struct for filekeep.
type Config struct {
	Env       string                  `mapstructure:"env" validate:"required,oneof=dev prod"`
	Server    ServerConfig            `mapstructure:"server"`
	Database  database.Config         `mapstructure:"database"`
	Storage   StorageConfig           `mapstructure:"storage"`
	Auth      AuthConfig              `mapstructure:"auth"`
	Upload    UploadConfig            `mapstructure:"upload"`
	Reconcile ReconcileConfig         `mapstructure:"reconcile"`
	CORS      filekeephttp.CORSConfig `mapstructure:"cors"`
	Log       LogConfig               `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"min=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// StorageConfig selects and configures the blob store.
type StorageConfig struct {
	Backend string         `mapstructure:"backend" validate:"required,oneof=filesystem s3"`
	Path    string         `mapstructure:"path" validate:"required_if=Backend filesystem"`
	S3      s3store.Config `mapstructure:"s3"`
}

// AuthConfig holds bearer token verification settings. The token fields sit
// directly under "auth".
type AuthConfig struct {
	Token token.Config          `mapstructure:",squash"`
	Keys  keybackend.KeysConfig `mapstructure:"keys"`
}

// UploadConfig holds the write path policy.
type UploadConfig struct {
	// MaxSize caps a single upload in bytes. 0 means no limit.
	MaxSize int64 `mapstructure:"max_size" validate:"min=0"`
	// SizeTolerance is the accepted relative difference between declared and
	// streamed size.
	SizeTolerance  float64       `mapstructure:"size_tolerance" validate:"min=0,max=1"`
	ChunkSize      int64         `mapstructure:"chunk_size" validate:"min=0"`
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout" validate:"min=0"`
	PresignTTL     time.Duration `mapstructure:"presign_ttl" validate:"min=0"`
}

// ReconcileConfig holds reconciler scheduling and pass selection.
type ReconcileConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval" validate:"min=0"`
	StaleAfter      time.Duration `mapstructure:"stale_after" validate:"min=0"`
	PageSize        int           `mapstructure:"page_size" validate:"min=0,max=1000"`
	ListBlobs       bool          `mapstructure:"list_blobs"`
	VerifyFinalized bool          `mapstructure:"verify_finalized"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"db-type":         "database.type",
	"db-dsn":          "database.dsn",
	"auto-migrate":    "database.auto_migrate",
	"storage-backend": "storage.backend",
	"storage-path":    "storage.path",
	"port":            "server.port",
	"log-level":       "log.level",
}

// bindFlags binds the flags the user actually set, so unset flags never
// shadow env or file values.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		key, ok := flagToViperKey[f.Name]
		if !ok {
			key = f.Name
		}
		_ = v.BindPFlag(key, f)
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("server.port", 5708)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "filekeep.db")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.use_path_style", false)

	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.leeway", 30*time.Second)
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.jwks_refresh_interval", time.Hour)
	v.SetDefault("auth.keys.file", "")

	v.SetDefault("upload.max_size", 0) // 0 means no limit
	v.SetDefault("upload.size_tolerance", 0.0)
	v.SetDefault("upload.chunk_size", s3store.DefaultPartSize)
	v.SetDefault("upload.cleanup_timeout", 30*time.Second)
	v.SetDefault("upload.presign_ttl", 15*time.Minute)

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", 5*time.Minute)
	v.SetDefault("reconcile.stale_after", time.Hour)
	v.SetDefault("reconcile.page_size", 100)
	v.SetDefault("reconcile.list_blobs", false)
	v.SetDefault("reconcile.verify_finalized", false)

	v.SetDefault("cors.enabled", false)
	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "Range", "If-None-Match"})
	v.SetDefault("cors.exposed_headers", []string{"ETag", "Content-Range", "Content-Disposition"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("log.level", "info")
}

// Load builds a validated Config. Flags win over FILEKEEP_* env vars, which
// win over files, which win over defaults. Files merge left to right and must
// exist; with none given, ./config.yaml is read if present. flags may be nil.
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readFiles(v, configFiles); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("FILEKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		bindFlags(v, flags)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	validate.RegisterStructValidation(validateStorage, StorageConfig{})
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func readFiles(v *viper.Viper, files []string) error {
	if len(files) == 0 {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
		return nil
	}

	for _, f := range files {
		v.SetConfigFile(f)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", f, err)
		}
		slog.Debug("config file merged", "file", f)
	}
	return nil
}

// validateStorage requires the bucket settings when the S3 backend is chosen.
func validateStorage(sl validator.StructLevel) {
	s := sl.Current().Interface().(StorageConfig)
	if s.Backend != "s3" {
		return
	}

	if s.S3.Bucket == "" {
		sl.ReportError(s.S3.Bucket, "S3.Bucket", "bucket", "required_with_s3", "")
	}
	if s.S3.Region == "" {
		sl.ReportError(s.S3.Region, "S3.Region", "region", "required_with_s3", "")
	}
}
