// Package config provides configuration loading and validation for filekeep.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (FILEKEEP_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All config keys map to environment variables with FILEKEEP_ prefix:
//   - server.port → FILEKEEP_SERVER_PORT
//   - database.dsn → FILEKEEP_DATABASE_DSN
//   - reconcile.stale_after → FILEKEEP_RECONCILE_STALE_AFTER
//
// # Configuration Structure
//
// The Config struct contains:
//   - Env: dev (colored text logs) or prod (JSON logs)
//   - Server: port and HTTP timeouts
//   - Database: type, DSN and auto_migrate
//   - Storage: backend (filesystem or s3), path, and s3 bucket settings
//   - Auth: issuer, audience, leeway, jwks_url and HMAC keys
//   - Upload: max_size, size_tolerance, chunk_size, cleanup_timeout, presign_ttl
//   - Reconcile: enabled, interval, stale_after and optional passes
//   - CORS: cross-origin resource sharing settings
//   - Log: logging level
//
// # Validation
//
// Configuration is validated using struct tags:
//   - Port must be 1-65535
//   - Storage backend must be filesystem or s3; s3 needs bucket and region
//   - Upload size_tolerance must be within [0, 1]
//   - Log level must be debug, info, warn, or error
package config
