package config_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sagarc03/filekeep/config"
)

func ExampleLoad() {
	cfg, err := config.Load(nil, nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("port=%d storage=%s stale_after=%s reconcile=%t\n",
		cfg.Server.Port, cfg.Storage.Backend, cfg.Reconcile.StaleAfter, cfg.Reconcile.Enabled)
	// Output: port=5708 storage=filesystem stale_after=1h0m0s reconcile=true
}

// Later files override earlier ones key by key.
func ExampleLoad_layered() {
	dir, err := os.MkdirTemp("", "filekeep-config")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	base := filepath.Join(dir, "base.yaml")
	prod := filepath.Join(dir, "prod.yaml")

	_ = os.WriteFile(base, []byte(`
auth:
  issuer: https://idp.example.com
  keys:
    inline:
      - kid: "2024-07"
        secret: base-secret
reconcile:
  interval: 10m
`), 0o600)
	_ = os.WriteFile(prod, []byte(`
env: prod
reconcile:
  verify_finalized: true
`), 0o600)

	cfg, err := config.Load([]string{base, prod}, nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(cfg.Env, cfg.Auth.Token.Issuer, cfg.Auth.Keys.Inline[0].KeyID)
	fmt.Println(cfg.Reconcile.Interval, cfg.Reconcile.VerifyFinalized)
	// Output:
	// prod https://idp.example.com 2024-07
	// 10m0s true
}

func ExampleFromContext() {
	cfg, err := config.Load(nil, nil)
	if err != nil {
		log.Fatal(err)
	}

	ctx := config.WithContext(context.Background(), cfg)

	fromCtx, err := config.FromContext(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(fromCtx.Upload.PresignTTL)
	// Output: 15m0s
}
