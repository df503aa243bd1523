package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("STORAGE_SIGNING_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Bulk.DispatchMode != "queue" || cfg.Bulk.FetchConcurrency != 1 {
		t.Errorf("unexpected bulk defaults: %+v", cfg.Bulk)
	}
	if cfg.Bulk.LinkTTL != 24*time.Hour || cfg.Bulk.LeaseTTL != 90*time.Second {
		t.Errorf("unexpected durations: link %v lease %v", cfg.Bulk.LinkTTL, cfg.Bulk.LeaseTTL)
	}
	if cfg.Store.Backend != "redis" || cfg.Ledger.Backend != "redis" {
		t.Errorf("unexpected backends: store %q ledger %q", cfg.Store.Backend, cfg.Ledger.Backend)
	}
	if cfg.Storage.SigningSecret != "jwt-secret" {
		t.Errorf("expected signing secret to fall back to the JWT secret, got %q", cfg.Storage.SigningSecret)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BULK_DISPATCH_MODE", "inline")
	t.Setenv("BULK_ITEM_TIMEOUT", "45s")
	t.Setenv("BULK_FETCH_CONCURRENCY", "3")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("RATELIMIT_STATUS_PER_MIN", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Bulk.DispatchMode != "inline" {
		t.Errorf("expected inline dispatch, got %q", cfg.Bulk.DispatchMode)
	}
	if cfg.Bulk.ItemTimeout != 45*time.Second {
		t.Errorf("expected 45s item timeout, got %v", cfg.Bulk.ItemTimeout)
	}
	if cfg.Bulk.FetchConcurrency != 3 {
		t.Errorf("expected fetch concurrency 3, got %d", cfg.Bulk.FetchConcurrency)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected memory store, got %q", cfg.Store.Backend)
	}
	if cfg.RateLimit.StatusPerMin != 7 {
		t.Errorf("expected status limit 7, got %d", cfg.RateLimit.StatusPerMin)
	}
}

func TestReadSecret_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker_secret")
	if err := os.WriteFile(path, []byte("  s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WORKER_SECRET", "")
	t.Setenv("WORKER_SECRET_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Worker.Secret != "s3cret" {
		t.Errorf("expected secret from file, got %q", cfg.Worker.Secret)
	}
}

func TestReadSecret_EnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker_secret")
	if err := os.WriteFile(path, []byte("from-file"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WORKER_SECRET", "from-env")
	t.Setenv("WORKER_SECRET_FILE", path)

	readSecret("WORKER_SECRET")
	if got := os.Getenv("WORKER_SECRET"); got != "from-env" {
		t.Errorf("expected env value to win, got %q", got)
	}
}
