package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadBuildsDSNFromParts(t *testing.T) {
	t.Setenv("MERCADITO_DB_HOST", "localhost")
	t.Setenv("MERCADITO_DB_USER", "mercadito")
	t.Setenv("MERCADITO_DB_PASSWORD", "secret")
	t.Setenv("MERCADITO_DB_NAME", "ledger")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !strings.Contains(cfg.DB.DSN, "host=localhost") || !strings.Contains(cfg.DB.DSN, "dbname=ledger") {
		t.Fatalf("unexpected DSN: %s", cfg.DB.DSN)
	}
	if cfg.DB.AcquireTimeout != 5*time.Second {
		t.Fatalf("unexpected acquire timeout: %s", cfg.DB.AcquireTimeout)
	}
	if !cfg.App.IsDev() {
		t.Fatal("default env should be dev")
	}
}

func TestLoadRequiresDBTarget(t *testing.T) {
	t.Setenv("MERCADITO_DB_DSN", "")
	t.Setenv("MERCADITO_DB_HOST", "")
	t.Setenv("MERCADITO_DB_USER", "")
	t.Setenv("MERCADITO_DB_NAME", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when no DB target configured")
	}
}

func TestLoadSQLiteDriverDefaultsDSN(t *testing.T) {
	t.Setenv("MERCADITO_DB_DRIVER", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !strings.HasPrefix(cfg.DB.DSN, "file:") {
		t.Fatalf("unexpected sqlite DSN: %s", cfg.DB.DSN)
	}
}
