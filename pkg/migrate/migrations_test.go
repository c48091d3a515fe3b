package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mercadito-app/mercadito-backend/pkg/migrate"
)

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_ledger_core.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no ledger core migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CHECK (quantity_remaining >= 0)",
		"CHECK (quantity > 0)",
		"CHECK (amount > 0)",
		"REFERENCES sales (id)",
		"CREATE TYPE cash_transaction_kind AS ENUM ('revenue', 'expense', 'adjustment')",
		"CREATE TABLE cash_balance_snapshots",
		"CREATE INDEX idx_stock_lots_fifo ON stock_lots (product_id, received_at, id)",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migration dir should validate: %v", err)
	}
}
