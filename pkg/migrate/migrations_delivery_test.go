package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/halcyonlabs/cardvault/pkg/migrate"
)

func TestDeliverySchemaMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_init_delivery_schema.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no delivery schema migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE credential_records",
		"REFERENCES products (id) ON DELETE CASCADE",
		"CHECK (max_assignments >= 1)",
		"CHECK (active_assignments >= 0 AND active_assignments <= max_assignments)",
		"CHECK (delivery_priority BETWEEN 1 AND 10)",
		"order_number BIGINT NOT NULL UNIQUE",
		"CHECK (qty >= 1)",
		"DROP TABLE delivery_audit_events",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir failed validation: %v", err)
	}
}
