package schema

import "testing"

func TestValidateIdentifierAccepts(t *testing.T) {
	for _, name := range []string{"cache_entries", "_private", "Key1", "a"} {
		if err := ValidateIdentifier("table", name); err != nil {
			t.Errorf("expected %q to be valid, got error: %v", name, err)
		}
	}
}

func TestValidateIdentifierRejects(t *testing.T) {
	for _, name := range []string{
		"1table",
		"table name",
		"table;DROP TABLE x;--",
		"table-name",
		"",
		"table'",
	} {
		if err := ValidateIdentifier("table", name); err == nil {
			t.Errorf("expected %q to be rejected", name)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{TableName: "ok_table", KeyColumn: "bad col", ValueColumn: "value"})
	if err == nil {
		t.Fatalf("expected error for invalid key column")
	}
}

func TestNewRejectsBadScheduleName(t *testing.T) {
	_, err := New(Config{
		TableName:      "ok_table",
		KeyColumn:      "k",
		ValueColumn:    "v",
		EnableSchedule: true,
		ScheduleName:   "bad name!",
		ScheduleCron:   "*/5 * * * *",
	})
	if err == nil {
		t.Fatalf("expected error for invalid schedule name")
	}
}

func TestNewAcceptsValidConfig(t *testing.T) {
	m, err := New(Config{TableName: "nuvex_store", KeyColumn: "cache_key", ValueColumn: "cache_value"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.cleanupFunctionName() != "cleanup_expired_nuvex_store" {
		t.Errorf("unexpected cleanup function name: %s", m.cleanupFunctionName())
	}
}
