package database

import "testing"

// NewTestDB opens a fresh in-memory database that is closed when t finishes.
func NewTestDB(t testing.TB) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
