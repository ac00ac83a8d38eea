package database

import (
	"path/filepath"
	"testing"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "registry", "hub.db"),
	}
}

// TestNew tests database connection creation
func TestNew(t *testing.T) {
	db, err := New(testConfig(t))
	if err != nil {
		t.Skipf("Skipping test - sqlite not available: %v", err)
	}
	defer Close(db)

	if db == nil {
		t.Fatal("Expected database connection, got nil")
	}
}

// TestNewUnsupportedDriver tests the driver switch
func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(Config{Driver: "oracle", DSN: "whatever"})
	if err == nil {
		t.Fatal("Expected error for unsupported driver, got nil")
	}
}

// TestHealthCheck tests database health check
func TestHealthCheck(t *testing.T) {
	db, err := New(testConfig(t))
	if err != nil {
		t.Skipf("Skipping test - sqlite not available: %v", err)
	}
	defer Close(db)

	if err := HealthCheck(db); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

// TestClose tests database connection closure
func TestClose(t *testing.T) {
	db, err := New(testConfig(t))
	if err != nil {
		t.Skipf("Skipping test - sqlite not available: %v", err)
	}

	if err := Close(db); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

// TestMigrate tests running migrations against a fresh database
func TestMigrate(t *testing.T) {
	db, err := New(testConfig(t))
	if err != nil {
		t.Skipf("Skipping test - sqlite not available: %v", err)
	}
	defer Close(db)

	type widget struct {
		ID   uint `gorm:"primaryKey"`
		Name string
	}

	if err := Migrate(db, &widget{}); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	if !HasTable(db, &widget{}) {
		t.Error("Expected widget table to exist after migration")
	}
}
