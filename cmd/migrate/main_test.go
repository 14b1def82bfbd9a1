package main

import (
	"crypto/sha256"
	"testing"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_initial_schema.sql", true, "0001", "initial_schema"},
		{"0042_add_settings.sql", true, "0042", "add_settings"},
		{"001_invalid.sql", false, "", ""},        // wrong number format
		{"0001_test", false, "", ""},              // missing .sql
		{"0001.sql", false, "", ""},               // missing name
		{"invalid_0001_test.sql", false, "", ""},  // wrong order
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			matches := migrationPattern.FindStringSubmatch(tt.filename)
			if !tt.valid {
				if matches != nil {
					t.Errorf("expected %s not to match, got %v", tt.filename, matches)
				}
				return
			}
			if matches == nil {
				t.Fatalf("expected %s to match", tt.filename)
			}
			if matches[1] != tt.version {
				t.Errorf("version = %s, want %s", matches[1], tt.version)
			}
			if matches[2] != tt.name {
				t.Errorf("name = %s, want %s", matches[2], tt.name)
			}
		})
	}
}

func TestMigrationChecksumConsistency(t *testing.T) {
	content := []byte("CREATE TABLE test (id INT64);")
	changed := []byte("CREATE TABLE different (id INT64);")

	if sha256.Sum256(content) != sha256.Sum256(content) {
		t.Error("same content should produce the same checksum")
	}
	if sha256.Sum256(content) == sha256.Sum256(changed) {
		t.Error("different content should produce different checksums")
	}
}
