package migrations

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		t.Fatalf("open embedded migrations: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("first migration: %v", err)
	}
	if first == 0 {
		t.Fatal("expected a non-zero first migration version")
	}

	version := first
	count := 1
	for {
		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
		count++
	}
	if count < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", count)
	}
}
