package wildcard

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"promptforge/internal/core/domain"
)

func writeSet(t *testing.T, dir, name string, lines string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte(lines), 0o644); err != nil {
		t.Fatalf("failed to write wildcard set %s: %v", name, err)
	}
}

func TestStoreLoad(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "color", "red\nblue\n\n# comment\ngreen\n")

	store := NewStore(dir)
	items, err := store.Items("color")
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}
	want := []string{"red", "blue", "green"}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("Items() = %v, want %v", items, want)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir())
	if _, err := store.Items("nope"); !errors.Is(err, domain.ErrWildcardNotFound) {
		t.Errorf("Items() error = %v, want ErrWildcardNotFound", err)
	}
}

func TestStoreUsageAndReset(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "color", "red\nblue\n")
	store := NewStore(dir)

	for i := 0; i < 3; i++ {
		if err := store.RecordUsage("color", "red"); err != nil {
			t.Fatalf("RecordUsage() error = %v", err)
		}
	}
	if err := store.RecordUsage("color", "blue"); err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}

	count, err := store.Usage("color", "red")
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if count != 3 {
		t.Errorf("Usage(red) = %d, want 3", count)
	}

	if err := store.Reset("color", false); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	count, _ = store.Usage("color", "red")
	if count != 0 {
		t.Errorf("Usage(red) after reset = %d, want 0", count)
	}
}

func TestStoreListUsage(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "color", "red\nblue\ngreen\n")
	store := NewStore(dir)

	// red used 3x, blue 1x, green never
	for i := 0; i < 3; i++ {
		store.RecordUsage("color", "red")
	}
	store.RecordUsage("color", "blue")

	report, err := store.ListUsage("color")
	if err != nil {
		t.Fatalf("ListUsage() error = %v", err)
	}
	if len(report) != 3 {
		t.Fatalf("ListUsage() returned %d rows, want 3", len(report))
	}

	// Least-used first
	if report[0].Item != "green" || report[0].Count != 0 {
		t.Errorf("first row = %+v, want green with count 0", report[0])
	}
	if report[2].Item != "red" || report[2].Count != 3 {
		t.Errorf("last row = %+v, want red with count 3", report[2])
	}
	if report[2].Percent != 75 {
		t.Errorf("red percent = %v, want 75", report[2].Percent)
	}
}

func TestStoreResetShuffleKeepsCanonicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "color", "red\nblue\ngreen\n")
	store := NewStore(dir)

	if err := store.Reset("color", true); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	items, err := store.Items("color")
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}
	want := []string{"red", "blue", "green"}
	if !reflect.DeepEqual(items, want) {
		t.Errorf("Items() after shuffle reset = %v, want canonical order %v", items, want)
	}
}

func TestStoreNames(t *testing.T) {
	dir := t.TempDir()
	writeSet(t, dir, "color", "red\n")
	writeSet(t, dir, "animal", "cat\n")
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(dir)
	names, err := store.Names()
	if err != nil {
		t.Fatalf("Names() error = %v", err)
	}
	want := []string{"animal", "color"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}
