package filesystem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	// SHA-1("abc")
	want := "a9993e364706816aba3e25717850c26c9cd0d89d"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}

	if _, err := HashFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestHashFileLargerThanChunk(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bin")
	b := filepath.Join(dir, "b.bin")
	data := make([]byte, hashChunkSize*2+17)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(a, data, 0o644); err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(b, data, 0o644); err != nil {
		t.Fatal(err)
	}

	ha, _ := HashFile(a)
	hb, _ := HashFile(b)
	if ha == hb {
		t.Error("Expected different hashes for files differing in the last chunk")
	}
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/photos", "/photos", true},
		{"/photos", "/photos/2020/a.jpg", true},
		{"/photos/", "/photos/2020", true},
		{"/photos", "/photosx", false},
		{"/photos", "/", false},
		{"/photos/private", "/photos", false},
		{"/photos", "/photos/../etc", false},
	}

	for _, tt := range tests {
		if got := IsWithin(tt.dir, tt.path); got != tt.want {
			t.Errorf("IsWithin(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.JPG")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := RemoveIfExists(path)
	if err != nil || !removed {
		t.Fatalf("Expected removal, got removed=%v err=%v", removed, err)
	}
	removed, err = RemoveIfExists(path)
	if err != nil || removed {
		t.Fatalf("Expected no-op for missing file, got removed=%v err=%v", removed, err)
	}
}

func TestReserveKeepsExistingContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2020", "1", "2", "101010.JPG")

	if err := Reserve(path); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() != 0 {
		t.Fatalf("Expected empty placeholder, got %v %v", info, err)
	}

	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Reserve(path); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "data" {
		t.Errorf("Expected content preserved, got %q", data)
	}
}

func TestCleanEmptyDirs(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"a/b/c", "d", "e/f"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "e", "f", "keep.JPG"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := CleanEmptyDirs(root)
	if err != nil {
		t.Fatalf("CleanEmptyDirs failed: %v", err)
	}
	if removed != 4 {
		t.Errorf("Expected 4 removed directories, got %d", removed)
	}
	if _, err := os.Stat(root); err != nil {
		t.Error("Root should be kept")
	}
	if _, err := os.Stat(filepath.Join(root, "e", "f", "keep.JPG")); err != nil {
		t.Error("Non-empty directory should be kept")
	}
	if _, err := os.Stat(filepath.Join(root, "a")); !os.IsNotExist(err) {
		t.Error("Empty tree should be removed")
	}

	if n, err := CleanEmptyDirs(filepath.Join(root, "missing")); n != 0 || err != nil {
		t.Errorf("Expected no-op for missing root, got %d %v", n, err)
	}
}

func TestClearDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "x", "y"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.JPG"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ClearDir(root); err != nil {
		t.Fatalf("ClearDir failed: %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Errorf("Expected empty dir, got %d entries", len(entries))
	}

	if err := ClearDir(filepath.Join(root, "missing")); err != nil {
		t.Errorf("Expected nil for missing dir, got %v", err)
	}
}

func TestFileTimes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.JPG")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(path)
	created, modified := FileTimes(info)
	if created.IsZero() || modified.IsZero() {
		t.Errorf("Expected non-zero times, got %v %v", created, modified)
	}
}
