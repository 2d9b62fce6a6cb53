package fs

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalker_IncludesAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "happy")
	writeFile(t, filepath.Join(root, "nested", "b.txt"), "joyful")
	writeFile(t, filepath.Join(root, "nested", "c.md"), "car")
	writeFile(t, filepath.Join(root, "skip", "d.txt"), "glad")

	w := NewWalker(nil, []string{"skip/**"})
	files, err := w.Walk(root)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		got = append(got, filepath.ToSlash(rel))
	}
	want := []string{"a.txt", "nested/b.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestReadPhrases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.txt")
	writeFile(t, path, "# feelings\nhappy\n\n  joyful  \n\t\ncar\n")

	phrases, err := ReadPhrases(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"happy", "joyful", "car"}
	if !reflect.DeepEqual(phrases, want) {
		t.Errorf("expected %v, got %v", want, phrases)
	}

	if _, err := ReadPhrases(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
