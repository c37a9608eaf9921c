package testsupport

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-book-catalog/catalog"
)

//go:embed testdata/*.json
var fixtures embed.FS

// UpdateGoldenEnv names the variable that makes CompareWithGolden rewrite golden files.
const UpdateGoldenEnv = "UPDATE_GOLDEN"

// LoadFixture returns an embedded fixture by file name, e.g. "books.json".
func LoadFixture(t testing.TB, name string) []byte {
	t.Helper()

	data, err := fixtures.ReadFile(filepath.ToSlash(filepath.Join("testdata", name)))
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", name, err)
	}

	return data
}

// LoadFixtureJSON loads an embedded JSON fixture and unmarshals it into dest.
func LoadFixtureJSON(t testing.TB, name string, dest any) {
	t.Helper()

	data := LoadFixture(t, name)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture %s: %v", name, err)
	}
}

// Books returns a fresh copy of the sample catalog.
func Books(t testing.TB) []catalog.Book {
	t.Helper()

	var books []catalog.Book
	LoadFixtureJSON(t, "books.json", &books)
	return books
}

// CompareWithGolden compares actual with the golden file at path. The file is written
// when it does not exist yet or when UPDATE_GOLDEN is set.
func CompareWithGolden(t testing.TB, path string, actual []byte) {
	t.Helper()

	if os.Getenv(UpdateGoldenEnv) != "" {
		writeGolden(t, path, actual)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Logf("Golden file %s does not exist, creating it", path)
			writeGolden(t, path, actual)
			return
		}
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if string(actual) != string(expected) {
		t.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, expected, actual)
	}
}

func writeGolden(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write golden file %s: %v", path, err)
	}
}

// GoldenPath constructs a path to a golden file relative to the calling package's testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
