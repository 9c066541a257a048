// Package guards holds repository-wide source checks.
package guards

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const modulePath = "github.com/MahdiBaghbani/campusmesh-go"

// findRepoRoot walks up from the test directory to the directory holding go.mod.
func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("go.mod not found above test directory")
		}
		dir = parent
	}
}

// goFile is a non-test Go source file found under a directory.
type goFile struct {
	rel     string
	content string
}

// walkGoFiles returns every non-test Go file below dir. Missing dirs yield nothing.
func walkGoFiles(t *testing.T, repoRoot, dir string) []goFile {
	t.Helper()
	var files []goFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == "_examples" || strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(repoRoot, path)
		files = append(files, goFile{rel: filepath.ToSlash(rel), content: string(data)})
		return nil
	})
	if err != nil {
		t.Fatalf("walk failed: %v", err)
	}
	return files
}

// importViolations reports lines of f importing any package under prefixes.
func importViolations(f goFile, prefixes []string, why string) []string {
	var out []string
	for i, line := range strings.Split(f.content, "\n") {
		trimmed := strings.TrimSpace(line)
		for _, p := range prefixes {
			if strings.Contains(trimmed, `"`+modulePath+"/"+p) {
				out = append(out, f.rel+":"+strconv.Itoa(i+1)+": "+why+": "+trimmed)
			}
		}
	}
	return out
}
