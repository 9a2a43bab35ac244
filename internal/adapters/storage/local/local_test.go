package local

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
)

func TestWriteVersion(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	path, err := store.WriteVersion("user-1", "doc-1", "notes.md", 2, []byte("hello"))
	if err != nil {
		t.Fatalf("WriteVersion() error = %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(content) != "hello" {
		t.Errorf("file content = %q, want %q", content, "hello")
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "notes_v2_") || !strings.HasSuffix(base, ".md") {
		t.Errorf("derived filename = %q, want notes_v2_<ts>.md", base)
	}
	if !strings.Contains(path, filepath.Join("user-1", "doc-1", "versions")) {
		t.Errorf("path %q not under the version directory", path)
	}
}

func TestWriteVersionRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	tests := []struct {
		name     string
		baseName string
	}{
		{name: "dotdot path", baseName: "../../etc/passwd"},
		{name: "plain dotdot", baseName: ".."},
		{name: "embedded separator", baseName: "a/b.txt"},
		{name: "backslash separator", baseName: "a\\b.txt"},
		{name: "empty name", baseName: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.WriteVersion("user-1", "doc-1", tt.baseName, 2, []byte("x"))
			if !domain.IsPathViolation(err) {
				t.Fatalf("WriteVersion(%q) error = %v, want PathViolationError", tt.baseName, err)
			}
		})
	}

	// Nothing may be written on rejection.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("base dir has %d entries after rejected writes, want 0", len(entries))
	}
}

func TestFileOpsStayInsideBase(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	outside := "/etc/passwd"
	if err := store.WriteFile(outside, []byte("x")); !domain.IsPathViolation(err) {
		t.Errorf("WriteFile(%q) error = %v, want PathViolationError", outside, err)
	}
	if _, err := store.ReadFile(outside); !domain.IsPathViolation(err) {
		t.Errorf("ReadFile(%q) error = %v, want PathViolationError", outside, err)
	}
	if err := store.RemoveFile(outside); !domain.IsPathViolation(err) {
		t.Errorf("RemoveFile(%q) error = %v, want PathViolationError", outside, err)
	}
}

func TestPrimaryPathSanitizesOwner(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	path, err := store.PrimaryPath("user@../evil", "doc-1", "notes.md")
	if err != nil {
		t.Fatalf("PrimaryPath() error = %v", err)
	}
	if strings.Contains(path, "..") {
		t.Errorf("PrimaryPath() = %q contains traversal", path)
	}
}
