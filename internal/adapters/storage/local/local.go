// Package local stores document and version files under a single base
// directory. Every derived path is validated twice: inputs are sanitized
// before construction, and the resolved path is checked for containment
// before any filesystem call.
package local

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
)

type Store struct {
	baseDir string
	now     func() time.Time
}

func NewStore(baseDir string) (*Store, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	return &Store{baseDir: abs, now: time.Now}, nil
}

// WriteVersion derives the version file path and writes content to it.
// The filename embeds the base name, version number and a timestamp, which
// keeps it unique within the version directory.
func (s *Store) WriteVersion(ownerID, docID, baseName string, versionNumber int, content []byte) (string, error) {
	dir, err := s.versionDir(ownerID, docID)
	if err != nil {
		return "", err
	}

	name, err := sanitizeFileName(baseName)
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	filename := fmt.Sprintf("%s_v%d_%d%s", stem, versionNumber, s.now().UnixNano(), ext)
	path := filepath.Join(dir, filename)

	if err := s.ensureInside(path); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create version dir: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write version file: %w", err)
	}
	return path, nil
}

// PrimaryPath derives the document's primary file location without writing.
func (s *Store) PrimaryPath(ownerID, docID, baseName string) (string, error) {
	name, err := sanitizeFileName(baseName)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.baseDir, sanitizeID(ownerID), sanitizeID(docID), name)
	if err := s.ensureInside(path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) ReadFile(path string) ([]byte, error) {
	if err := s.ensureInside(path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *Store) WriteFile(path string, content []byte) error {
	if err := s.ensureInside(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	return os.WriteFile(path, content, 0o644)
}

func (s *Store) RemoveFile(path string) error {
	if err := s.ensureInside(path); err != nil {
		return err
	}
	return os.Remove(path)
}

func (s *Store) versionDir(ownerID, docID string) (string, error) {
	owner := sanitizeID(ownerID)
	doc := sanitizeID(docID)
	if owner == "" || doc == "" {
		return "", &domain.PathViolationError{Path: ownerID + "/" + docID}
	}
	return filepath.Join(s.baseDir, owner, doc, "versions"), nil
}

// ensureInside rejects any path that resolves outside the base directory.
func (s *Store) ensureInside(path string) error {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return &domain.PathViolationError{Path: path}
	}
	if abs != s.baseDir && !strings.HasPrefix(abs, s.baseDir+string(os.PathSeparator)) {
		return &domain.PathViolationError{Path: path}
	}
	return nil
}

// sanitizeID strips everything outside [a-zA-Z0-9_-].
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitizeFileName rejects traversal sequences and separators outright
// rather than repairing them.
func sanitizeFileName(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") ||
		strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, 0) {
		return "", &domain.PathViolationError{Path: name}
	}
	return name, nil
}
