package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WritePolicy names the destinations for one artifact: a "latest" file that is
// overwritten every run and an optional dated archive copy.
type WritePolicy struct {
	Latest  string
	Archive string
}

// Store persists artifacts under a base directory using write-to-temp plus
// rename, so a crash mid-write never leaves a partial file at the final path.
// It is the only component that writes snapshots; concurrent writers targeting
// the same path are not coordinated.
type Store struct {
	baseDir string
}

// New creates the base directory if needed and returns a Store rooted there.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Dir returns the store's base directory.
func (s *Store) Dir() string { return s.baseDir }

// Path resolves an artifact name inside the store.
func (s *Store) Path(name string) string { return filepath.Join(s.baseDir, name) }

// WriteFile atomically writes data to the latest path and, if the policy has
// an archive path, to the archive as well.
func (s *Store) WriteFile(p WritePolicy, data []byte) error {
	if err := atomicWrite(s.Path(p.Latest), data); err != nil {
		return fmt.Errorf("write %s: %w", p.Latest, err)
	}
	if p.Archive != "" {
		if err := atomicWrite(s.Path(p.Archive), data); err != nil {
			return fmt.Errorf("write %s: %w", p.Archive, err)
		}
	}
	return nil
}

// WriteJSON marshals v with indentation and writes it per the policy.
func (s *Store) WriteJSON(p WritePolicy, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", p.Latest, err)
	}
	return s.WriteFile(p, data)
}

// ReadJSON reads an artifact and unmarshals it into v.
func (s *Store) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// Exists reports whether an artifact is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
