package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jingkaihe/autonomous-agent/pkg/paths"
	"github.com/pkg/errors"
)

const jsonExt = ".json"

// JSONStore keeps one <id>.json file per document inside a role directory
type JSONStore struct {
	dir string
}

// NewJSONStore creates a store over dir. The directory is created on the
// first write if it does not exist yet.
func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{dir: dir}
}

// Dir returns the directory backing the store
func (s *JSONStore) Dir() string {
	return s.dir
}

func (s *JSONStore) path(id string) string {
	return filepath.Join(s.dir, id+jsonExt)
}

// Put writes the document through a temporary file and a rename so readers
// never observe a partial document.
func (s *JSONStore) Put(_ context.Context, id string, doc any) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal document %s", id)
	}

	if _, err := paths.EnsureDirectory(s.dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary document file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write temporary document file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close temporary document file")
	}

	if err := os.Rename(tmpPath, s.path(id)); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to rename temporary document file")
	}

	return nil
}

// Get decodes <id>.json into out
func (s *JSONStore) Get(_ context.Context, id string, out any) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "%s", id)
		}
		return errors.Wrapf(err, "failed to read document %s", id)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "failed to unmarshal document %s", id)
	}
	return nil
}

// List returns the ids of all *.json files. A missing directory is an empty
// collection.
func (s *JSONStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrapf(err, "failed to list %s", s.dir)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, jsonExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, jsonExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes <id>.json
func (s *JSONStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "%s", id)
		}
		return errors.Wrapf(err, "failed to delete document %s", id)
	}
	return nil
}

// Close is a no-op for the file store
func (s *JSONStore) Close() error {
	return nil
}
