// Package jsonfile persists the store state as a single JSON document on
// disk. The document is read once on open and rewritten in full after every
// committed transaction.
package jsonfile

import (
	"bytes"
	"compliancedash/internal/infra/persistence/memory"
	"compliancedash/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "compliance_data.json"

// Store keeps the working set in a memory.Store and mirrors each commit to
// the document at path. Writes go to a temp file that is renamed into place,
// so a failed write leaves both the previous file and the in-memory state
// untouched.
type Store struct {
	*memory.Store
	path string
}

// NewStore opens (or creates on first commit) the document at path.
func NewStore(path string, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	s := &Store{path: path}
	opts = append(opts, memory.WithCommitHook(s.save))
	s.Store = memory.NewStore(opts...)
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the configured document path.
func (s *Store) Path() string { return s.path }

// Reload replaces the in-memory state with the document on disk. A missing
// document yields an empty store.
func (s *Store) Reload() error {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.ImportState(memory.Snapshot{})
		return nil
	}
	if err != nil {
		return domain.StorageError{Op: "read document", Err: err}
	}
	snapshot, err := decodeDocument(b)
	if err != nil {
		return domain.StorageError{Op: "decode document", Err: err}
	}
	s.ImportState(snapshot)
	return nil
}

// decodeDocument accepts the current envelope layout as well as the legacy
// layout where the document is a bare array of plants.
func decodeDocument(b []byte) (memory.Snapshot, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return memory.Snapshot{}, nil
	}
	if trimmed[0] == '[' {
		var plants []domain.Plant
		if err := json.Unmarshal(trimmed, &plants); err != nil {
			return memory.Snapshot{}, err
		}
		for i := range plants {
			for j := range plants[i].Files {
				plants[i].Files[j].Path = legacyBlobKey(plants[i].ID, plants[i].Files[j])
			}
		}
		return memory.Snapshot{Plants: plants}, nil
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(trimmed, &snapshot); err != nil {
		return memory.Snapshot{}, err
	}
	return snapshot, nil
}

// legacyBlobKey maps a legacy file path such as
// "uploads/plant_1/permit_1700000000000.pdf" to its key under the blob root.
// Entries without a path fall back to plant_<id>/<fileName>.
func legacyBlobKey(plantID int, f domain.PlantFile) string {
	key := strings.TrimPrefix(filepath.ToSlash(f.Path), "./")
	key = strings.TrimPrefix(key, "uploads/")
	if key == "" && f.StoredName != "" {
		key = path.Join("plant_"+strconv.Itoa(plantID), f.StoredName)
	}
	return key
}

func (s *Store) save(_ context.Context, snapshot memory.Snapshot) error {
	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return domain.StorageError{Op: "encode document", Err: err}
	}
	if err := writeFileAtomic(s.path, b); err != nil {
		return domain.StorageError{Op: "write document", Err: err}
	}
	return nil
}

func writeFileAtomic(path string, b []byte) (retErr error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".compliance-*.json")
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
