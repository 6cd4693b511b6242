package persist

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	snapshotExt = ".world"
	checksumExt = ".b2"
)

// DirStore keeps snapshots as files in a directory: <name>.world next to
// <name>.b2 holding the hex checksum. It serves hosts without a database.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) path(name, ext string) string {
	return filepath.Join(s.dir, name+ext)
}

// Save writes data through a temporary file so readers never see a
// partial snapshot.
func (s *DirStore) Save(_ context.Context, name string, data []byte) (SnapshotInfo, error) {
	if err := validateName(name); err != nil {
		return SnapshotInfo{}, err
	}
	si := info(name, data, time.Now())
	if err := writeFileAtomic(s.path(name, snapshotExt), data); err != nil {
		return SnapshotInfo{}, fmt.Errorf("save snapshot %s: %w", name, err)
	}
	if err := writeFileAtomic(s.path(name, checksumExt), []byte(si.Checksum+"\n")); err != nil {
		return SnapshotInfo{}, fmt.Errorf("save snapshot %s checksum: %w", name, err)
	}
	return si, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *DirStore) Load(_ context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name, snapshotExt))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	raw, err := os.ReadFile(s.path(name, checksumExt))
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s checksum: %w", name, err)
	}
	sum, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, ErrChecksumMismatch)
	}
	if want := Checksum(data); !bytes.Equal(sum, want[:]) {
		return nil, fmt.Errorf("load snapshot %s: %w", name, ErrChecksumMismatch)
	}
	return data, nil
}

// List returns the stored snapshots ordered by name.
func (s *DirStore) List(_ context.Context) ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var result []SnapshotInfo
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), snapshotExt)
		if e.IsDir() || !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		result = append(result, info(name, data, fi.ModTime()))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *DirStore) Delete(_ context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(name, snapshotExt))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete snapshot %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	os.Remove(s.path(name, checksumExt))
	return nil
}
