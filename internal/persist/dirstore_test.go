package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "snaps")
	s, err := NewDirStore(dir)
	require.NoError(t, err)

	data := []byte{10, 1, 2, 3}
	si, err := s.Save(ctx, "main", data)
	require.NoError(t, err)
	assert.Equal(t, uint8(10), si.Version)
	assert.Equal(t, 4, si.Size)
	assert.Equal(t, ChecksumHex(data), si.Checksum)
	assert.Len(t, si.Checksum, 64)

	_, err = s.Save(ctx, "arena", []byte{9})
	require.NoError(t, err)
	_, err = s.Save(ctx, "main", append(data, 4))
	require.NoError(t, err)

	got, err := s.Load(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 1, 2, 3, 4}, got)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "arena", list[0].Name)
	assert.Equal(t, "main", list[1].Name)
	assert.Equal(t, 5, list[1].Size)

	require.NoError(t, s.Delete(ctx, "arena"))
	assert.ErrorIs(t, s.Delete(ctx, "arena"), ErrNotFound)
	_, err = s.Load(ctx, "arena")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files are left behind")
}

func TestDirStoreDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewDirStore(dir)
	require.NoError(t, err)
	_, err = s.Save(ctx, "main", []byte("snapshot"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.world"), []byte("snapshoT"), 0o644))
	_, err = s.Load(ctx, "main")
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestSnapshotNames(t *testing.T) {
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "c:"} {
		assert.ErrorIs(t, validateName(name), ErrInvalidName, name)
	}
	assert.NoError(t, validateName("world-1_backup.v2"))

	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Save(context.Background(), "../escape", nil)
	assert.ErrorIs(t, err, ErrInvalidName)
}
