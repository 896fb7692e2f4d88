package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskChecksumStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "galley.pdf")
	require.NoError(t, os.WriteFile(path, []byte("galley contents"), 0o644))

	ctx := context.Background()
	first, err := Disk{}.Checksum(ctx, path)
	require.NoError(t, err)
	second, err := Disk{}.Checksum(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "sha256 hex digest")
}

func TestDiskChecksumChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "galley.xml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	ctx := context.Background()
	before, err := Disk{}.Checksum(ctx, path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	after, err := Disk{}.Checksum(ctx, path)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestDiskChecksumMissingFile(t *testing.T) {
	_, err := Disk{}.Checksum(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	s := Static{Sums: map[string]string{"a": "sum-a"}}
	got, err := s.Checksum(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "sum-a", got)
	_, err = s.Checksum(context.Background(), "b")
	assert.Error(t, err)
}
