package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tangram.example.dev/tangram/internal/adapters/fs"
	"tangram.example.dev/tangram/internal/adapters/store"
	"tangram.example.dev/tangram/internal/core/domain"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewWithPath(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)
	return s
}

func TestCheckInCheckOut_RoundTrip(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello world"), domain.FilePerm))
	mustCreateDir(t, src, "bin")
	require.NoError(t, os.WriteFile(filepath.Join(src, "bin", "run"), []byte("#!/bin/sh\necho hi\n"), 0o750))
	require.NoError(t, os.Chmod(filepath.Join(src, "bin", "run"), 0o750))
	require.NoError(t, os.Symlink("../a.txt", filepath.Join(src, "bin", "link")))

	s := newTestStore(t)
	walker := fs.NewWalker()

	id, err := fs.CheckIn(context.Background(), s, walker, src, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.KindDirectory, id.Kind())

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, fs.CheckOut(s, id, dest))

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	info, err := os.Stat(filepath.Join(dest, "bin", "run"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111, "executable bit should survive check-in/out")

	target, err := os.Readlink(filepath.Join(dest, "bin", "link"))
	require.NoError(t, err)
	assert.Equal(t, "../a.txt", target)
}

func TestCheckIn_Deterministic(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "x.txt"), []byte("same bytes"), domain.FilePerm))

	s := newTestStore(t)
	walker := fs.NewWalker()

	id1, err := fs.CheckIn(context.Background(), s, walker, src, nil)
	require.NoError(t, err)
	id2, err := fs.CheckIn(context.Background(), s, walker, src, nil)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestCheckOut_SkipsUpToDatePath(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "x.txt"), []byte("content"), domain.FilePerm))

	s := newTestStore(t)
	walker := fs.NewWalker()
	id, err := fs.CheckIn(context.Background(), s, walker, src, nil)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, fs.CheckOut(s, id, dest))

	sentinel := filepath.Join(dest, "untracked-marker")
	require.NoError(t, os.WriteFile(sentinel, []byte("keep me"), domain.FilePerm))

	require.NoError(t, fs.CheckOut(s, id, dest))

	_, err = os.Stat(sentinel)
	assert.NoError(t, err, "re-checkout of an identical artifact must not touch the existing directory")
}
