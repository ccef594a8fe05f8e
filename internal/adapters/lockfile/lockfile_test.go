package lockfile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tangram.example.dev/tangram/internal/adapters/lockfile"
	"tangram.example.dev/tangram/internal/core/domain"
)

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	lock, ok, err := lockfile.Load(t.TempDir())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, lock.Dependencies)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	pkgID, err := domain.NewRandomIdentifier(domain.KindPackage)
	require.NoError(t, err)
	lockID, err := domain.NewRandomIdentifier(domain.KindLock)
	require.NoError(t, err)

	lock := domain.Lock{Dependencies: []domain.LockEntry{
		{Dependency: domain.Specifier{Name: "foo", Constraint: "^1.0.0"}, Package: pkgID, Lock: lockID},
		{Dependency: domain.Specifier{Path: "./sibling"}, Package: pkgID},
	}}

	dir := t.TempDir()
	require.NoError(t, lockfile.Save(dir, lock))

	got, ok, err := lockfile.Load(dir)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, lock.Dependencies, got.Dependencies)
}

func TestUpToDate(t *testing.T) {
	t.Parallel()

	pkgID, err := domain.NewRandomIdentifier(domain.KindPackage)
	require.NoError(t, err)

	lock := domain.Lock{Dependencies: []domain.LockEntry{
		{Dependency: domain.Specifier{Name: "foo"}, Package: pkgID},
	}}

	assert.True(t, lockfile.UpToDate(lock, []domain.Specifier{{Name: "foo"}}))
	assert.False(t, lockfile.UpToDate(lock, []domain.Specifier{{Name: "foo"}, {Name: "bar"}}))
	assert.False(t, lockfile.UpToDate(lock, []domain.Specifier{{Name: "baz"}}))
}
