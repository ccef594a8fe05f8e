package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tangram.example.dev/tangram/internal/adapters/store"
	"tangram.example.dev/tangram/internal/core/domain"
)

func newLeaf(t *testing.T, content string) (domain.Identifier, []byte) {
	t.Helper()
	id, data, err := domain.EncodeObject(domain.KindBlob, nil, content)
	require.NoError(t, err)
	return id, data
}

func TestStore_PutGetExists(t *testing.T) {
	s, err := store.NewWithPath(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	id, data := newLeaf(t, "hello")

	ok, err := s.Exists(id)
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := s.Put(id, data)
	require.NoError(t, err)
	assert.Empty(t, missing)

	ok, err = s.Exists(id)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStore_PutIdempotent(t *testing.T) {
	s, err := store.NewWithPath(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	id, data := newLeaf(t, "idempotent")

	_, err = s.Put(id, data)
	require.NoError(t, err)
	missing, err := s.Put(id, data)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestStore_PutMissingChildren(t *testing.T) {
	s, err := store.NewWithPath(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	childID, _ := newLeaf(t, "child")
	parentID, parentData, err := domain.EncodeObject(domain.KindDirectory, []domain.Identifier{childID}, map[string]string{"a": childID.String()})
	require.NoError(t, err)

	missing, err := s.Put(parentID, parentData)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, childID, missing[0])

	ok, err := s.Exists(parentID)
	require.NoError(t, err)
	assert.False(t, ok, "put must not store the object while children are missing")
}

func TestStore_PutRejectsHashMismatch(t *testing.T) {
	s, err := store.NewWithPath(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	id, _ := newLeaf(t, "one")
	_, otherData := newLeaf(t, "two")

	_, err = s.Put(id, otherData)
	require.Error(t, err)
}

func TestStore_Children(t *testing.T) {
	s, err := store.NewWithPath(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	childID, childData := newLeaf(t, "child")
	_, err = s.Put(childID, childData)
	require.NoError(t, err)

	parentID, parentData, err := domain.EncodeObject(domain.KindDirectory, []domain.Identifier{childID}, map[string]string{"a": childID.String()})
	require.NoError(t, err)
	missing, err := s.Put(parentID, parentData)
	require.NoError(t, err)
	require.Empty(t, missing)

	children, err := s.Children(parentID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identifier{childID}, children)
}

func TestStore_GetMiss(t *testing.T) {
	s, err := store.NewWithPath(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	id, _ := newLeaf(t, "never stored")
	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Nil(t, got)
}
