package rootfs_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tangram.example.dev/tangram/internal/sandbox/rootfs"
)

type fakeStatics struct {
	binaries map[string][]byte
}

func (f fakeStatics) StaticBinary(_, name string) (io.Reader, error) {
	data, ok := f.binaries[name]
	if !ok {
		return nil, rootfs.ErrNoStaticBinary
	}
	return bytes.NewReader(data), nil
}

func TestBuild_CreatesIdentityFilesAndStaticBinaries(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cfg := rootfs.Config{
		RootDir:               root,
		ServerDir:             t.TempDir(),
		ServerDirGuestPath:    "/.tangram",
		HomeDir:               t.TempDir(),
		OutputParentDir:       t.TempDir(),
		OutputParentGuestPath: "/output",
		TangramUID:            1000,
		TangramGID:            1000,
		Arch:                  "amd64",
	}
	statics := fakeStatics{binaries: map[string][]byte{
		"env": []byte("fake-env-binary"),
		"sh":  []byte("fake-sh-binary"),
	}}

	mounts, err := rootfs.Build(cfg, statics)
	require.NoError(t, err)
	require.Len(t, mounts, 6)

	passwd, err := os.ReadFile(filepath.Join(root, "etc/passwd"))
	require.NoError(t, err)
	assert.Contains(t, string(passwd), "tangram:!:1000:1000")

	group, err := os.ReadFile(filepath.Join(root, "etc/group"))
	require.NoError(t, err)
	assert.Contains(t, string(group), "tangram:x:1000")

	env, err := os.ReadFile(filepath.Join(root, "usr/bin/env"))
	require.NoError(t, err)
	assert.Equal(t, "fake-env-binary", string(env))

	info, err := os.Stat(filepath.Join(root, "bin/sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111)
}

func TestBuild_MissingStaticBinaryFails(t *testing.T) {
	t.Parallel()

	cfg := rootfs.Config{
		RootDir:               t.TempDir(),
		ServerDir:             t.TempDir(),
		ServerDirGuestPath:    "/.tangram",
		HomeDir:               t.TempDir(),
		OutputParentDir:       t.TempDir(),
		OutputParentGuestPath: "/output",
	}
	_, err := rootfs.Build(cfg, fakeStatics{binaries: map[string][]byte{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, rootfs.ErrNoStaticBinary)
}

func TestBuild_NetworkEnabledCopiesResolvConf(t *testing.T) {
	t.Parallel()

	if _, err := os.Stat("/etc/resolv.conf"); err != nil {
		t.Skip("host has no /etc/resolv.conf")
	}

	cfg := rootfs.Config{
		RootDir:               t.TempDir(),
		ServerDir:             t.TempDir(),
		ServerDirGuestPath:    "/.tangram",
		HomeDir:               t.TempDir(),
		OutputParentDir:       t.TempDir(),
		OutputParentGuestPath: "/output",
		NetworkEnabled:        true,
	}
	statics := fakeStatics{binaries: map[string][]byte{"env": {}, "sh": {}}}

	_, err := rootfs.Build(cfg, statics)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.RootDir, "etc/resolv.conf"))
	assert.NoError(t, err)
}
