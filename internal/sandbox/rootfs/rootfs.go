// Package rootfs assembles the host-side directory tree and mount list a
// sandboxed build runs inside: the bind/virtual mounts, the passwd/group/
// nsswitch files the guest's libc needs to resolve the build user, and the
// statically linked helper binaries every guest process can exec without
// depending on anything the sandbox itself hasn't mounted yet.
package rootfs

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"go.trai.ch/zerr"
)

// ErrNoStaticBinary is returned by a StaticBinaryProvider that has no
// binary available for the requested architecture.
var ErrNoStaticBinary = zerr.New("no static binary available for this architecture")

// StaticBinaryProvider supplies the statically linked `/usr/bin/env` and
// `/bin/sh` binaries installed into every sandbox root. Real binaries are
// produced by a separate build pipeline outside this module's scope (this
// repo never invokes a Go or C toolchain); callers inject a provider backed
// by whatever static binary store their deployment uses.
type StaticBinaryProvider interface {
	StaticBinary(arch, name string) (io.Reader, error)
}

// Mount describes one mount the guest performs after pivot_root, mirroring
// the runtime's own Mount struct field-for-field.
type Mount struct {
	Source   string
	Target   string
	FSType   string
	Flags    uintptr
	Data     string
	Readonly bool
}

// Config parameterizes one sandbox root: the host paths that get bind
// mounted in, and the identity under which the guest process runs.
type Config struct {
	RootDir               string
	ServerDir             string
	ServerDirGuestPath    string
	HomeDir               string
	OutputParentDir       string
	OutputParentGuestPath string
	TangramUID            int
	TangramGID            int
	NetworkEnabled        bool
	Arch                  string
}

const (
	tangramUser  = "tangram"
	tangramGroup = "tangram"
)

// Build creates the sandbox root's directory tree, identity files, and
// static binaries, and returns the mount list the guest stage must perform
// before pivot_root, in the exact order the original runtime builds it:
// /dev, /proc, /tmp, the server directory, the home directory, then the
// output parent directory.
func Build(cfg Config, statics StaticBinaryProvider) ([]Mount, error) {
	if err := os.MkdirAll(filepath.Join(cfg.RootDir, "etc"), 0o755); err != nil {
		return nil, zerr.Wrap(err, "failed to create /etc")
	}

	if err := writePasswd(cfg); err != nil {
		return nil, err
	}
	if err := writeGroup(cfg); err != nil {
		return nil, err
	}
	if err := writeNsswitch(cfg); err != nil {
		return nil, err
	}
	if cfg.NetworkEnabled {
		if err := copyResolvConf(cfg); err != nil {
			return nil, err
		}
	}
	if err := installStaticBinaries(cfg, statics); err != nil {
		return nil, err
	}

	var mounts []Mount

	dev, err := bindMount(cfg.RootDir, "/dev", "/dev")
	if err != nil {
		return nil, err
	}
	mounts = append(mounts, dev)

	procTarget := filepath.Join(cfg.RootDir, "proc")
	if err := os.MkdirAll(procTarget, 0o755); err != nil {
		return nil, zerr.Wrap(err, `failed to create the mount point for "/proc"`)
	}
	mounts = append(mounts, Mount{Source: "/proc", Target: procTarget, FSType: "proc"})

	tmpTarget := filepath.Join(cfg.RootDir, "tmp")
	if err := os.MkdirAll(tmpTarget, 0o1777); err != nil {
		return nil, zerr.Wrap(err, `failed to create the mount point for "/tmp"`)
	}
	mounts = append(mounts, Mount{Source: "tmpfs", Target: tmpTarget, FSType: "tmpfs"})

	server, err := bindMount(cfg.RootDir, cfg.ServerDir, cfg.ServerDirGuestPath)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create the mount point for the tangram directory")
	}
	mounts = append(mounts, server)

	mounts = append(mounts, Mount{
		Source: cfg.HomeDir,
		Target: cfg.HomeDir,
		Flags:  unix.MS_BIND | unix.MS_REC,
	})

	output, err := bindMount(cfg.RootDir, cfg.OutputParentDir, cfg.OutputParentGuestPath)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create the mount point for the output parent directory")
	}
	mounts = append(mounts, output)

	return mounts, nil
}

func bindMount(rootDir, hostPath, guestPath string) (Mount, error) {
	target := filepath.Join(rootDir, guestPath)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return Mount{}, zerr.With(zerr.Wrap(err, "failed to create bind mount point"), "path", guestPath)
	}
	return Mount{Source: hostPath, Target: target, Flags: unix.MS_BIND | unix.MS_REC}, nil
}

func writePasswd(cfg Config) error {
	content := "root:!:0:0:root:/nonexistent:/bin/false\n" +
		tangramUser + ":!:" + strconv.Itoa(cfg.TangramUID) + ":" + strconv.Itoa(cfg.TangramGID) + ":tangram:/home/tangram:/bin/false\n" +
		"nobody:!:65534:65534:nobody:/nonexistent:/bin/false\n"
	path := filepath.Join(cfg.RootDir, "etc/passwd")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return zerr.Wrap(err, "failed to create /etc/passwd")
	}
	return nil
}

func writeGroup(cfg Config) error {
	content := tangramGroup + ":x:" + strconv.Itoa(cfg.TangramGID) + ":tangram\n"
	path := filepath.Join(cfg.RootDir, "etc/group")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return zerr.Wrap(err, "failed to create /etc/group")
	}
	return nil
}

func writeNsswitch(cfg Config) error {
	content := "passwd: files compat\nshadow: files compat\nhosts: files dns compat\n"
	path := filepath.Join(cfg.RootDir, "etc/nsswitch.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return zerr.Wrap(err, "failed to create /etc/nsswitch.conf")
	}
	return nil
}

func copyResolvConf(cfg Config) error {
	data, err := os.ReadFile("/etc/resolv.conf")
	if err != nil {
		return zerr.Wrap(err, "failed to read the host /etc/resolv.conf")
	}
	path := filepath.Join(cfg.RootDir, "etc/resolv.conf")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return zerr.Wrap(err, "failed to copy /etc/resolv.conf")
	}
	return nil
}

var staticBinaries = map[string]string{
	"/usr/bin/env": "env",
	"/bin/sh":      "sh",
}

func installStaticBinaries(cfg Config, statics StaticBinaryProvider) error {
	for guestPath, name := range staticBinaries {
		target := filepath.Join(cfg.RootDir, guestPath)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to create directory for static binary"), "path", guestPath)
		}
		src, err := statics.StaticBinary(cfg.Arch, name)
		if err != nil {
			return zerr.With(err, "binary", name)
		}
		dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755) //nolint:gosec // guest binaries must be executable
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to create static binary"), "path", guestPath)
		}
		_, copyErr := io.Copy(dst, src)
		closeErr := dst.Close()
		if copyErr != nil {
			return zerr.With(zerr.Wrap(copyErr, "failed to write static binary"), "path", guestPath)
		}
		if closeErr != nil {
			return zerr.With(zerr.Wrap(closeErr, "failed to close static binary"), "path", guestPath)
		}
	}
	return nil
}
