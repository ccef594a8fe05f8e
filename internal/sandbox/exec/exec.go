// Package exec runs a command inside a Linux sandbox built from a
// rootfs.Config, mirroring the runtime's three-process host/root/guest
// chain: the host process spawns a root-stage re-exec of itself in a new
// user namespace, writes the uid/gid maps once it learns the root stage's
// PID, and the root stage spawns a guest-stage re-exec of itself in new
// mount/PID/network namespaces that performs the mounts, pivot_root, and
// finally execs the target program.
//
// Go cannot safely call a raw clone()/fork() from a goroutine-scheduled
// runtime, so each stage transition is a self re-exec of the current
// binary (os.Executable + os/exec) with SysProcAttr.Cloneflags set to the
// namespaces that stage needs, the idiomatic Go substitute for the
// original's direct clone3 calls and the pattern runc/containerd-style
// tools use for privileged re-exec.
package exec

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/gob"
	"fmt"
	"os"
	goexec "os/exec"

	"golang.org/x/sys/unix"

	"tangram.example.dev/tangram/internal/sandbox/rootfs"
	"go.trai.ch/zerr"
)

// Stage argv0 markers. A binary built from this module checks its own
// os.Args[1] for these at the very top of main and dispatches into
// runRootStage/runGuestStage instead of the normal CLI if it matches,
// exactly the runc-style hidden-subcommand re-exec convention.
const (
	RootStageArg  = "__tangram_sandbox_root_stage__"
	GuestStageArg = "__tangram_sandbox_guest_stage__"
)

const (
	tangramUID = 1000
	tangramGID = 1000
)

// ExitStatus is the guest process's termination, reported back to the
// host over the control socket the same way the original Context threads
// an exit status kind/value pair through.
type ExitStatus struct {
	Code     int
	Signal   int
	Signaled bool
}

func (e ExitStatus) Success() bool { return !e.Signaled && e.Code == 0 }

// Spec is everything the host stage needs to launch a sandboxed build.
type Spec struct {
	RootDir           string
	WorkingDirGuest   string
	Executable        string
	Args              []string
	Env               []string
	Mounts            []rootfs.Mount
	NetworkEnabled    bool
	HostUID, HostGID  int
}

// Run spawns the host/root/guest chain and blocks until the guest process
// exits, returning its exit status. The command's combined stdout/stderr
// is copied to log.
func Run(ctx context.Context, spec Spec, log func([]byte)) (ExitStatus, error) {
	self, err := os.Executable()
	if err != nil {
		return ExitStatus{}, zerr.Wrap(err, "failed to locate the current executable")
	}

	ctrlHost, ctrlGuest, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return ExitStatus{}, zerr.Wrap(err, "failed to create the control socket pair")
	}
	ctrlHostFile := os.NewFile(uintptr(ctrlHost), "sandbox-ctrl-host")
	defer ctrlHostFile.Close()
	ctrlGuestFile := os.NewFile(uintptr(ctrlGuest), "sandbox-ctrl-guest")

	logHost, logGuest, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return ExitStatus{}, zerr.Wrap(err, "failed to create the log socket pair")
	}
	logHostFile := os.NewFile(uintptr(logHost), "sandbox-log-host")
	defer logHostFile.Close()
	logGuestFile := os.NewFile(uintptr(logGuest), "sandbox-log-guest")

	payload, err := encodeSpec(spec)
	if err != nil {
		return ExitStatus{}, err
	}

	cmd := goexec.CommandContext(ctx, self, RootStageArg, payload)
	cmd.ExtraFiles = []*os.File{ctrlGuestFile, logGuestFile}
	cmd.SysProcAttr = &unix.SysProcAttr{
		Cloneflags: unix.CLONE_NEWUSER,
	}
	if err := cmd.Start(); err != nil {
		return ExitStatus{}, zerr.Wrap(err, "failed to spawn the root stage")
	}
	ctrlGuestFile.Close()
	logGuestFile.Close()

	go copyLog(logHostFile, log)

	guestPID, err := readInt32(ctrlHostFile)
	if err != nil {
		return ExitStatus{}, zerr.Wrap(err, "failed to receive the guest process PID")
	}

	if err := writeIDMaps(guestPID, spec.HostUID, spec.HostGID); err != nil {
		return ExitStatus{}, err
	}

	if err := writeByte(ctrlHostFile, 1); err != nil {
		return ExitStatus{}, zerr.Wrap(err, "failed to notify the root stage to continue")
	}

	kind, err := readByte(ctrlHostFile)
	if err != nil {
		return ExitStatus{}, zerr.Wrap(err, "failed to receive the exit status kind")
	}
	value, err := readInt32(ctrlHostFile)
	if err != nil {
		return ExitStatus{}, zerr.Wrap(err, "failed to receive the exit status value")
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *goexec.ExitError
		if !isExitError(err, &exitErr) {
			return ExitStatus{}, zerr.Wrap(err, "failed to wait for the root stage")
		}
	}

	if kind == 1 {
		return ExitStatus{Signal: int(value), Signaled: true}, nil
	}
	return ExitStatus{Code: int(value)}, nil
}

func isExitError(err error, target **goexec.ExitError) bool {
	e, ok := err.(*goexec.ExitError)
	if ok {
		*target = e
	}
	return ok
}

func writeIDMaps(pid int32, hostUID, hostGID int) error {
	uidMap := fmt.Sprintf("%d %d 1\n", tangramUID, hostUID)
	if err := os.WriteFile(fmt.Sprintf("/proc/%d/uid_map", pid), []byte(uidMap), 0o644); err != nil {
		return zerr.Wrap(err, "failed to set the UID map")
	}
	if err := os.WriteFile(fmt.Sprintf("/proc/%d/setgroups", pid), []byte("deny"), 0o644); err != nil {
		return zerr.Wrap(err, "failed to disable setgroups")
	}
	gidMap := fmt.Sprintf("%d %d 1\n", tangramGID, hostGID)
	if err := os.WriteFile(fmt.Sprintf("/proc/%d/gid_map", pid), []byte(gidMap), 0o644); err != nil {
		return zerr.Wrap(err, "failed to set the GID map")
	}
	return nil
}

// RunRootStage is invoked by main() when os.Args[1] == RootStageArg. It
// sets PDEATHSIG, wires stdout/stderr to the log socket, and re-execs
// itself again for the guest stage in new mount/PID/network namespaces.
func RunRootStage(args []string) {
	spec, ctrl, log := stageSetup(args)

	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0); err != nil {
		abort(ctrl, "failed to set PDEATHSIG: %v", err)
	}
	if err := unix.Dup2(int(log.Fd()), unix.Stdout); err != nil {
		abort(ctrl, "failed to duplicate stdout to the log: %v", err)
	}
	if err := unix.Dup2(int(log.Fd()), unix.Stderr); err != nil {
		abort(ctrl, "failed to duplicate stderr to the log: %v", err)
	}
	_ = unix.Close(unix.Stdin)

	self, err := os.Executable()
	if err != nil {
		abort(ctrl, "failed to locate the current executable: %v", err)
	}

	payload, err := encodeSpec(spec)
	if err != nil {
		abort(ctrl, "failed to encode the sandbox spec: %v", err)
	}

	networkFlags := 0
	if !spec.NetworkEnabled {
		networkFlags = unix.CLONE_NEWNET
	}

	cmd := goexec.Command(self, GuestStageArg, payload)
	cmd.ExtraFiles = []*os.File{os.NewFile(ctrl.Fd(), "ctrl"), log}
	cmd.SysProcAttr = &unix.SysProcAttr{
		Cloneflags: uintptr(unix.CLONE_NEWNS | unix.CLONE_NEWPID | networkFlags),
	}
	if err := cmd.Start(); err != nil {
		abort(ctrl, "failed to spawn the guest stage: %v", err)
	}

	guestPID := int32(cmd.Process.Pid)
	if err := writeInt32(ctrl, guestPID); err != nil {
		abort(ctrl, "failed to send the guest PID: %v", err)
	}

	err = cmd.Wait()
	status := exitStatusOf(err)
	if status.Signaled {
		_ = writeByte(ctrl, 1)
		_ = writeInt32(ctrl, int32(status.Signal))
	} else {
		_ = writeByte(ctrl, 0)
		_ = writeInt32(ctrl, int32(status.Code))
	}
	os.Exit(0)
}

// RunGuestStage is invoked by main() when os.Args[1] == GuestStageArg. It
// waits for the host's continue signal (so the UID/GID maps are already
// written), performs the mount list and pivot_root, then execs the target
// program, never returning on success.
func RunGuestStage(args []string) {
	spec, ctrl, _ := stageSetup(args)

	if _, err := readByte(ctrl); err != nil {
		abort(ctrl, "failed to receive the continue signal: %v", err)
	}

	for _, m := range spec.Mounts {
		flags := uintptr(m.Flags)
		if err := unix.Mount(m.Source, m.Target, m.FSType, flags, m.Data); err != nil {
			abort(ctrl, "failed to mount %q to %q: %v", m.Source, m.Target, err)
		}
		if m.Readonly {
			remount := flags | unix.MS_RDONLY | unix.MS_REMOUNT
			if err := unix.Mount(m.Source, m.Target, m.FSType, remount, m.Data); err != nil {
				abort(ctrl, "failed to remount %q readonly: %v", m.Target, err)
			}
		}
	}

	if err := unix.Mount(spec.RootDir, spec.RootDir, "", unix.MS_BIND|unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		abort(ctrl, "failed to bind mount the root: %v", err)
	}
	if err := unix.Chdir(spec.RootDir); err != nil {
		abort(ctrl, "failed to chdir into the root: %v", err)
	}
	if err := unix.PivotRoot(".", "."); err != nil {
		abort(ctrl, "failed to pivot_root: %v", err)
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		abort(ctrl, "failed to unmount the old root: %v", err)
	}
	if err := unix.Mount("", "/", "", unix.MS_BIND|unix.MS_PRIVATE|unix.MS_RDONLY|unix.MS_REC|unix.MS_REMOUNT, ""); err != nil {
		abort(ctrl, "failed to remount the root read-only: %v", err)
	}
	if err := unix.Chdir(spec.WorkingDirGuest); err != nil {
		abort(ctrl, "failed to chdir into the working directory: %v", err)
	}

	argv := append([]string{spec.Executable}, spec.Args...)
	if err := unix.Exec(spec.Executable, argv, spec.Env); err != nil {
		abort(ctrl, "failed to exec %q: %v", spec.Executable, err)
	}
}

func stageSetup(args []string) (Spec, *os.File, *os.File) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "sandbox stage: missing spec payload")
		os.Exit(1)
	}
	spec, err := decodeSpec(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "sandbox stage: failed to decode spec: %v\n", err)
		os.Exit(1)
	}
	ctrl := os.NewFile(3, "ctrl")
	log := os.NewFile(4, "log")
	return spec, ctrl, log
}

func abort(ctrl *os.File, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	if ctrl != nil {
		_ = writeByte(ctrl, 0)
		_ = writeInt32(ctrl, -1)
	}
	os.Exit(1)
}

func exitStatusOf(err error) ExitStatus {
	if err == nil {
		return ExitStatus{Code: 0}
	}
	var exitErr *goexec.ExitError
	if !isExitError(err, &exitErr) {
		return ExitStatus{Code: 1}
	}
	ws, ok := exitErr.Sys().(unix.WaitStatus)
	if !ok {
		return ExitStatus{Code: exitErr.ExitCode()}
	}
	if ws.Signaled() {
		return ExitStatus{Signal: int(ws.Signal()), Signaled: true}
	}
	return ExitStatus{Code: ws.ExitStatus()}
}

func copyLog(f *os.File, sink func([]byte)) {
	defer f.Close()
	buf := make([]byte, 512)
	for {
		n, err := f.Read(buf)
		if n > 0 && sink != nil {
			sink(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			return
		}
	}
}

// encodeSpec/decodeSpec carry a Spec across the self re-exec boundary as a
// single argv entry: gob, then standard base64 so it survives as one
// shell-safe token the way runc-style re-exec tools pass state to their
// hidden stage subcommands.
func encodeSpec(spec Spec) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(spec); err != nil {
		return "", zerr.Wrap(err, "failed to encode the sandbox spec")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeSpec(payload string) (Spec, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Spec{}, zerr.Wrap(err, "failed to decode the sandbox spec payload")
	}
	var spec Spec
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&spec); err != nil {
		return Spec{}, zerr.Wrap(err, "failed to decode the sandbox spec")
	}
	return spec, nil
}
