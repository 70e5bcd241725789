//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"codejudge/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

// jail applies mount isolation. It is a no-op unless the engine started the
// helper in fresh namespaces.
func jail(req spec.InitRequest) error {
	if !req.EnableNs {
		return nil
	}
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make mount private: %w", err)
	}
	rootfs := req.Isolation.RootFS
	for _, m := range req.RunSpec.BindMounts {
		if err := bindMount(rootfs, m); err != nil {
			return err
		}
	}
	if rootfs == "" {
		return nil
	}
	procPath := filepath.Join(rootfs, "proc")
	if err := os.MkdirAll(procPath, 0o755); err != nil {
		return fmt.Errorf("mkdir proc: %w", err)
	}
	if err := unix.Mount("proc", procPath, "proc", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, ""); err != nil && !errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("mount proc: %w", err)
	}
	if err := unix.Chroot(rootfs); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir root: %w", err)
	}
	return nil
}

func bindMount(rootfs string, m spec.MountSpec) error {
	if m.Source == "" || m.Target == "" {
		return fmt.Errorf("invalid mount spec %q -> %q", m.Source, m.Target)
	}
	target := m.Target
	if rootfs != "" {
		target = filepath.Join(rootfs, m.Target)
	}
	if err := ensureMountTarget(m.Source, target); err != nil {
		return err
	}
	if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind mount %s: %w", m.Target, err)
	}
	if m.ReadOnly {
		flags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY | unix.MS_NOSUID)
		if err := unix.Mount("", target, "", flags, ""); err != nil {
			return fmt.Errorf("remount readonly %s: %w", m.Target, err)
		}
	}
	return nil
}

func ensureMountTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("mkdir mount target: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir mount target dir: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create mount target file: %w", err)
	}
	return f.Close()
}
