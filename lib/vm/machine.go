// Package vm supervises the throwaway build VM. The guest runs
// asynchronously; the host synchronizes with it only through the serial
// console, so the machine here is just a process with a pty attached and a
// QMP socket for forced shutdown.
package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/digitalocean/go-qemu/qmp"
)

// Config describes one disposable build VM.
type Config struct {
	// Binary is the hypervisor executable. Defaults to qemu-system-x86_64.
	Binary string

	// BootISO is the installer medium to boot from.
	BootISO string

	// Disks are raw images attached as virtio block devices, in order.
	Disks []string

	// ShareDir is exported to the guest over 9p with ShareTag.
	ShareDir string
	ShareTag string

	MemoryMB int
	CPUs     int

	// RuntimeDir holds the QMP socket.
	RuntimeDir string

	ExtraArgs []string
}

// Machine is a started guest. Its serial console is exposed as an *os.File
// (the pty master): one byte stream per direction.
type Machine struct {
	console *os.File
	cmd     *exec.Cmd
	qmpSock string
	logger  *slog.Logger

	waitCh  chan struct{}
	waitErr error
}

// Start launches the hypervisor with its serial console on a pty. The
// transport is open before the guest produces any output, so no boot bytes
// are lost.
func Start(ctx context.Context, cfg Config, logger *slog.Logger) (*Machine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "qemu-system-x86_64"
	}
	qmpSock := filepath.Join(cfg.RuntimeDir, "qmp.sock")

	args := []string{
		"-nographic",
		"-no-reboot",
		"-machine", "q35,accel=kvm",
		"-m", strconv.Itoa(cfg.MemoryMB),
		"-smp", strconv.Itoa(cfg.CPUs),
		"-qmp", "unix:" + qmpSock + ",server,nowait",
	}
	if cfg.BootISO != "" {
		args = append(args, "-cdrom", cfg.BootISO, "-boot", "d")
	}
	for _, disk := range cfg.Disks {
		args = append(args, "-drive", "file="+disk+",format=raw,if=virtio")
	}
	if cfg.ShareDir != "" {
		args = append(args,
			"-virtfs", "local,path="+cfg.ShareDir+",mount_tag="+cfg.ShareTag+",security_model=none")
	}
	args = append(args, cfg.ExtraArgs...)

	cmd := exec.Command(binary, args...)
	logger.Info("starting vm", "binary", binary, "memory_mb", cfg.MemoryMB, "cpus", cfg.CPUs)

	console, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start vm: %w", err)
	}

	m := &Machine{
		console: console,
		cmd:     cmd,
		qmpSock: qmpSock,
		logger:  logger,
		waitCh:  make(chan struct{}),
	}
	go func() {
		m.waitErr = cmd.Wait()
		close(m.waitCh)
	}()

	return m, nil
}

// Console returns the serial console transport. Reads deliver guest output,
// writes arrive at the guest as keystrokes.
func (m *Machine) Console() *os.File {
	return m.console
}

// Wait blocks until the guest process exits, e.g. after the bootstrap
// script's final power-off.
func (m *Machine) Wait(ctx context.Context) error {
	select {
	case <-m.waitCh:
		return m.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates the guest: QMP quit first, then SIGTERM with a short
// poll, then SIGKILL. Safe to call after the guest already exited, which is
// how the cleanup handler uses it.
func (m *Machine) Stop(ctx context.Context) error {
	defer m.console.Close()

	select {
	case <-m.waitCh:
		return nil
	default:
	}

	if err := m.qmpQuit(); err == nil {
		select {
		case <-m.waitCh:
			return nil
		case <-time.After(3 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.logger.Warn("vm did not quit via qmp, killing process", "pid", m.cmd.Process.Pid)
	return m.kill(ctx, 5*time.Second)
}

func (m *Machine) qmpQuit() error {
	mon, err := qmp.NewSocketMonitor("unix", m.qmpSock, 2*time.Second)
	if err != nil {
		return err
	}
	if err := mon.Connect(); err != nil {
		return err
	}
	defer mon.Disconnect()

	_, err = mon.Run([]byte(`{"execute":"quit"}`))
	return err
}

// kill sends SIGTERM and escalates to SIGKILL when the process is still
// around after the timeout.
func (m *Machine) kill(ctx context.Context, timeout time.Duration) error {
	if err := m.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		// Unkillable via signal: try the hard way.
		return m.cmd.Process.Kill()
	}

	select {
	case <-m.waitCh:
		return nil
	case <-time.After(timeout):
		return m.cmd.Process.Kill()
	case <-ctx.Done():
		_ = m.cmd.Process.Kill()
		return ctx.Err()
	}
}
