// Package procgroup runs external commands in their own process group so a
// cancelled context terminates the whole tree, not only the direct child.
package procgroup

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Configure places cmd in a new process group and makes context cancellation
// send SIGTERM to the group. cmd must come from exec.CommandContext. Set
// cmd.WaitDelay to bound how long the leader may linger after the signal.
func Configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
}

// Kill sends SIGKILL to cmd's process group.
func Kill(cmd *exec.Cmd) {
	_ = signalGroup(cmd, syscall.SIGKILL)
}

// Supervise escalates to SIGKILL on the group when ctx is done and the group
// is still running grace later. Call it after Start and call the returned
// func after Wait; when ctx was cancelled it kills whatever is left in the
// group.
func Supervise(ctx context.Context, cmd *exec.Cmd, grace time.Duration) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			Kill(cmd)
		case <-done:
		}
	}()
	return func() {
		close(done)
		if ctx.Err() != nil {
			Kill(cmd)
		}
	}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
