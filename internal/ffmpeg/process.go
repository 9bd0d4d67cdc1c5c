package ffmpeg

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// killGrace is how long a child gets to exit after SIGINT before SIGKILL.
const killGrace = 3 * time.Second

// Command builds an exec.Cmd for an external media tool. The child runs in
// its own process group so cancellation can signal every helper process it
// spawns; on context cancellation the whole group gets SIGINT, and after a
// grace period the child itself (not the group) gets SIGKILL.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, unix.SIGINT)
	}
	cmd.WaitDelay = killGrace
	return cmd
}

// signalGroup signals the child's process group, falling back to the child
// itself when the group is gone.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil {
		return cmd.Process.Signal(sig)
	}
	return nil
}
