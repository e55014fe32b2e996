//go:build !windows

package toolserver

import (
	"context"
	"os/exec"
	"syscall"
)

// shellCommandContext spawns cfg's command directly (not through a shell);
// setSysProcAttr places it in its own process group. Shutdown kills only the
// server process itself, not the other members of that group.
func shellCommandContext(ctx context.Context, command string, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, command, args...)
}

func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
