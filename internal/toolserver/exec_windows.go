//go:build windows

package toolserver

import (
	"context"
	"os/exec"
)

func shellCommandContext(ctx context.Context, command string, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, command, args...)
}

// setSysProcAttr is a no-op on Windows: Setpgid is not available there.
func setSysProcAttr(cmd *exec.Cmd) {}
