package capability

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"sslcat/internal/session"
)

// waitDelay bounds how long Handle waits for the stdin copy after the
// child exits; a read from the peer may otherwise never return.
const waitDelay = time.Second

// Exec wires the decrypted connection to a child process's stdio.
// Either Program (-e) or Command (-c) must be set.
type Exec struct {
	Program string // -e: execute a program directly
	Command string // -c: execute via the system shell
}

// Handle runs the child with stdin, stdout and stderr bound to the
// session's connection.  The write side is closed when it exits.
func (e *Exec) Handle(ctx context.Context, sess *session.Session) error {
	var cmd *exec.Cmd
	switch {
	case e.Command != "":
		if runtime.GOOS == "windows" {
			cmd = exec.CommandContext(ctx, "cmd.exe", "/C", e.Command)
		} else {
			cmd = exec.CommandContext(ctx, "/bin/sh", "-c", e.Command)
		}
	case e.Program != "":
		cmd = exec.CommandContext(ctx, e.Program)
	default:
		return fmt.Errorf("no command specified for exec mode")
	}

	cmd.Stdin = sess.Conn
	cmd.Stdout = sess.Conn
	cmd.Stderr = sess.Conn
	cmd.WaitDelay = waitDelay

	sess.Logger.Debug("exec: %s", cmd.String())
	err := cmd.Run()
	if hc, ok := sess.Conn.(interface{ CloseWrite() error }); ok {
		hc.CloseWrite() //nolint:errcheck
	}
	if err != nil && !isWaitDelay(err) {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}
	return nil
}

// isWaitDelay reports the error Wait returns when the child exited
// cleanly but its stdin copy was abandoned.
func isWaitDelay(err error) bool {
	return errors.Is(err, exec.ErrWaitDelay)
}
