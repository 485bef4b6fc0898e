package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrUnavailable indicates the container engine itself cannot be
// reached. Calls that hit it are not retried automatically.
var ErrUnavailable = errors.New("container engine unavailable")

// ErrContainerNotFound indicates the target container is gone. Benign
// for teardown, an error for exec.
var ErrContainerNotFound = errors.New("container not found")

// Limits bounds the resources granted to a sandbox container
type Limits struct {
	MemoryMB        int
	CPUQuotaPercent int
	TmpfsSizeMB     int
	NetworkEnabled  bool
}

// ExecResult represents the result of executing a command in a container
type ExecResult struct {
	Output   string // stdout and stderr combined
	ExitCode int
}

// Runtime defines the interface to a container engine
type Runtime interface {
	// CreateAndStart creates a container from the image with the given
	// limits, starts it, and verifies it reached a running state. A
	// container that fails to reach running is removed before the error
	// is returned.
	CreateAndStart(ctx context.Context, image string, limits Limits) (string, error)

	// Exec runs a command inside the container through a shell
	// interpreter and returns its combined output and exit code.
	Exec(ctx context.Context, containerRef, command string) (ExecResult, error)

	// StopAndRemove stops and removes the container. Idempotent: a
	// container that is already gone is treated as success.
	StopAndRemove(ctx context.Context, containerRef string) error

	// Ping verifies the engine is reachable
	Ping(ctx context.Context) error
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}
