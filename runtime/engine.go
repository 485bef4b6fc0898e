package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// cpuPeriodMicros is the scheduler period the CPU quota is expressed
// against; a quota of period*N% caps the container at N% of one CPU.
const cpuPeriodMicros = 100000

// keepAlive keeps the container's init process running so commands can
// be exec'd into it for the lifetime of the session.
var keepAlive = []string{"tail", "-f", "/dev/null"}

// EngineRuntime implements Runtime by driving a container engine CLI
// (docker or podman; the two expose the same verbs and flags for
// everything this service needs).
type EngineRuntime struct {
	logger      *zap.Logger
	engine      string
	stopTimeout time.Duration
	cmdRunner   CommandRunner
}

// EngineRuntimeOption defines a functional option for EngineRuntime
type EngineRuntimeOption func(*EngineRuntime)

// WithCommandRunner sets the CommandRunner for EngineRuntime
func WithCommandRunner(cmdRunner CommandRunner) EngineRuntimeOption {
	return func(r *EngineRuntime) {
		r.cmdRunner = cmdRunner
	}
}

// NewEngineRuntime creates a runtime driving the given engine CLI
func NewEngineRuntime(logger *zap.Logger, engine string, stopTimeout time.Duration, opts ...EngineRuntimeOption) *EngineRuntime {
	r := &EngineRuntime{
		logger:      logger,
		engine:      engine,
		stopTimeout: stopTimeout,
		cmdRunner:   &RealCommandRunner{}, // Default implementation
	}

	// Apply options
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// CreateAndStart creates and starts a sandbox container, verifying it
// reached a running state before returning its reference
func (r *EngineRuntime) CreateAndStart(ctx context.Context, image string, limits Limits) (string, error) {
	name := fmt.Sprintf("shellbox-%s", strings.ToLower(ulid.Make().String()))

	createArgs := []string{
		r.engine, "create",
		"--name", name,
		"--memory", fmt.Sprintf("%dm", limits.MemoryMB),
		"--cpu-period", strconv.Itoa(cpuPeriodMicros),
		"--cpu-quota", strconv.Itoa(limits.CPUQuotaPercent * cpuPeriodMicros / 100),
		"--tmpfs", fmt.Sprintf("/tmp:size=%dm", limits.TmpfsSizeMB),
	}
	if !limits.NetworkEnabled {
		createArgs = append(createArgs, "--network", "none")
	}
	createArgs = append(createArgs, image)
	createArgs = append(createArgs, keepAlive...)

	stdout, stderr, exitCode, err := r.cmdRunner.RunCommand(ctx, createArgs)
	if err != nil {
		return "", fmt.Errorf("%w: %s create failed: %v", ErrUnavailable, r.engine, err)
	}
	if exitCode != 0 {
		return "", r.classifyFailure("create container", stderr)
	}

	ref := strings.TrimSpace(stdout)
	if ref == "" {
		return "", fmt.Errorf("%s create returned no container id", r.engine)
	}

	_, stderr, exitCode, err = r.cmdRunner.RunCommand(ctx, []string{r.engine, "start", ref})
	if err != nil || exitCode != 0 {
		r.removeForce(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("%w: %s start failed: %v", ErrUnavailable, r.engine, err)
		}
		return "", r.classifyFailure("start container", stderr)
	}

	running, err := r.isRunning(ctx, ref)
	if err != nil {
		r.removeForce(ctx, ref)
		return "", err
	}
	if !running {
		r.removeForce(ctx, ref)
		return "", fmt.Errorf("container %s failed to reach running state", ref)
	}

	r.logger.Info("container created and started",
		zap.String("engine", r.engine),
		zap.String("container_ref", ref),
		zap.String("image", image))

	return ref, nil
}

// Exec runs a command inside the container through /bin/bash -c so that
// pipes, redirection, and globbing behave as they would for an
// interactive shell user
func (r *EngineRuntime) Exec(ctx context.Context, containerRef, command string) (ExecResult, error) {
	shellCmd := UnwrapShellCommand(command)

	args := []string{r.engine, "exec", containerRef, "/bin/bash", "-c", shellCmd}
	stdout, stderr, exitCode, err := r.cmdRunner.RunCommand(ctx, args)
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: %s exec failed: %v", ErrUnavailable, r.engine, err)
	}

	if exitCode != 0 && stderrSaysNotFound(stderr) {
		return ExecResult{}, fmt.Errorf("%w: %s", ErrContainerNotFound, containerRef)
	}
	if exitCode != 0 && stderrSaysUnreachable(stderr) {
		return ExecResult{}, fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(stderr))
	}

	return ExecResult{
		Output:   stdout + stderr,
		ExitCode: exitCode,
	}, nil
}

// StopAndRemove stops and removes the container. A container that is
// already gone counts as success.
func (r *EngineRuntime) StopAndRemove(ctx context.Context, containerRef string) error {
	stopSecs := int(r.stopTimeout / time.Second)
	_, stderr, exitCode, err := r.cmdRunner.RunCommand(ctx,
		[]string{r.engine, "stop", "-t", strconv.Itoa(stopSecs), containerRef})
	if err != nil {
		return fmt.Errorf("%w: %s stop failed: %v", ErrUnavailable, r.engine, err)
	}
	if exitCode != 0 {
		if stderrSaysNotFound(stderr) {
			return nil // Already removed
		}
		if stderrSaysUnreachable(stderr) {
			return fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(stderr))
		}
		// A stop failure still allows a forced remove below
		r.logger.Warn("container stop failed, forcing removal",
			zap.String("container_ref", containerRef),
			zap.String("stderr", strings.TrimSpace(stderr)))
	}

	_, stderr, exitCode, err = r.cmdRunner.RunCommand(ctx, []string{r.engine, "rm", "-f", containerRef})
	if err != nil {
		return fmt.Errorf("%w: %s rm failed: %v", ErrUnavailable, r.engine, err)
	}
	if exitCode != 0 {
		if stderrSaysNotFound(stderr) {
			return nil
		}
		return r.classifyFailure("remove container", stderr)
	}

	r.logger.Info("container stopped and removed",
		zap.String("engine", r.engine),
		zap.String("container_ref", containerRef))
	return nil
}

// Ping verifies the engine daemon is reachable
func (r *EngineRuntime) Ping(ctx context.Context) error {
	_, stderr, exitCode, err := r.cmdRunner.RunCommand(ctx, []string{r.engine, "info"})
	if err != nil {
		return fmt.Errorf("%w: %s not runnable: %v", ErrUnavailable, r.engine, err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(stderr))
	}
	return nil
}

func (r *EngineRuntime) isRunning(ctx context.Context, containerRef string) (bool, error) {
	stdout, stderr, exitCode, err := r.cmdRunner.RunCommand(ctx,
		[]string{r.engine, "inspect", "-f", "{{.State.Running}}", containerRef})
	if err != nil {
		return false, fmt.Errorf("%w: %s inspect failed: %v", ErrUnavailable, r.engine, err)
	}
	if exitCode != 0 {
		return false, r.classifyFailure("inspect container", stderr)
	}
	return strings.TrimSpace(stdout) == "true", nil
}

// removeForce is best-effort cleanup for containers that never reached
// a usable state
func (r *EngineRuntime) removeForce(ctx context.Context, containerRef string) {
	_, stderr, exitCode, err := r.cmdRunner.RunCommand(ctx, []string{r.engine, "rm", "-f", containerRef})
	if err != nil || (exitCode != 0 && !stderrSaysNotFound(stderr)) {
		r.logger.Warn("failed to remove container after failed start",
			zap.String("container_ref", containerRef),
			zap.String("stderr", strings.TrimSpace(stderr)),
			zap.Error(err))
	}
}

func (r *EngineRuntime) classifyFailure(op, stderr string) error {
	msg := strings.TrimSpace(stderr)
	if stderrSaysUnreachable(stderr) {
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
	if stderrSaysNotFound(stderr) {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, msg)
	}
	return fmt.Errorf("%s: %s", op, msg)
}

func stderrSaysNotFound(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no such container") ||
		strings.Contains(s, "no container with name")
}

func stderrSaysUnreachable(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "cannot connect") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "is the docker daemon running") ||
		strings.Contains(s, "unable to connect")
}
