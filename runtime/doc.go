// Package runtime provides the container runtime adapter.
//
// The runtime package is a thin interface over a container engine:
// create/start a resource-limited container, exec shell commands inside
// it, and stop/remove it. The EngineRuntime implementation drives the
// docker or podman CLI through a CommandRunner seam so tests can fake
// the engine entirely.
//
// Commands always execute through a shell interpreter so pipes,
// redirection, and globbing behave as an interactive user expects;
// callers that pre-wrap their command in an explicit "sh -c" layer get
// that one layer unwrapped before re-wrapping.
//
// Usage:
//
//	rt, err := runtime.New(logger, cfg)
//	ref, err := rt.CreateAndStart(ctx, "ubuntu:22.04", runtime.LimitsFromConfig(cfg))
//	result, err := rt.Exec(ctx, ref, "ls -la | head")
package runtime
