package runtime

import (
	"strings"

	"github.com/google/shlex"
)

// UnwrapShellCommand strips one layer of explicit shell invocation from
// a command string. Commands are always re-wrapped in a shell by Exec,
// so a caller that sends "/bin/bash -c 'ls -la'" would otherwise be
// double-shelled. Only the exact shell -c form is unwrapped, and only
// one layer per call.
func UnwrapShellCommand(command string) string {
	trimmed := strings.TrimSpace(command)
	if !hasShellPrefix(trimmed) {
		return trimmed
	}

	parts, err := shlex.Split(trimmed)
	if err != nil {
		return trimmed
	}
	if len(parts) == 3 && parts[1] == "-c" && isShell(parts[0]) {
		return parts[2]
	}
	return trimmed
}

func hasShellPrefix(command string) bool {
	for _, shell := range []string{"sh ", "bash ", "/bin/sh ", "/bin/bash ", "/usr/bin/sh ", "/usr/bin/bash "} {
		if strings.HasPrefix(command, shell) {
			return true
		}
	}
	return false
}

func isShell(path string) bool {
	switch path {
	case "sh", "bash", "/bin/sh", "/bin/bash", "/usr/bin/sh", "/usr/bin/bash":
		return true
	}
	return false
}
