package runtime

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/shellbox/config"
)

// New creates the appropriate container runtime based on the configuration
func New(logger *zap.Logger, cfg *config.Config) (Runtime, error) {
	switch cfg.Runtime.Backend {
	case "docker", "podman":
		return NewEngineRuntime(logger, cfg.Runtime.Backend, cfg.StopTimeout()), nil
	default:
		return nil, fmt.Errorf("unsupported runtime backend: %s", cfg.Runtime.Backend)
	}
}

// LimitsFromConfig builds resource limits from the application configuration
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MemoryMB:        cfg.Runtime.MemoryMB,
		CPUQuotaPercent: cfg.Runtime.CPUQuotaPercent,
		TmpfsSizeMB:     cfg.Runtime.TmpfsSizeMB,
		NetworkEnabled:  cfg.Runtime.NetworkEnabled,
	}
}
