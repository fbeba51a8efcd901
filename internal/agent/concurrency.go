package agent

import (
	"go.uber.org/zap"

	"github.com/kylegalloway/trellm/internal/config"
)

// EffectiveConcurrency returns how many agents may run at once across all
// projects, reduced from the configured cap when adaptive mode finds too
// little free RAM.
func EffectiveConcurrency(cfg config.ClaudeConfig, logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}
	configured := cfg.MaxConcurrent
	if configured < 1 {
		configured = 1
	}
	if !cfg.Adaptive {
		return configured
	}

	perAgent := cfg.MinRAMPerAgentMB
	if perAgent <= 0 {
		perAgent = 600
	}
	return capByRAM(configured, getAvailableRAMMB(), perAgent, logger)
}

func capByRAM(configured, availableMB, perAgentMB int, logger *zap.Logger) int {
	if availableMB <= 0 {
		logger.Warn("could not determine available RAM, using configured concurrency", zap.Int("concurrency", configured))
		return configured
	}
	maxByRAM := availableMB / perAgentMB
	if maxByRAM < 1 {
		maxByRAM = 1
	}
	if maxByRAM < configured {
		logger.Info("reducing concurrency for available RAM",
			zap.Int("configured", configured), zap.Int("effective", maxByRAM), zap.Int("available_mb", availableMB))
		return maxByRAM
	}
	return configured
}
