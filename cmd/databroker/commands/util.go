package commands

import (
	"fmt"

	"github.com/sdv-broker/databroker/internal/config"
	"github.com/sdv-broker/databroker/internal/logger"
)

// InitLogger initializes the package-level structured logger from cfg.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	return "defaults"
}
