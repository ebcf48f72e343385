// Package providers contains dependency injection providers for the sync daemon.
package providers

import (
	"os"

	"github.com/samber/do/v2"

	"github.com/leafwise/leafwise-sync/internal/config"
	"github.com/leafwise/leafwise-sync/internal/logger"
)

// ProvideConfig provides the daemon configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.Load(os.Args[1:])
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting LeafWise sync daemon",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"db_path", cfg.Database.Path,
		"remote_url", cfg.Remote.BaseURL,
	)

	return log, nil
}
