package providers

import (
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/leafwise/leafwise-sync/internal/config"
	"github.com/leafwise/leafwise-sync/internal/logger"
	"github.com/leafwise/leafwise-sync/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the local record store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	var opts []store.Option
	if cfg.Database.AllowDestructiveMigrations {
		opts = append(opts, store.WithDestructiveMigrations())
	}

	db, err := store.Open(cfg.Database.Path, log.Logger, opts...)
	if err != nil {
		return nil, err
	}

	log.Info("Local store initialized", "path", cfg.Database.Path)

	return &StoreHandle{Store: db}, nil
}
