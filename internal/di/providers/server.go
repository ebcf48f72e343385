package providers

import (
	"context"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/leafwise/leafwise-sync/internal/api"
	"github.com/leafwise/leafwise-sync/internal/config"
	"github.com/leafwise/leafwise-sync/internal/logger"
	"github.com/leafwise/leafwise-sync/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the control API server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	syncService := do.MustInvoke[*service.SyncService](i)
	recordService := do.MustInvoke[*service.RecordService](i)
	log := do.MustInvoke[*logger.Logger](i)

	handler := api.NewServer(storeHandle.Store, syncService, recordService, cfg.Sync.UserID, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("Control API starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Control API error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
