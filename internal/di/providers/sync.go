package providers

import (
	"github.com/samber/do/v2"

	"github.com/leafwise/leafwise-sync/internal/config"
	"github.com/leafwise/leafwise-sync/internal/gateway"
	"github.com/leafwise/leafwise-sync/internal/identity"
	"github.com/leafwise/leafwise-sync/internal/logger"
	"github.com/leafwise/leafwise-sync/internal/resolver"
	"github.com/leafwise/leafwise-sync/internal/service"
	"github.com/leafwise/leafwise-sync/internal/validation"
)

// ProvideMapper provides the identity mapper.
func ProvideMapper(i do.Injector) (*identity.Mapper, error) {
	return identity.NewMapper(), nil
}

// ProvideValidator provides the payload validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideResolver provides the conflict resolver.
func ProvideResolver(i do.Injector) (*resolver.Resolver, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return resolver.New(log.Logger), nil
}

// GatewayHandle wraps the gateway client with shutdown capability.
type GatewayHandle struct {
	*gateway.Client
}

// Shutdown implements do.Shutdownable.
func (h *GatewayHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideGateway provides the remote sync backend client.
func ProvideGateway(i do.Injector) (*GatewayHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := gateway.New(gateway.Config{
		BaseURL:     cfg.Remote.BaseURL,
		DeviceToken: cfg.Remote.DeviceToken,
		CallTimeout: cfg.Remote.CallTimeout,
	}, log.Logger)

	return &GatewayHandle{Client: client}, nil
}

// ProvideRecordService provides the local mutation service.
func ProvideRecordService(i do.Injector) (*service.RecordService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	mapper := do.MustInvoke[*identity.Mapper](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewRecordService(storeHandle.Store, mapper, validator, log.Logger), nil
}

// ProvideSyncService provides the sync orchestrator.
func ProvideSyncService(i do.Injector) (*service.SyncService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	gatewayHandle := do.MustInvoke[*GatewayHandle](i)
	res := do.MustInvoke[*resolver.Resolver](i)
	mapper := do.MustInvoke[*identity.Mapper](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSyncService(storeHandle.Store, gatewayHandle.Client, res, mapper, cfg.Sync.BatchSize, log.Logger), nil
}

// SchedulerHandle wraps the auto-sync scheduler with shutdown capability.
type SchedulerHandle struct {
	*service.Scheduler
}

// Shutdown implements do.Shutdownable.
func (h *SchedulerHandle) Shutdown() error {
	h.StopAutoSync()
	return nil
}

// ProvideScheduler provides the auto-sync scheduler and starts it when
// configured to.
func ProvideScheduler(i do.Injector) (*SchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	syncService := do.MustInvoke[*service.SyncService](i)
	log := do.MustInvoke[*logger.Logger](i)

	scheduler := service.NewScheduler(syncService, cfg.Sync.Interval, log.Logger)
	if cfg.Sync.AutoStart {
		scheduler.StartAutoSync()
	} else {
		log.Info("Auto sync disabled by configuration")
	}

	return &SchedulerHandle{Scheduler: scheduler}, nil
}
