// Package di provides dependency injection configuration for the sync daemon.
package di

import (
	"github.com/samber/do/v2"

	"github.com/leafwise/leafwise-sync/internal/config"
	"github.com/leafwise/leafwise-sync/internal/di/providers"
	"github.com/leafwise/leafwise-sync/internal/identity"
	"github.com/leafwise/leafwise-sync/internal/logger"
	"github.com/leafwise/leafwise-sync/internal/resolver"
	"github.com/leafwise/leafwise-sync/internal/service"
	"github.com/leafwise/leafwise-sync/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Local store
	do.Provide(injector, providers.ProvideStore)

	// Sync engine
	do.Provide(injector, providers.ProvideMapper)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideResolver)
	do.Provide(injector, providers.ProvideGateway)
	do.Provide(injector, providers.ProvideRecordService)
	do.Provide(injector, providers.ProvideSyncService)
	do.Provide(injector, providers.ProvideScheduler)

	// Control API
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle
// management. This triggers lazy initialization of the whole graph.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*identity.Mapper](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*resolver.Resolver](injector)
	_ = do.MustInvoke[*providers.GatewayHandle](injector)
	_ = do.MustInvoke[*service.RecordService](injector)
	_ = do.MustInvoke[*service.SyncService](injector)
	_ = do.MustInvoke[*providers.SchedulerHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
