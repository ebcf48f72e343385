package api

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/gateway"
	"github.com/leafwise/leafwise-sync/internal/identity"
	"github.com/leafwise/leafwise-sync/internal/resolver"
	"github.com/leafwise/leafwise-sync/internal/service"
	"github.com/leafwise/leafwise-sync/internal/store"
	"github.com/leafwise/leafwise-sync/internal/validation"
)

// stubGateway acknowledges every push and serves canned pull responses, so
// handler tests never touch the network.
type stubGateway struct {
	probeErr error
	remote   map[domain.Table][]*domain.Record
}

func (g *stubGateway) ProbeAvailability(_ context.Context) error {
	return g.probeErr
}

func (g *stubGateway) Identity(_ context.Context) (*gateway.Identity, error) {
	return &gateway.Identity{UserID: "user-1", DeviceID: "device-1"}, nil
}

func (g *stubGateway) RegisterDevice(_ context.Context, _ string) (*gateway.Identity, error) {
	return &gateway.Identity{UserID: "user-1", DeviceID: "device-1"}, nil
}

func (g *stubGateway) Push(_ context.Context, _ domain.Table, records []*domain.Record) ([]gateway.PushResult, error) {
	results := make([]gateway.PushResult, len(records))
	for i, rec := range records {
		results[i] = gateway.PushResult{RemoteID: rec.RemoteID, Status: "ok"}
	}
	return results, nil
}

func (g *stubGateway) Pull(_ context.Context, table domain.Table, _ *time.Time) ([]*domain.Record, time.Time, error) {
	return g.remote[table], time.Now().UTC(), nil
}

// testServer bundles the control API server with its backing pieces.
type testServer struct {
	*Server
	api     humatest.TestAPI
	store   *store.Store
	gw      *stubGateway
	records *service.RecordService
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	st, err := store.Open(filepath.Join(t.TempDir(), "control.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gw := &stubGateway{remote: make(map[domain.Table][]*domain.Record)}
	mapper := identity.NewMapper()
	recordService := service.NewRecordService(st, mapper, validation.New(), logger)
	syncService := service.NewSyncService(st, gw, resolver.New(logger), mapper, 50, logger)

	s := NewServer(st, syncService, recordService, "user-1", logger)

	return &testServer{
		Server:  s,
		api:     humatest.Wrap(t, s.api),
		store:   st,
		gw:      gw,
		records: recordService,
	}
}
