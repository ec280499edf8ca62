package fleet

import (
	"testing"
	"time"

	"fleetd/internal/activation"
	"fleetd/internal/models"
	"fleetd/internal/quota"

	"github.com/stretchr/testify/require"
)

// testFleet — полный комплект сервисов поверх in-memory хранилищ,
// в той же связке, что и composition root.
type testFleet struct {
	store      *memStore
	codes      *activation.Service
	ledger     *quota.Ledger
	registry   *Registry
	dispatcher *Dispatcher
	monitor    *Monitor
}

func newTestFleet(t *testing.T) *testFleet {
	t.Helper()
	store := NewMemStore()
	codes := activation.NewService(activation.NewMemStore(), time.Hour)
	ledger := quota.NewLedger(quota.NewMemStore(), NewActiveCounter(store))
	return &testFleet{
		store:      store,
		codes:      codes,
		ledger:     ledger,
		registry:   NewRegistry(store, codes, ledger),
		dispatcher: NewDispatcher(store, ledger),
		monitor:    NewMonitor(store),
	}
}

func (f *testFleet) configureQuota(t *testing.T, contractID uint, limit int) {
	t.Helper()
	require.NoError(t, f.ledger.Configure(&models.Quota{
		ContractID: contractID,
		Category:   quota.CategoryDevice,
		LimitCount: limit,
	}))
}

func (f *testFleet) issueCode(t *testing.T, maxUses int) string {
	t.Helper()
	c, err := f.codes.Issue("test", time.Hour, maxUses, "op")
	require.NoError(t, err)
	return c.Code
}

func (f *testFleet) register(t *testing.T, hostname string, clientID, contractID uint) RegisterResult {
	t.Helper()
	res, err := f.registry.Register(f.issueCode(t, 0), RegisterPayload{
		ClientID:   clientID,
		ContractID: contractID,
		Hostname:   hostname,
	})
	require.NoError(t, err)
	return res
}

func (f *testFleet) usedQuota(t *testing.T, contractID uint) int {
	t.Helper()
	qs, err := f.ledger.Usage(contractID)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	return qs[0].Used
}

// backdateHeartbeat сдвигает last_heartbeat_at в прошлое.
func (f *testFleet) backdateHeartbeat(t *testing.T, deviceID string, ago time.Duration) {
	t.Helper()
	d, ok := f.store.FindByUUID(deviceID)
	require.True(t, ok)
	past := time.Now().Add(-ago)
	d.LastHeartbeatAt = &past
	require.NoError(t, f.store.Save(&d))
}
