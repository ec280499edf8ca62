package quota

import (
	"testing"

	"fleetd/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounter — авторитетные счётчики для Reconcile в тестах.
type fakeCounter struct {
	counts map[string]int64
}

func (f fakeCounter) Count(_ uint, category string) (int64, bool, error) {
	n, ok := f.counts[category]
	return n, ok, nil
}

func newTestLedger(counts map[string]int64) *Ledger {
	return NewLedger(NewMemStore(), fakeCounter{counts: counts})
}

func TestCheckDenyByDefault(t *testing.T) {
	l := newTestLedger(nil)
	// отсутствие строки квоты — отказ, а не неявный безлимит
	allowed, reason := l.Check(1, CategoryDevice)
	assert.False(t, allowed)
	assert.Equal(t, ReasonNoQuota, reason)
}

func TestCheckUnlimited(t *testing.T) {
	l := newTestLedger(nil)
	require.NoError(t, l.Configure(&models.Quota{ContractID: 1, Category: CategoryDevice, LimitCount: 0}))
	allowed, reason := l.Check(1, CategoryDevice)
	assert.True(t, allowed)
	assert.Equal(t, ReasonUnlimited, reason)
}

func TestCheckExceeded(t *testing.T) {
	l := newTestLedger(nil)
	require.NoError(t, l.Configure(&models.Quota{ContractID: 1, Category: CategoryDevice, LimitCount: 2}))
	require.NoError(t, l.Increment(1, CategoryDevice))
	allowed, reason := l.Check(1, CategoryDevice)
	assert.True(t, allowed)
	assert.Equal(t, ReasonOK, reason)

	require.NoError(t, l.Increment(1, CategoryDevice))
	allowed, reason = l.Check(1, CategoryDevice)
	assert.False(t, allowed)
	assert.Equal(t, ReasonExceeded, reason)
}

func TestCheckAllowExceed(t *testing.T) {
	l := newTestLedger(nil)
	require.NoError(t, l.Configure(&models.Quota{ContractID: 1, Category: CategoryDevice, LimitCount: 1, AllowExceed: true}))
	require.NoError(t, l.Increment(1, CategoryDevice))
	require.NoError(t, l.Increment(1, CategoryDevice))
	allowed, _ := l.Check(1, CategoryDevice)
	assert.True(t, allowed)
}

func TestDecrementFloorsAtZero(t *testing.T) {
	l := newTestLedger(nil)
	require.NoError(t, l.Configure(&models.Quota{ContractID: 1, Category: CategoryDevice, LimitCount: 5}))
	require.NoError(t, l.Decrement(1, CategoryDevice))
	require.NoError(t, l.Decrement(1, CategoryDevice))
	qs, err := l.Usage(1)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Zero(t, qs[0].Used)
}

func TestAdjustWithoutQuotaRowIsNoop(t *testing.T) {
	l := newTestLedger(nil)
	// квоты опциональны: нет строки — log-and-continue, не ошибка
	require.NoError(t, l.Increment(42, CategoryDevice))
	require.NoError(t, l.Decrement(42, CategoryDevice))
}

func TestReconcileOverwritesDrift(t *testing.T) {
	store := NewMemStore()
	l := NewLedger(store, fakeCounter{counts: map[string]int64{CategoryDevice: 3}})
	require.NoError(t, l.Configure(&models.Quota{ContractID: 7, Category: CategoryDevice, LimitCount: 10}))
	require.NoError(t, l.Configure(&models.Quota{ContractID: 7, Category: "license_office", LimitCount: 4}))

	// имитируем потерянные инкременты
	require.NoError(t, store.SetUsed(7, CategoryDevice, 99))
	require.NoError(t, store.SetUsed(7, "license_office", 2))

	qs, err := l.Reconcile(7)
	require.NoError(t, err)
	byCat := map[string]models.Quota{}
	for _, q := range qs {
		byCat[q.Category] = q
	}
	assert.Equal(t, 3, byCat[CategoryDevice].Used)
	// у категории без авторитетного источника used не трогаем
	assert.Equal(t, 2, byCat["license_office"].Used)
}

func TestConfigurePreservesUsed(t *testing.T) {
	l := newTestLedger(nil)
	require.NoError(t, l.Configure(&models.Quota{ContractID: 1, Category: CategoryDevice, LimitCount: 2}))
	require.NoError(t, l.Increment(1, CategoryDevice))

	// правка лимита не сбрасывает счётчик
	require.NoError(t, l.Configure(&models.Quota{ContractID: 1, Category: CategoryDevice, LimitCount: 5}))
	qs, err := l.Usage(1)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, 1, qs[0].Used)
	assert.Equal(t, 5, qs[0].LimitCount)
}
