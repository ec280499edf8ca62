package fleet

import (
	"testing"
	"time"

	"fleetd/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollEmptySlot(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	res := f.register(t, "ws-001", 1, 7)

	cmd, at, err := f.dispatcher.Poll(res.DeviceID)
	require.NoError(t, err)
	assert.Empty(t, cmd)
	assert.Nil(t, at)
}

func TestSendPollConfirm(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	res := f.register(t, "ws-001", 1, 7)

	require.NoError(t, f.dispatcher.Send(res.DeviceID, CommandRestart))

	cmd, at, err := f.dispatcher.Poll(res.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, CommandRestart, cmd)
	require.NotNil(t, at)
	assert.WithinDuration(t, time.Now(), *at, 5*time.Second)

	require.NoError(t, f.dispatcher.Confirm(res.DeviceID, CommandRestart, true, ""))

	cmd, at, err = f.dispatcher.Poll(res.DeviceID)
	require.NoError(t, err)
	assert.Empty(t, cmd)
	assert.Nil(t, at)
}

func TestSendWhilePending(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	res := f.register(t, "ws-001", 1, 7)

	require.NoError(t, f.dispatcher.Send(res.DeviceID, CommandRestart))
	err := f.dispatcher.Send(res.DeviceID, CommandUpdate)
	assert.ErrorIs(t, err, ErrCommandPending)

	// занятый слот не перезаписан
	cmd, _, err := f.dispatcher.Poll(res.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, CommandRestart, cmd)
}

func TestSendInvalidCommand(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	res := f.register(t, "ws-001", 1, 7)

	err := f.dispatcher.Send(res.DeviceID, "format_c")
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestSendUnknownDevice(t *testing.T) {
	f := newTestFleet(t)
	err := f.dispatcher.Send("no-such-device", CommandRestart)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendToRetiredDevice(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	res := f.register(t, "ws-001", 1, 7)
	require.NoError(t, f.registry.Retire(res.DeviceID))

	err := f.dispatcher.Send(res.DeviceID, CommandRestart)
	assert.ErrorIs(t, err, ErrNoAgent)
}

func TestConfirmFailureClearsSlot(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	res := f.register(t, "ws-001", 1, 7)

	require.NoError(t, f.dispatcher.Send(res.DeviceID, CommandUpdate))
	require.NoError(t, f.dispatcher.Confirm(res.DeviceID, CommandUpdate, false, "download timed out"))

	// слот свободен, повтора нет — следующая команда только руками
	cmd, _, err := f.dispatcher.Poll(res.DeviceID)
	require.NoError(t, err)
	assert.Empty(t, cmd)

	require.NoError(t, f.dispatcher.Send(res.DeviceID, CommandUpdate))
}

func TestConfirmIdempotent(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	res := f.register(t, "ws-001", 1, 7)

	require.NoError(t, f.dispatcher.Send(res.DeviceID, CommandRestart))
	require.NoError(t, f.dispatcher.Confirm(res.DeviceID, CommandRestart, true, ""))
	require.NoError(t, f.dispatcher.Confirm(res.DeviceID, CommandRestart, true, ""))
}

func TestUninstallLifecycle(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 1)
	res := f.register(t, "ws-001", 1, 7)

	require.NoError(t, f.dispatcher.Send(res.DeviceID, CommandUninstall))
	require.NoError(t, f.dispatcher.Confirm(res.DeviceID, CommandUninstall, true, ""))

	d, ok := f.registry.Get(res.DeviceID)
	require.True(t, ok)
	assert.Equal(t, models.DeviceStatusRetired, d.Status)
	assert.Empty(t, d.AgentToken)
	assert.False(t, d.IsOnline)

	// место в квоте освободилось
	assert.Equal(t, 0, f.usedQuota(t, 7))

	// старый токен больше не работает
	_, err := f.registry.Authenticate(res.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// повторное подтверждение не списывает квоту второй раз
	require.NoError(t, f.dispatcher.Confirm(res.DeviceID, CommandUninstall, true, ""))
	assert.Equal(t, 0, f.usedQuota(t, 7))
}

func TestUninstallFailureKeepsDevice(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 1)
	res := f.register(t, "ws-001", 1, 7)

	require.NoError(t, f.dispatcher.Send(res.DeviceID, CommandUninstall))
	require.NoError(t, f.dispatcher.Confirm(res.DeviceID, CommandUninstall, false, "access denied"))

	d, ok := f.registry.Get(res.DeviceID)
	require.True(t, ok)
	assert.Equal(t, models.DeviceStatusActive, d.Status)
	assert.NotEmpty(t, d.AgentToken)
	assert.Equal(t, 1, f.usedQuota(t, 7))
}

func TestConfirmCountsAsLiveness(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	res := f.register(t, "ws-001", 1, 7)
	require.NoError(t, f.dispatcher.Send(res.DeviceID, CommandRestart))

	f.backdateHeartbeat(t, res.DeviceID, time.Hour)
	_, err := f.monitor.SweepOffline(10 * time.Minute)
	require.NoError(t, err)

	// агент, подтвердивший команду, очевидно жив
	require.NoError(t, f.dispatcher.Confirm(res.DeviceID, CommandRestart, true, ""))
	d, ok := f.registry.Get(res.DeviceID)
	require.True(t, ok)
	assert.True(t, d.IsOnline)
}

func TestClearStale(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	a := f.register(t, "ws-001", 1, 7)
	b := f.register(t, "ws-002", 1, 7)

	require.NoError(t, f.dispatcher.Send(a.DeviceID, CommandRestart))
	require.NoError(t, f.dispatcher.Send(b.DeviceID, CommandUpdate))

	// состариваем только первую команду
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.store.SetCommand(a.DeviceID, CommandRestart, old))

	n, err := f.dispatcher.ClearStale(24 * time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	cmd, _, err := f.dispatcher.Poll(a.DeviceID)
	require.NoError(t, err)
	assert.Empty(t, cmd)

	cmd, _, err = f.dispatcher.Poll(b.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, CommandUpdate, cmd)
}

func TestCommandEventsLogged(t *testing.T) {
	f := newTestFleet(t)
	f.configureQuota(t, 7, 10)
	res := f.register(t, "ws-001", 1, 7)

	require.NoError(t, f.dispatcher.Send(res.DeviceID, CommandCollectInfo))
	require.NoError(t, f.dispatcher.Confirm(res.DeviceID, CommandCollectInfo, false, "wmi error"))

	var kinds []string
	for _, e := range f.store.Events() {
		if e.DeviceUUID == res.DeviceID {
			kinds = append(kinds, e.Kind)
		}
	}
	assert.Contains(t, kinds, EventCommandSent)
	assert.Contains(t, kinds, EventCommandConfirmed)
}
