package thememode

import (
	"errors"
	"testing"

	"autotheme/internal/autoswitch"
	"autotheme/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"
)

var testEntities = Entities{AutoSwitch: "theme_auto_switch", IsDark: "theme_dark_mode"}

func newTestStore(t *testing.T, readOnly bool) (*Store, *ha.MockClient) {
	t.Helper()
	mock := ha.NewMockClient()
	mock.SetState("input_boolean.theme_auto_switch", "on", map[string]interface{}{})
	mock.SetState("input_boolean.theme_dark_mode", "off", map[string]interface{}{})
	return NewStore(mock, testEntities, readOnly, zaptest.NewLogger(t)), mock
}

func nextKey(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case key := <-ch:
		return key
	default:
		t.Fatal("expected a queued change")
		return ""
	}
}

func TestStore_Current(t *testing.T) {
	store, _ := newTestStore(t, false)

	mode, err := store.Current()
	require.NoError(t, err)
	assert.Equal(t, autoswitch.ThemeMode{AutoSwitch: true, IsDark: false}, mode)
}

func TestStore_CurrentCombinesErrors(t *testing.T) {
	store, mock := newTestStore(t, false)
	mock.SetState("input_boolean.theme_auto_switch", "unavailable", nil)
	mock.SetState("input_boolean.theme_dark_mode", "unknown", nil)

	_, err := store.Current()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestStore_SetIsDarkIsIdempotent(t *testing.T) {
	store, mock := newTestStore(t, false)
	_, err := store.Current()
	require.NoError(t, err)

	require.NoError(t, store.SetIsDark(true))
	require.NoError(t, store.SetIsDark(true))

	calls := mock.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "turn_on", calls[0].Service)
	assert.Equal(t, "input_boolean.theme_dark_mode", calls[0].Data["entity_id"])

	state, err := mock.GetState("input_boolean.theme_dark_mode")
	require.NoError(t, err)
	assert.True(t, state.IsOn())

	// A different value goes out.
	require.NoError(t, store.SetIsDark(false))
	assert.Len(t, mock.GetServiceCalls(), 2)
}

func TestStore_SetIsDarkError(t *testing.T) {
	store, mock := newTestStore(t, false)
	mock.SetCallServiceError(errors.New("service unavailable"))

	err := store.SetIsDark(true)
	assert.ErrorContains(t, err, "service unavailable")

	// The failed write is not cached, so a retry goes out.
	mock.SetCallServiceError(nil)
	require.NoError(t, store.SetIsDark(true))
	assert.Len(t, mock.GetServiceCalls(), 1)
}

func TestStore_ReadOnly(t *testing.T) {
	store, mock := newTestStore(t, true)

	require.NoError(t, store.SetIsDark(true))
	assert.Empty(t, mock.GetServiceCalls())

	state, err := mock.GetState("input_boolean.theme_dark_mode")
	require.NoError(t, err)
	assert.False(t, state.IsOn())
}

func TestStore_ChangesAndUpdate(t *testing.T) {
	store, mock := newTestStore(t, false)
	require.NoError(t, store.Start())
	assert.Error(t, store.Start())
	assert.Equal(t, 1, mock.SubscriberCount("input_boolean.theme_auto_switch"))
	assert.Equal(t, 1, mock.SubscriberCount("input_boolean.theme_dark_mode"))

	mock.SetState("input_boolean.theme_auto_switch", "off", nil)
	key := nextKey(t, store.Changes())
	assert.Equal(t, autoswitch.KeyAutoSwitch, key)

	mode, err := store.Update(key)
	require.NoError(t, err)
	assert.False(t, mode.AutoSwitch)

	_, err = store.Update("brightness")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestStore_OwnWritesAreAnnounced(t *testing.T) {
	store, _ := newTestStore(t, false)
	require.NoError(t, store.Start())

	require.NoError(t, store.SetIsDark(true))
	assert.Equal(t, autoswitch.KeyIsDark, nextKey(t, store.Changes()))
}

func TestStore_ChangeQueueDropsWhenFull(t *testing.T) {
	store, mock := newTestStore(t, false)
	require.NoError(t, store.Start())

	for i := 0; i < changeBuffer+5; i++ {
		mock.SetState("input_boolean.theme_dark_mode", "on", nil)
	}
	assert.Len(t, store.Changes(), changeBuffer)
}

func TestStore_Close(t *testing.T) {
	store, mock := newTestStore(t, false)
	require.NoError(t, store.Start())

	store.Close()
	store.Close()
	assert.Equal(t, 0, mock.SubscriberCount("input_boolean.theme_auto_switch"))

	_, ok := <-store.Changes()
	assert.False(t, ok)
	assert.Error(t, store.Start())
}
