package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"order_dashboard/internal/models"
	"order_dashboard/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(fetcher *stubFetcher, idle time.Duration, now func() time.Time) *ViewManager {
	deps := testDeps(fetcher, &stubChannel{}, &stubWriter{}, nil)
	deps.Now = now
	return NewViewManager(deps, idle)
}

func TestViewManager_ReusesViewPerSession(t *testing.T) {
	m := newTestManager(&stubFetcher{orders: []*models.Order{testOrder("1", "u1")}}, time.Hour, fixedNow)
	defer m.Close()

	a, err := m.Get(context.Background(), salesUser, "sales")
	require.NoError(t, err)
	b, err := m.Get(context.Background(), salesUser, "sales")
	require.NoError(t, err)
	assert.Same(t, a, b)

	renewed := salesUser
	renewed.Token = "t2"
	c, err := m.Get(context.Background(), renewed, "sales")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 1, m.Len())
}

func TestViewManager_FailedTokenRefreshKeepsView(t *testing.T) {
	fetcher := &stubFetcher{orders: []*models.Order{testOrder("1", "u1")}}
	m := newTestManager(fetcher, time.Hour, fixedNow)
	defer m.Close()

	first, err := m.Get(context.Background(), salesUser, "sales")
	require.NoError(t, err)

	fetcher.mu.Lock()
	fetcher.err = errors.New("dial tcp: connection refused")
	fetcher.mu.Unlock()

	renewed := salesUser
	renewed.Token = "t2"
	got, err := m.Get(context.Background(), renewed, "sales")
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, got.Status().Orders)

	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()
	replaced, err := m.Get(context.Background(), renewed, "sales")
	require.NoError(t, err)
	assert.NotSame(t, first, replaced)
	assert.Equal(t, "t2", replaced.Session().Token)
	assert.Equal(t, 1, m.Len())
}

func TestViewManager_Errors(t *testing.T) {
	m := newTestManager(&stubFetcher{}, time.Hour, fixedNow)
	defer m.Close()

	_, err := m.Get(context.Background(), salesUser, "nope")
	assert.ErrorIs(t, err, ErrUnknownView)

	_, err = m.Get(context.Background(), salesUser, "billing")
	assert.ErrorIs(t, err, ErrViewForbidden)

	admin := session.Context{UserID: "a", Role: session.SuperAdmin}
	_, err = m.Get(context.Background(), admin, "billing")
	assert.NoError(t, err)
}

func TestViewManager_FailedLoadIsNotCached(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("down")}
	m := newTestManager(fetcher, time.Hour, fixedNow)
	defer m.Close()

	_, err := m.Get(context.Background(), salesUser, "sales")
	require.Error(t, err)
	assert.Equal(t, 0, m.Len())

	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()
	_, err = m.Get(context.Background(), salesUser, "sales")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestViewManager_CloseSession(t *testing.T) {
	m := newTestManager(&stubFetcher{}, time.Hour, fixedNow)
	defer m.Close()

	_, err := m.Get(context.Background(), salesUser, "sales")
	require.NoError(t, err)
	other := session.Context{UserID: "u2", Role: session.Sales, Token: "x"}
	_, err = m.Get(context.Background(), other, "sales")
	require.NoError(t, err)

	assert.Equal(t, 1, m.CloseSession("u1"))
	assert.Equal(t, 1, m.Len())
}

func TestViewManager_SweepIdle(t *testing.T) {
	now := fixedNow()
	clock := func() time.Time { return now }
	m := newTestManager(&stubFetcher{}, 10*time.Minute, clock)
	defer m.Close()

	_, err := m.Get(context.Background(), salesUser, "sales")
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	assert.Equal(t, 0, m.SweepIdle())

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 1, m.SweepIdle())
	assert.Equal(t, 0, m.Len())
}
