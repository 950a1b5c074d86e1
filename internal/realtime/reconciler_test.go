package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"order_dashboard/internal/models"
	"order_dashboard/internal/repository"
	"order_dashboard/internal/session"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	ev  models.OrderEvent
	err error
}

type fakeStream struct {
	msgs   chan message
	closed chan struct{}
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan message, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Next(ctx context.Context) (models.OrderEvent, error) {
	select {
	case <-ctx.Done():
		return models.OrderEvent{}, ctx.Err()
	case <-s.closed:
		return models.OrderEvent{}, io.EOF
	case m := <-s.msgs:
		return m.ev, m.err
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeChannel struct {
	mu       sync.Mutex
	failures int
	attempts int
	streams  chan *fakeStream
}

func newFakeChannel(failures int) *fakeChannel {
	return &fakeChannel{failures: failures, streams: make(chan *fakeStream, 8)}
}

func (c *fakeChannel) Subscribe(ctx context.Context) (Stream, error) {
	c.mu.Lock()
	c.attempts++
	if c.failures > 0 {
		c.failures--
		c.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	c.mu.Unlock()
	s := newFakeStream()
	c.streams <- s
	return s, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (c *fakeChannel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

type fakeFetcher struct {
	mu     sync.Mutex
	orders []*models.Order
	err    error
	calls  int
}

func (f *fakeFetcher) set(orders ...*models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = orders
}

func (f *fakeFetcher) FetchOrders(ctx context.Context, sess session.Context) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.Order, len(f.orders))
	for i, o := range f.orders {
		if o == nil {
			continue
		}
		out[i] = o.Clone()
	}
	return out, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	added   []string
	lost    []error
	resyncs []int
}

func (n *recordingNotifier) OrderAdded(o *models.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.added = append(n.added, o.ID)
}

func (n *recordingNotifier) ConnectionLost(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lost = append(n.lost, err)
}

func (n *recordingNotifier) Resynced(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resyncs = append(n.resyncs, count)
}

func (n *recordingNotifier) lostCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.lost)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var sales = session.Context{UserID: "u1", Username: "asha", Role: session.Sales}

func owned(id, owner string) *models.Order {
	return &models.Order{ID: id, OrderID: "SO-" + id, CreatedBy: models.UserRef{ID: owner}}
}

func newTestReconciler(t *testing.T, sess session.Context, evict EvictRule) (*Reconciler, repository.OrderRepository, *recordingNotifier) {
	t.Helper()
	repo := repository.NewOrderRepository(quietLogger())
	n := &recordingNotifier{}
	r := NewReconciler(repo, newFakeChannel(0), &fakeFetcher{}, n, quietLogger(), Config{Session: sess, Evict: evict})
	return r, repo, n
}

func TestApply_InsertNotifiesOnce(t *testing.T) {
	r, repo, n := newTestReconciler(t, sales, nil)

	ev := models.OrderEvent{Type: models.EventInsert, Order: owned("1", "u1")}
	assert.Equal(t, OutcomeInserted, r.Apply(ev))
	assert.Equal(t, OutcomeDuplicate, r.Apply(ev))

	assert.Equal(t, 1, repo.Len())
	assert.Equal(t, []string{"1"}, n.added)
}

func TestApply_UnauthorizedInsertIsDropped(t *testing.T) {
	r, repo, n := newTestReconciler(t, sales, nil)

	out := r.Apply(models.OrderEvent{Type: models.EventInsert, Order: owned("1", "u2")})

	assert.Equal(t, OutcomeUnauthorized, out)
	assert.Equal(t, 0, repo.Len())
	assert.Empty(t, n.added)
}

func TestApply_AssigneeMaySee(t *testing.T) {
	r, repo, _ := newTestReconciler(t, sales, nil)
	o := owned("1", "u2")
	o.AssignedTo = &models.UserRef{ID: "u1"}

	assert.Equal(t, OutcomeInserted, r.Apply(models.OrderEvent{Type: models.EventInsert, Order: o}))
	assert.True(t, repo.Has("1"))
}

func TestApply_AdminSeesEverything(t *testing.T) {
	r, repo, _ := newTestReconciler(t, session.Context{UserID: "root", Role: session.SuperAdmin}, nil)

	assert.Equal(t, OutcomeInserted, r.Apply(models.OrderEvent{Type: models.EventInsert, Order: owned("1", "someone")}))
	assert.Equal(t, 1, repo.Len())
}

func TestApply_UpdateUpsertsAndNotifiesWhenNew(t *testing.T) {
	r, repo, n := newTestReconciler(t, sales, nil)
	_, err := repo.Upsert(owned("1", "u1"))
	require.NoError(t, err)

	changed := owned("1", "u1")
	changed.DispatchStatus = "Dispatched"
	assert.Equal(t, OutcomeUpdated, r.Apply(models.OrderEvent{Type: models.EventUpdate, Order: changed}))
	got, _ := repo.Get("1")
	assert.Equal(t, "Dispatched", got.DispatchStatus)

	assert.Equal(t, OutcomeInserted, r.Apply(models.OrderEvent{Type: models.EventUpdate, Order: owned("2", "u1")}))
	assert.Equal(t, []string{"2"}, n.added)
}

func TestApply_UpdateMatchingEvictRuleRemoves(t *testing.T) {
	pendingOnly := func(o *models.Order) bool { return o.SOStatus != models.ApprovalPending }
	r, repo, _ := newTestReconciler(t, session.Context{UserID: "p", Role: session.Admin}, pendingOnly)

	pending := owned("1", "u1")
	pending.SOStatus = models.ApprovalPending
	require.Equal(t, OutcomeInserted, r.Apply(models.OrderEvent{Type: models.EventInsert, Order: pending}))

	approved := pending.Clone()
	approved.SOStatus = models.ApprovalApproved
	assert.Equal(t, OutcomeEvicted, r.Apply(models.OrderEvent{Type: models.EventUpdate, Order: approved}))
	assert.False(t, repo.Has("1"))

	assert.Equal(t, OutcomeIgnored, r.Apply(models.OrderEvent{Type: models.EventUpdate, Order: approved}))
	assert.Equal(t, OutcomeIgnored, r.Apply(models.OrderEvent{Type: models.EventInsert, Order: owned("2", "u1")}))
}

func TestApply_ReassignedAwayIsEvicted(t *testing.T) {
	r, repo, _ := newTestReconciler(t, sales, nil)
	require.Equal(t, OutcomeInserted, r.Apply(models.OrderEvent{Type: models.EventInsert, Order: owned("1", "u1")}))

	assert.Equal(t, OutcomeEvicted, r.Apply(models.OrderEvent{Type: models.EventUpdate, Order: owned("1", "u2")}))
	assert.False(t, repo.Has("1"))
	assert.Equal(t, OutcomeUnauthorized, r.Apply(models.OrderEvent{Type: models.EventUpdate, Order: owned("1", "u2")}))
}

func TestApply_DeleteIsIdempotent(t *testing.T) {
	r, repo, _ := newTestReconciler(t, sales, nil)
	_, err := repo.Upsert(owned("1", "u1"))
	require.NoError(t, err)

	ev := models.OrderEvent{Type: models.EventDelete, ID: "1"}
	assert.Equal(t, OutcomeRemoved, r.Apply(ev))
	assert.Equal(t, OutcomeIgnored, r.Apply(ev))
	assert.Equal(t, 0, repo.Len())
}

func TestApply_InvalidEvents(t *testing.T) {
	r, repo, _ := newTestReconciler(t, sales, nil)

	assert.Equal(t, OutcomeInvalid, r.Apply(models.OrderEvent{Type: models.EventDelete}))
	assert.Equal(t, OutcomeInvalid, r.Apply(models.OrderEvent{Type: models.EventInsert, ID: "1"}))
	assert.Equal(t, OutcomeInvalid, r.Apply(models.OrderEvent{Type: "replace", Order: owned("1", "u1")}))
	assert.Equal(t, 0, repo.Len())
	assert.Equal(t, uint64(3), r.Stats()["invalid"])
}

func TestResync_ScopesToSessionAndEvictRule(t *testing.T) {
	r, repo, n := newTestReconciler(t, sales, func(o *models.Order) bool {
		return o.InstallationStatus == models.InstallationCompleted
	})
	done := owned("3", "u1")
	done.InstallationStatus = models.InstallationCompleted
	r.fetcher = &fakeFetcher{orders: []*models.Order{owned("1", "u1"), owned("2", "u2"), done, nil}}

	count, err := r.Resync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	assert.True(t, repo.Has("1"))
	assert.Equal(t, []int{1}, n.resyncs)
}

func TestResync_FailureKeepsState(t *testing.T) {
	r, repo, _ := newTestReconciler(t, sales, nil)
	_, err := repo.Upsert(owned("1", "u1"))
	require.NoError(t, err)
	r.fetcher = &fakeFetcher{err: errors.New("dial tcp: timeout")}

	_, err = r.Resync(context.Background())

	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
	assert.True(t, repo.Has("1"))
}

func waitForStream(t *testing.T, ch *fakeChannel) *fakeStream {
	t.Helper()
	select {
	case s := <-ch.streams:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription was opened")
		return nil
	}
}

func TestRun_ResyncAfterReconnectDropsMissedDelete(t *testing.T) {
	repo := repository.NewOrderRepository(quietLogger())
	fetcher := &fakeFetcher{}
	ch := newFakeChannel(0)
	n := &recordingNotifier{}
	r := NewReconciler(repo, ch, fetcher, n, quietLogger(), Config{Session: sales, RetryDelay: time.Millisecond})

	fetcher.set(owned("A", "u1"), owned("B", "u1"))
	_, err := r.Resync(context.Background())
	require.NoError(t, err)

	r.Start(context.Background())
	defer r.Close()

	first := waitForStream(t, ch)
	assert.Eventually(t, func() bool { return r.State() == Connected }, time.Second, 5*time.Millisecond)

	// B is deleted while the connection is down; no event is delivered.
	fetcher.set(owned("A", "u1"))
	require.NoError(t, first.Close())

	waitForStream(t, ch)
	assert.Eventually(t, func() bool { return !repo.Has("B") }, time.Second, 5*time.Millisecond)
	assert.True(t, repo.Has("A"))
	assert.Equal(t, Connected, r.State())
}

func TestRun_RetriedFirstConnectResyncs(t *testing.T) {
	repo := repository.NewOrderRepository(quietLogger())
	fetcher := &fakeFetcher{}
	ch := newFakeChannel(2)
	r := NewReconciler(repo, ch, fetcher, nil, quietLogger(), Config{Session: sales, RetryDelay: time.Millisecond})

	fetcher.set(owned("A", "u1"), owned("B", "u1"))
	_, err := r.Resync(context.Background())
	require.NoError(t, err)

	// B is deleted before the first subscription succeeds.
	fetcher.set(owned("A", "u1"))
	r.Start(context.Background())
	defer r.Close()

	waitForStream(t, ch)
	assert.Eventually(t, func() bool { return !repo.Has("B") }, time.Second, 5*time.Millisecond)
	assert.True(t, repo.Has("A"))
	assert.Equal(t, 3, ch.Attempts())
	assert.Equal(t, 2, fetcher.Calls())
}

func TestRun_FirstAttemptAfterLoadSkipsResync(t *testing.T) {
	repo := repository.NewOrderRepository(quietLogger())
	fetcher := &fakeFetcher{}
	ch := newFakeChannel(0)
	r := NewReconciler(repo, ch, fetcher, nil, quietLogger(), Config{Session: sales})

	fetcher.set(owned("A", "u1"))
	_, err := r.Resync(context.Background())
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Close()

	waitForStream(t, ch)
	assert.Eventually(t, func() bool { return r.State() == Connected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, fetcher.Calls())
}

func TestRefresh_WaitsForResyncAfterReconnect(t *testing.T) {
	repo := repository.NewOrderRepository(quietLogger())
	fetcher := &fakeFetcher{}
	ch := newFakeChannel(0)
	r := NewReconciler(repo, ch, fetcher, nil, quietLogger(), Config{Session: sales, RetryDelay: time.Millisecond})

	fetcher.set(owned("A", "u1"), owned("B", "u1"))
	_, err := r.Resync(context.Background())
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Close()
	waitForStream(t, ch)

	fetcher.set(owned("A", "u1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Refresh(ctx))

	assert.False(t, repo.Has("B"))
	assert.Eventually(t, func() bool { return ch.Attempts() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRefresh_FailedFetchKeepsOrders(t *testing.T) {
	repo := repository.NewOrderRepository(quietLogger())
	fetcher := &fakeFetcher{}
	ch := newFakeChannel(0)
	r := NewReconciler(repo, ch, fetcher, nil, quietLogger(), Config{Session: sales, RetryDelay: time.Millisecond})

	fetcher.set(owned("A", "u1"))
	_, err := r.Resync(context.Background())
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Close()
	waitForStream(t, ch)

	fetcher.mu.Lock()
	fetcher.err = errors.New("dial tcp: connection refused")
	fetcher.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = r.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
	assert.True(t, repo.Has("A"))
}

func TestRun_AppliesEventsAndSkipsMalformed(t *testing.T) {
	repo := repository.NewOrderRepository(quietLogger())
	ch := newFakeChannel(0)
	r := NewReconciler(repo, ch, &fakeFetcher{}, nil, quietLogger(), Config{Session: sales})
	r.Start(context.Background())
	defer r.Close()

	s := waitForStream(t, ch)
	s.msgs <- message{err: fmt.Errorf("%w: unexpected end of JSON input", models.ErrMalformedEvent)}
	s.msgs <- message{ev: models.OrderEvent{Type: models.EventInsert, Order: owned("1", "u1")}}

	assert.Eventually(t, func() bool { return repo.Has("1") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ch.Attempts(), "malformed payload must not drop the connection")
}

func TestRun_ExhaustedRetriesWaitForReconnect(t *testing.T) {
	repo := repository.NewOrderRepository(quietLogger())
	ch := newFakeChannel(3)
	n := &recordingNotifier{}
	r := NewReconciler(repo, ch, &fakeFetcher{}, n, quietLogger(), Config{
		Session:     sales,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	})
	r.Start(context.Background())
	defer r.Close()

	assert.Eventually(t, func() bool { return n.lostCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, ch.Attempts())
	n.mu.Lock()
	assert.True(t, models.IsTransient(n.lost[0]))
	n.mu.Unlock()
	assert.Equal(t, Disconnected, r.State())

	r.Reconnect()
	waitForStream(t, ch)
	assert.Eventually(t, func() bool { return r.State() == Connected }, time.Second, 5*time.Millisecond)
}

func TestRun_ReconnectAfterExhaustionResyncs(t *testing.T) {
	repo := repository.NewOrderRepository(quietLogger())
	fetcher := &fakeFetcher{}
	ch := newFakeChannel(2)
	n := &recordingNotifier{}
	r := NewReconciler(repo, ch, fetcher, n, quietLogger(), Config{
		Session:     sales,
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
	})

	fetcher.set(owned("A", "u1"), owned("B", "u1"))
	_, err := r.Resync(context.Background())
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Close()

	assert.Eventually(t, func() bool { return n.lostCount() == 1 }, time.Second, 5*time.Millisecond)
	fetcher.set(owned("A", "u1"))
	r.Reconnect()

	waitForStream(t, ch)
	assert.Eventually(t, func() bool { return !repo.Has("B") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, fetcher.Calls())
}

func TestClose_StopsLoop(t *testing.T) {
	repo := repository.NewOrderRepository(quietLogger())
	ch := newFakeChannel(0)
	r := NewReconciler(repo, ch, &fakeFetcher{}, nil, quietLogger(), Config{Session: sales})
	r.Start(context.Background())
	waitForStream(t, ch)

	r.Close()
	assert.Equal(t, Disconnected, r.State())
	r.Close()
}
