package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"order_dashboard/internal/models"
	"order_dashboard/internal/repository"
	"order_dashboard/internal/session"

	"github.com/sirupsen/logrus"
)

// Stream is one live subscription to the push channel.
type Stream interface {
	Next(ctx context.Context) (models.OrderEvent, error)
	Close() error
}

// Channel opens subscriptions. A returned Stream is connected.
type Channel interface {
	Subscribe(ctx context.Context) (Stream, error)
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context) (Stream, error)

func (f ChannelFunc) Subscribe(ctx context.Context) (Stream, error) { return f(ctx) }

// Fetcher performs the bulk fetch used for the initial load and resyncs.
type Fetcher interface {
	FetchOrders(ctx context.Context, sess session.Context) ([]*models.Order, error)
}

// EvictRule reports whether an order has left the view's queue.
type EvictRule func(o *models.Order) bool

// Notifier receives the user-visible side effects of reconciliation.
type Notifier interface {
	OrderAdded(order *models.Order)
	ConnectionLost(err error)
	Resynced(count int)
}

type Config struct {
	Session     session.Context
	Evict       EvictRule
	MaxAttempts int
	RetryDelay  time.Duration
}

// Reconciler applies push-channel events to a view's repository and keeps
// the subscription alive. The channel has no replay, so every connect is
// followed by a full resync, except a first connect that succeeds on its
// first attempt right after the initial load.
type Reconciler struct {
	repo     repository.OrderRepository
	channel  Channel
	fetcher  Fetcher
	notifier Notifier
	logger   logrus.FieldLogger
	cfg      Config

	reconnect chan struct{}

	mu            sync.Mutex
	state         State
	connectedOnce bool
	loaded        bool
	waiters       []chan error
	counts        map[Outcome]uint64
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewReconciler(repo repository.OrderRepository, channel Channel, fetcher Fetcher, notifier Notifier, logger logrus.FieldLogger, cfg Config) *Reconciler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Reconciler{
		repo:      repo,
		channel:   channel,
		fetcher:   fetcher,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
		reconnect: make(chan struct{}, 1),
		counts:    map[Outcome]uint64{},
	}
}

func (r *Reconciler) evicted(o *models.Order) bool {
	return r.cfg.Evict != nil && r.cfg.Evict(o)
}

// Apply reconciles a single event with the repository.
func (r *Reconciler) Apply(ev models.OrderEvent) Outcome {
	outcome := r.apply(ev)
	r.mu.Lock()
	r.counts[outcome]++
	r.mu.Unlock()

	entry := r.logger.WithFields(logrus.Fields{
		"event":    ev.Type,
		"order_id": ev.OrderKey(),
		"outcome":  outcome.String(),
	})
	if outcome == OutcomeUnauthorized {
		entry.WithError(models.ErrAuthorizationMismatch).Debug("dropped realtime event")
	} else {
		entry.Debug("applied realtime event")
	}
	return outcome
}

func (r *Reconciler) apply(ev models.OrderEvent) Outcome {
	id := ev.OrderKey()
	if id == "" {
		return OutcomeInvalid
	}

	// A delete can only touch a copy this view already holds.
	if ev.Type == models.EventDelete {
		if r.repo.Remove(id) {
			return OutcomeRemoved
		}
		return OutcomeIgnored
	}

	if ev.Order == nil || ev.Order.ID == "" {
		return OutcomeInvalid
	}

	owner, assignee := ev.Owners()
	authorized := r.cfg.Session.CanSee(owner, assignee)

	switch ev.Type {
	case models.EventInsert:
		if !authorized {
			return OutcomeUnauthorized
		}
		if r.repo.Has(id) {
			return OutcomeDuplicate
		}
		if r.evicted(ev.Order) {
			return OutcomeIgnored
		}
		return r.upsert(ev.Order)

	case models.EventUpdate:
		if !authorized || r.evicted(ev.Order) {
			if r.repo.Remove(id) {
				return OutcomeEvicted
			}
			if !authorized {
				return OutcomeUnauthorized
			}
			return OutcomeIgnored
		}
		return r.upsert(ev.Order)
	}
	return OutcomeInvalid
}

func (r *Reconciler) upsert(o *models.Order) Outcome {
	res, err := r.repo.Upsert(o)
	if err != nil {
		return OutcomeInvalid
	}
	if res == repository.Inserted {
		stored, ok := r.repo.Get(o.ID)
		if !ok {
			stored = o
		}
		r.notifier.OrderAdded(stored)
		return OutcomeInserted
	}
	return OutcomeUpdated
}

// Resync replaces the repository with a fresh bulk fetch, scoped by the same
// visibility and eviction rules as realtime events. On failure the
// repository is left untouched.
func (r *Reconciler) Resync(ctx context.Context) (int, error) {
	orders, err := r.fetcher.FetchOrders(ctx, r.cfg.Session)
	if err != nil {
		if !models.IsTransient(err) {
			err = &models.TransientNetworkError{Op: "fetch orders", Err: err}
		}
		return 0, err
	}
	visible := make([]*models.Order, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		o.Normalize()
		if !r.cfg.Session.CanSee(o.OwnerID, o.AssigneeID) || r.evicted(o) {
			continue
		}
		visible = append(visible, o)
	}
	n := r.repo.ReplaceAll(visible)
	r.mu.Lock()
	r.loaded = true
	r.mu.Unlock()
	r.notifier.Resynced(n)
	return n, nil
}

// Start runs the subscription loop in the background until Close.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.mu.Lock()
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WithError(err).Error("realtime reconciler stopped")
		}
	}()
}

// Close tears down the subscription and waits for the loop to exit.
func (r *Reconciler) Close() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Reconnect asks the loop to drop the current subscription (or stop waiting
// after exhausted retries) and connect again.
func (r *Reconciler) Reconnect() {
	select {
	case r.reconnect <- struct{}{}:
	default:
	}
}

// Refresh drops the current subscription and waits for the resync that
// follows the next connect. Existing orders stay visible if it fails.
func (r *Reconciler) Refresh(ctx context.Context) error {
	wait := make(chan error, 1)
	r.mu.Lock()
	r.waiters = append(r.waiters, wait)
	r.mu.Unlock()
	r.Reconnect()

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) settle(err error) {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()
	for _, w := range waiters {
		w <- err
	}
}

// Run owns the connection state machine. It returns only when ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		stream, err := r.connect(ctx)
		if err != nil {
			r.setState(Disconnected)
			r.settle(err)
			return err
		}
		err = r.consume(ctx, stream)
		_ = stream.Close()
		r.setState(Disconnected)
		if ctx.Err() != nil {
			r.settle(ctx.Err())
			return ctx.Err()
		}
		if err != nil {
			r.logger.WithError(err).Warn("realtime connection lost")
		}
	}
}

func (r *Reconciler) connect(ctx context.Context) (Stream, error) {
	failed := false
	for {
		var lastErr error
		for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
			r.setState(Connecting)
			stream, err := r.channel.Subscribe(ctx)
			if err == nil {
				r.connected(ctx, failed)
				return stream, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			failed = true
			r.setState(Disconnected)
			r.logger.WithError(err).WithField("attempt", attempt).Warn("realtime subscribe failed")
			if attempt < r.cfg.MaxAttempts {
				if err := sleep(ctx, r.cfg.RetryDelay); err != nil {
					return nil, err
				}
			}
		}

		lost := &models.TransientNetworkError{Op: "subscribe", Err: lastErr}
		r.notifier.ConnectionLost(lost)
		r.settle(lost)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.reconnect:
		}
	}
}

// connected resyncs unless this is an unfailed first connect right after the
// initial load with no refresh pending.
func (r *Reconciler) connected(ctx context.Context, failed bool) {
	r.mu.Lock()
	resync := r.connectedOnce || failed || !r.loaded || len(r.waiters) > 0
	r.connectedOnce = true
	r.mu.Unlock()
	r.setState(Connected)

	if !resync {
		return
	}
	_, err := r.Resync(ctx)
	if err != nil {
		r.logger.WithError(err).Error("resync after connect failed")
		r.notifier.ConnectionLost(err)
	}
	r.settle(err)
}

func (r *Reconciler) consume(ctx context.Context, stream Stream) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.reconnect:
			cancel()
		case <-streamCtx.Done():
		}
	}()

	for {
		ev, err := stream.Next(streamCtx)
		if err != nil {
			if errors.Is(err, models.ErrMalformedEvent) {
				r.logger.WithError(err).Warn("skipping realtime message")
				r.mu.Lock()
				r.counts[OutcomeInvalid]++
				r.mu.Unlock()
				continue
			}
			return err
		}
		r.Apply(ev)
	}
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	if prev != s {
		r.logger.WithFields(logrus.Fields{"from": prev.String(), "to": s.String()}).Info("realtime state changed")
	}
}

// State returns the current connection state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stats returns how many events ended in each outcome.
func (r *Reconciler) Stats() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint64, len(r.counts))
	for k, v := range r.counts {
		out[k.String()] = v
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopNotifier struct{}

func (nopNotifier) OrderAdded(*models.Order) {}
func (nopNotifier) ConnectionLost(error)     {}
func (nopNotifier) Resynced(int)             {}
