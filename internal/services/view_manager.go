package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"order_dashboard/internal/session"

	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownView   = errors.New("unknown view")
	ErrViewForbidden = errors.New("view not available for role")
)

type viewKey struct {
	userID string
	role   session.Role
	view   string
}

// ViewManager owns the view instances of all sessions. A view is created on
// first use, closed when idle, and closed with its session.
type ViewManager struct {
	deps        ViewDeps
	idleTimeout time.Duration
	logger      logrus.FieldLogger

	mu    sync.Mutex
	views map[viewKey]*OrderView
}

func NewViewManager(deps ViewDeps, idleTimeout time.Duration) *ViewManager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &ViewManager{
		deps:        deps,
		idleTimeout: idleTimeout,
		logger:      deps.Logger,
		views:       map[viewKey]*OrderView{},
	}
}

// Get returns the session's instance of the named view, loading it on first
// use. A view whose token differs from sess is replaced once the replacement
// has loaded, so writes and resyncs carry the latest token. If that load
// fails the old instance keeps serving its orders.
func (m *ViewManager) Get(ctx context.Context, sess session.Context, name string) (*OrderView, error) {
	cfg, ok := LookupView(name)
	if !ok {
		return nil, ErrUnknownView
	}
	if !cfg.Allows(sess.Role) {
		return nil, ErrViewForbidden
	}
	key := viewKey{userID: sess.UserID, role: sess.Role, view: name}

	m.mu.Lock()
	current, ok := m.views[key]
	m.mu.Unlock()
	if ok && current.sess.Token == sess.Token {
		current.touch()
		return current, nil
	}

	view := NewOrderView(cfg, sess, m.deps)
	if err := view.Load(ctx); err != nil {
		view.Close()
		if current != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{"view": name, "user_id": sess.UserID}).
				Warn("token refresh reload failed, keeping previous view")
			current.touch()
			return current, nil
		}
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.views[key]
	if ok && existing.sess.Token == sess.Token {
		// lost a concurrent load
		go view.Close()
		return existing, nil
	}
	if ok {
		go existing.Close()
	}
	m.views[key] = view
	m.logger.WithFields(logrus.Fields{"view": name, "user_id": sess.UserID}).Info("view opened")
	return view, nil
}

// CloseSession tears down every view of userID and returns how many were
// closed.
func (m *ViewManager) CloseSession(userID string) int {
	m.mu.Lock()
	var closing []*OrderView
	for key, v := range m.views {
		if key.userID == userID {
			closing = append(closing, v)
			delete(m.views, key)
		}
	}
	m.mu.Unlock()

	for _, v := range closing {
		v.Close()
	}
	return len(closing)
}

// SweepIdle closes views unused for longer than the idle timeout.
func (m *ViewManager) SweepIdle() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	now := m.deps.Now()

	m.mu.Lock()
	var closing []*OrderView
	for key, v := range m.views {
		if v.idleSince(now) > m.idleTimeout {
			closing = append(closing, v)
			delete(m.views, key)
		}
	}
	m.mu.Unlock()

	for _, v := range closing {
		m.logger.WithField("view", v.String()).Info("closing idle view")
		v.Close()
	}
	return len(closing)
}

// Run sweeps idle views until ctx is done.
func (m *ViewManager) Run(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}
	interval := m.idleTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepIdle()
		}
	}
}

func (m *ViewManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.views)
}

// Close tears down every view.
func (m *ViewManager) Close() {
	m.mu.Lock()
	views := m.views
	m.views = map[viewKey]*OrderView{}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, v := range views {
		wg.Add(1)
		go func(v *OrderView) {
			defer wg.Done()
			v.Close()
		}(v)
	}
	wg.Wait()
}
