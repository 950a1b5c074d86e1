package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"order_dashboard/internal/models"
	"order_dashboard/internal/realtime"
	"order_dashboard/internal/session"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type stubFetcher struct {
	mu     sync.Mutex
	orders []*models.Order
	err    error
	tokens []string
}

func (f *stubFetcher) FetchOrders(ctx context.Context, sess session.Context) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, sess.Token)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.Order, len(f.orders))
	for i, o := range f.orders {
		out[i] = o.Clone()
	}
	return out, nil
}

// idleStream stays connected and never delivers anything.
type idleStream struct {
	events chan models.OrderEvent
	closed chan struct{}
	once   sync.Once
}

func (s *idleStream) Next(ctx context.Context) (models.OrderEvent, error) {
	select {
	case <-ctx.Done():
		return models.OrderEvent{}, ctx.Err()
	case <-s.closed:
		return models.OrderEvent{}, io.EOF
	case ev := <-s.events:
		return ev, nil
	}
}

func (s *idleStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type stubChannel struct {
	mu      sync.Mutex
	streams []*idleStream
}

func (c *stubChannel) Subscribe(ctx context.Context) (realtime.Stream, error) {
	s := &idleStream{events: make(chan models.OrderEvent, 8), closed: make(chan struct{})}
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

func (c *stubChannel) latest() *idleStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.streams) == 0 {
		return nil
	}
	return c.streams[len(c.streams)-1]
}

type stubWriter struct {
	mu        sync.Mutex
	updateErr error
	deleteErr error
	respond   func(id string, changes map[string]interface{}) *models.Order
	deleted   []string
}

func (w *stubWriter) UpdateOrder(ctx context.Context, token, id string, changes map[string]interface{}) (*models.Order, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.updateErr != nil {
		return nil, w.updateErr
	}
	return w.respond(id, changes), nil
}

func (w *stubWriter) DeleteOrder(ctx context.Context, token, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deleteErr != nil {
		return w.deleteErr
	}
	w.deleted = append(w.deleted, id)
	return nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

var errStoreDown = errors.New("store down")

func fixedNow() time.Time {
	return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
}

func testOrder(id, owner string) *models.Order {
	return &models.Order{
		ID:        id,
		OrderID:   "SO-" + id,
		CreatedBy: models.UserRef{ID: owner, Username: owner + "-name"},
		SODate:    models.NewDate(fixedNow().AddDate(0, 0, -5)),
	}
}

func testDeps(fetcher realtime.Fetcher, channel realtime.Channel, writer OrderWriter, notices *NoticeHub) ViewDeps {
	return ViewDeps{
		Fetcher:     fetcher,
		Channel:     channel,
		Writer:      writer,
		Notices:     notices,
		Location:    time.UTC,
		MaxAttempts: 2,
		RetryDelay:  time.Millisecond,
		Logger:      quietLogger(),
		Now:         fixedNow,
	}
}
