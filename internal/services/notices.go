package services

import (
	"fmt"
	"sync"
	"time"

	"order_dashboard/internal/models"
	"order_dashboard/internal/realtime"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type NoticeKind string

const (
	NoticeNewOrder       NoticeKind = "new_order"
	NoticeConnectionLost NoticeKind = "connection_lost"
	NoticeSynced         NoticeKind = "synced"
)

// Notice is a non-blocking, user-visible message.
type Notice struct {
	ID        string     `json:"id"`
	Kind      NoticeKind `json:"kind"`
	View      string     `json:"view"`
	Message   string     `json:"message"`
	OrderID   string     `json:"orderId,omitempty"`
	Retryable bool       `json:"retryable"`
	At        time.Time  `json:"at"`
}

// NoticeHub fans notices out to every open stream of a user. Slow streams
// lose notices rather than block the publisher.
type NoticeHub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Notice]struct{}
	buffer int
	logger logrus.FieldLogger
}

func NewNoticeHub(buffer int, logger logrus.FieldLogger) *NoticeHub {
	if buffer <= 0 {
		buffer = 32
	}
	return &NoticeHub{
		subs:   map[string]map[chan Notice]struct{}{},
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns a channel of notices for userID and a cancel func that
// must be called when the reader goes away.
func (h *NoticeHub) Subscribe(userID string) (<-chan Notice, func()) {
	ch := make(chan Notice, h.buffer)
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = map[chan Notice]struct{}{}
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(ch)
		})
	}
}

func (h *NoticeHub) Publish(userID string, n Notice) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- n:
		default:
			h.logger.WithFields(logrus.Fields{"user_id": userID, "kind": n.Kind}).Warn("notice dropped for slow subscriber")
		}
	}
}

// Notifier adapts the hub to a view's reconciler.
func (h *NoticeHub) Notifier(userID, view string) realtime.Notifier {
	return &viewNotifier{hub: h, userID: userID, view: view}
}

type viewNotifier struct {
	hub    *NoticeHub
	userID string
	view   string
}

func (n *viewNotifier) OrderAdded(o *models.Order) {
	label := o.OrderID
	if label == "" {
		label = o.ID
	}
	n.hub.Publish(n.userID, Notice{
		Kind:    NoticeNewOrder,
		View:    n.view,
		Message: fmt.Sprintf("New order %s received", label),
		OrderID: o.ID,
	})
}

func (n *viewNotifier) ConnectionLost(err error) {
	n.hub.Publish(n.userID, Notice{
		Kind:      NoticeConnectionLost,
		View:      n.view,
		Message:   fmt.Sprintf("Live updates unavailable: %v", err),
		Retryable: true,
	})
}

func (n *viewNotifier) Resynced(count int) {
	n.hub.Publish(n.userID, Notice{
		Kind:    NoticeSynced,
		View:    n.view,
		Message: fmt.Sprintf("%d orders loaded", count),
	})
}
