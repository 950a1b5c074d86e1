package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order_dashboard/internal/models"
	"order_dashboard/internal/repository"

	"github.com/sirupsen/logrus"
)

// EventPublisher announces order changes on the push channel.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, channel string, event models.OrderEvent) error
}

// DatabaseWriter applies edits to the order snapshot table and announces
// them, standing in for the upstream API when ORDER_SOURCE=database.
type DatabaseWriter struct {
	snapshots repository.SnapshotRepository
	events    EventPublisher
	channel   string
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewDatabaseWriter(snapshots repository.SnapshotRepository, events EventPublisher, channel string, logger logrus.FieldLogger) *DatabaseWriter {
	return &DatabaseWriter{
		snapshots: snapshots,
		events:    events,
		channel:   channel,
		logger:    logger,
		now:       time.Now,
	}
}

// UpdateOrder merges changes into the stored order. Identity keys cannot be
// changed.
func (w *DatabaseWriter) UpdateOrder(ctx context.Context, token, id string, changes map[string]interface{}) (*models.Order, error) {
	row, err := w.snapshots.GetByID(ctx, id)
	if err != nil {
		return nil, w.storeError("load order", err)
	}

	doc := map[string]interface{}{}
	if err := json.Unmarshal(row.Payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}
	for k, v := range changes {
		switch k {
		case "_id", "id", "ownerId", "assigneeId":
			continue
		}
		doc[k] = v
	}
	doc["updatedAt"] = w.now().UTC().Format(time.RFC3339Nano)

	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, &models.ValidationError{Field: "body", Reason: err.Error()}
	}
	var order models.Order
	if err := json.Unmarshal(merged, &order); err != nil {
		return nil, &models.ValidationError{Field: "body", Reason: err.Error()}
	}
	order.ID = id
	order.OwnerID, order.AssigneeID = "", ""
	order.Normalize()

	snapshot, err := models.NewOrderSnapshot(&order)
	if err != nil {
		return nil, err
	}
	if err := w.snapshots.Save(ctx, snapshot); err != nil {
		return nil, w.storeError("save order", err)
	}

	w.publish(ctx, models.OrderEvent{Type: models.EventUpdate, Order: &order})
	return &order, nil
}

func (w *DatabaseWriter) DeleteOrder(ctx context.Context, token, id string) error {
	if err := w.snapshots.Delete(ctx, id); err != nil {
		return w.storeError("delete order", err)
	}
	w.publish(ctx, models.OrderEvent{Type: models.EventDelete, ID: id})
	return nil
}

// publish failures only cost other views an event; their next resync
// catches up.
func (w *DatabaseWriter) publish(ctx context.Context, event models.OrderEvent) {
	if err := w.events.PublishOrderEvent(ctx, w.channel, event); err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"event":    event.Type,
			"order_id": event.OrderKey(),
		}).Warn("failed to announce order change")
	}
}

func (w *DatabaseWriter) storeError(op string, err error) error {
	if errors.Is(err, models.ErrOrderNotFound) {
		return err
	}
	return &models.TransientNetworkError{Op: op, Err: err}
}
