package services

import (
	"context"

	"order_dashboard/internal/models"
	"order_dashboard/internal/realtime"
	"order_dashboard/internal/redis"
	"order_dashboard/internal/repository"
	"order_dashboard/internal/session"

	"github.com/sirupsen/logrus"
)

// APIFetcher is the subset of the upstream client used for bulk fetches.
type APIFetcher interface {
	FetchOrders(ctx context.Context, token string) ([]*models.Order, error)
}

// APISource bulk-fetches orders from the upstream API with the session's
// token.
type APISource struct {
	client APIFetcher
}

func NewAPISource(client APIFetcher) *APISource {
	return &APISource{client: client}
}

func (s *APISource) FetchOrders(ctx context.Context, sess session.Context) ([]*models.Order, error) {
	return s.client.FetchOrders(ctx, sess.Token)
}

// DatabaseSource bulk-fetches from the order snapshot table. Non-admin
// sessions only read their own rows.
type DatabaseSource struct {
	repo   repository.SnapshotRepository
	logger logrus.FieldLogger
}

func NewDatabaseSource(repo repository.SnapshotRepository, logger logrus.FieldLogger) *DatabaseSource {
	return &DatabaseSource{repo: repo, logger: logger}
}

func (s *DatabaseSource) FetchOrders(ctx context.Context, sess session.Context) ([]*models.Order, error) {
	var (
		rows []*models.OrderSnapshot
		err  error
	)
	if sess.IsAdmin() {
		rows, err = s.repo.GetAll(ctx)
	} else {
		rows, err = s.repo.GetVisibleTo(ctx, sess.UserID)
	}
	if err != nil {
		return nil, &models.TransientNetworkError{Op: "load order snapshots", Err: err}
	}

	orders := make([]*models.Order, 0, len(rows))
	for _, row := range rows {
		o, err := row.Order()
		if err != nil {
			s.logger.WithError(err).WithField("order_id", row.ID).Warn("skipping unreadable snapshot")
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// RedisChannel subscribes views to the shared order event channel.
func RedisChannel(client *redis.Client, channel string) realtime.Channel {
	return realtime.ChannelFunc(func(ctx context.Context) (realtime.Stream, error) {
		stream, err := client.SubscribeOrderEvents(ctx, channel)
		if err != nil {
			return nil, &models.TransientNetworkError{Op: "subscribe " + channel, Err: err}
		}
		return stream, nil
	})
}
