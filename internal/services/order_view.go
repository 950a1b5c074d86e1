package services

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"order_dashboard/internal/aggregate"
	"order_dashboard/internal/filter"
	"order_dashboard/internal/models"
	"order_dashboard/internal/realtime"
	"order_dashboard/internal/repository"
	"order_dashboard/internal/session"

	"github.com/sirupsen/logrus"
)

// OrderWriter forwards user edits to the upstream API.
type OrderWriter interface {
	UpdateOrder(ctx context.Context, token, id string, changes map[string]interface{}) (*models.Order, error)
	DeleteOrder(ctx context.Context, token, id string) error
}

// ViewDeps are the collaborators shared by every view instance.
type ViewDeps struct {
	Fetcher     realtime.Fetcher
	Channel     realtime.Channel
	Writer      OrderWriter
	Notices     *NoticeHub
	Export      *ExportService
	Location    *time.Location
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      logrus.FieldLogger
	Now         func() time.Time
}

// ViewStatus is the connection and content state of a view.
type ViewStatus struct {
	View     string            `json:"view"`
	State    string            `json:"state"`
	Orders   int               `json:"orders"`
	Version  uint64            `json:"version"`
	Outcomes map[string]uint64 `json:"outcomes"`
}

// OrderView is one role screen for one session: its own repository fed by
// a bulk fetch and a realtime reconciler, queried through the filter and
// aggregation engines.
type OrderView struct {
	cfg        ViewConfig
	sess       session.Context
	repo       repository.OrderRepository
	reconciler *realtime.Reconciler
	writer     OrderWriter
	export     *ExportService
	loc        *time.Location
	now        func() time.Time
	logger     logrus.FieldLogger

	lastUsed atomic.Int64
}

func NewOrderView(cfg ViewConfig, sess session.Context, deps ViewDeps) *OrderView {
	logger := deps.Logger.WithFields(logrus.Fields{
		"view":    cfg.Name,
		"user_id": sess.UserID,
		"role":    sess.Role,
	})
	repo := repository.NewOrderRepository(logger)

	var notifier realtime.Notifier
	if deps.Notices != nil {
		notifier = deps.Notices.Notifier(sess.UserID, cfg.Name)
	}
	reconciler := realtime.NewReconciler(repo, deps.Channel, deps.Fetcher, notifier, logger, realtime.Config{
		Session:     sess,
		Evict:       cfg.Evict,
		MaxAttempts: deps.MaxAttempts,
		RetryDelay:  deps.RetryDelay,
	})

	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	export := deps.Export
	if export == nil {
		export = NewExportService(loc)
	}

	v := &OrderView{
		cfg:        cfg,
		sess:       sess,
		repo:       repo,
		reconciler: reconciler,
		writer:     deps.Writer,
		export:     export,
		loc:        loc,
		now:        now,
		logger:     logger,
	}
	v.touch()
	return v
}

// Load performs the initial bulk fetch and starts live updates. A failed
// fetch leaves the view empty and returns a TransientNetworkError.
func (v *OrderView) Load(ctx context.Context) error {
	n, err := v.reconciler.Resync(ctx)
	if err != nil {
		return err
	}
	v.logger.WithField("orders", n).Info("view loaded")
	v.reconciler.Start(context.Background())
	return nil
}

// Retry forces the push channel to reconnect and waits for the refetch that
// follows. Existing orders stay visible if it fails.
func (v *OrderView) Retry(ctx context.Context) error {
	v.touch()
	return v.reconciler.Refresh(ctx)
}

func (v *OrderView) options() filter.Options {
	return filter.Options{Comparator: v.cfg.Comparator, Location: v.loc}
}

// Visible returns the filtered, sorted orders for facets.
func (v *OrderView) Visible(f filter.Facets) []*models.Order {
	v.touch()
	return filter.Apply(v.repo.GetAll(), f.Merge(v.cfg.BaseFacets), v.sess, v.options())
}

func (v *OrderView) Query(f filter.Facets, start, count int) filter.Page {
	return filter.Window(v.Visible(f), start, count)
}

// Summary aggregates the same subset Query would show.
func (v *OrderView) Summary(f filter.Facets) aggregate.Result {
	return aggregate.Aggregate(v.Visible(f), v.cfg.GroupBy, v.now())
}

func (v *OrderView) Export(f filter.Facets) ([]byte, error) {
	orders := v.Visible(f)
	return v.export.Workbook(orders, aggregate.Aggregate(orders, v.cfg.GroupBy, v.now()))
}

func (v *OrderView) Get(id string) (*models.Order, bool) {
	v.touch()
	return v.repo.Get(id)
}

// UpdateOrder forwards changes upstream and applies the authoritative
// response through the same rules as a realtime update. Nothing changes
// locally when the upstream rejects the write.
func (v *OrderView) UpdateOrder(ctx context.Context, id string, changes map[string]interface{}) (*models.Order, error) {
	v.touch()
	if !v.repo.Has(id) {
		return nil, models.ErrOrderNotFound
	}
	updated, err := v.writer.UpdateOrder(ctx, v.sess.Token, id, changes)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, &models.UpstreamRejection{Status: http.StatusBadGateway, Message: "upstream returned no order"}
	}
	if updated.ID == "" {
		updated.ID = id
	}
	outcome := v.reconciler.Apply(models.OrderEvent{Type: models.EventUpdate, Order: updated})
	v.logger.WithFields(logrus.Fields{"order_id": id, "outcome": outcome.String()}).Info("order updated")
	return updated, nil
}

func (v *OrderView) DeleteOrder(ctx context.Context, id string) error {
	v.touch()
	if !v.repo.Has(id) {
		return models.ErrOrderNotFound
	}
	if err := v.writer.DeleteOrder(ctx, v.sess.Token, id); err != nil {
		return err
	}
	v.repo.Remove(id)
	v.logger.WithField("order_id", id).Info("order deleted")
	return nil
}

func (v *OrderView) Status() ViewStatus {
	return ViewStatus{
		View:     v.cfg.Name,
		State:    v.reconciler.State().String(),
		Orders:   v.repo.Len(),
		Version:  v.repo.Version(),
		Outcomes: v.reconciler.Stats(),
	}
}

func (v *OrderView) Session() session.Context { return v.sess }

func (v *OrderView) Name() string { return v.cfg.Name }

// Close stops live updates. The view must not be used afterwards.
func (v *OrderView) Close() {
	v.reconciler.Close()
	v.logger.Debug("view closed")
}

func (v *OrderView) touch() {
	v.lastUsed.Store(v.now().UnixNano())
}

func (v *OrderView) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, v.lastUsed.Load()))
}

func (v *OrderView) String() string {
	return fmt.Sprintf("%s/%s", v.sess.UserID, v.cfg.Name)
}
