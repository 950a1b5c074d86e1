package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"order_dashboard/internal/aggregate"
	"order_dashboard/internal/config"
	"order_dashboard/internal/filter"
	"order_dashboard/internal/middleware"
	"order_dashboard/internal/models"
	"order_dashboard/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type APIHandler struct {
	views   *services.ViewManager
	notices *services.NoticeHub
	prefs   *services.PreferenceService
	loc     *time.Location
	logger  logrus.FieldLogger
}

func NewAPIHandler(
	views *services.ViewManager,
	notices *services.NoticeHub,
	prefs *services.PreferenceService,
	loc *time.Location,
	logger logrus.FieldLogger,
) *APIHandler {
	if loc == nil {
		loc = time.Local
	}
	return &APIHandler{
		views:   views,
		notices: notices,
		prefs:   prefs,
		loc:     loc,
		logger:  logger,
	}
}

// Register mounts the authenticated API on group.
func (h *APIHandler) Register(api *gin.RouterGroup) {
	api.GET("/views", h.ListViews)

	view := api.Group("/views/:view")
	{
		view.GET("/orders", h.ListOrders)
		view.GET("/orders/:id", h.GetOrder)
		view.PUT("/orders/:id", h.UpdateOrder)
		view.DELETE("/orders/:id", h.DeleteOrder)
		view.GET("/summary", h.Summary)
		view.GET("/export", h.Export)
		view.GET("/status", h.Status)
		view.POST("/reconnect", h.Reconnect)
		view.GET("/facets", h.GetFacets)
		view.PUT("/facets", h.SaveFacets)
		view.DELETE("/facets", h.ResetFacets)
	}

	api.GET("/notices/stream", h.StreamNotices)
	api.DELETE("/session", h.EndSession)
}

// SummaryResponse carries aggregates rounded for display.
type SummaryResponse struct {
	Keys       []string                          `json:"keys"`
	Groups     map[string]aggregate.RoundedStats `json:"groups"`
	GrandTotal aggregate.RoundedStats            `json:"grandTotal"`
}

func (h *APIHandler) ListViews(c *gin.Context) {
	sess, _ := middleware.SessionFrom(c)
	names := []string{}
	for _, name := range services.ViewNames() {
		if cfg, _ := services.LookupView(name); cfg.Allows(sess.Role) {
			names = append(names, name)
		}
	}
	middleware.APIResponse(c, http.StatusOK, true, "ok", names)
}

func (h *APIHandler) ListOrders(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	facets, err := h.parseFacets(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	start, _ := strconv.Atoi(c.DefaultQuery("start", "0"))
	count, _ := strconv.Atoi(c.DefaultQuery("count", "50"))

	middleware.APIResponse(c, http.StatusOK, true, "ok", view.Query(facets, start, count))
}

func (h *APIHandler) GetOrder(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	order, found := view.Get(c.Param("id"))
	if !found {
		h.fail(c, models.ErrOrderNotFound)
		return
	}
	middleware.APIResponse(c, http.StatusOK, true, "ok", order)
}

func (h *APIHandler) UpdateOrder(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	var changes map[string]interface{}
	if err := c.ShouldBindJSON(&changes); err != nil {
		middleware.APIResponse(c, http.StatusBadRequest, false, "Invalid request format", nil)
		return
	}

	order, err := view.UpdateOrder(c.Request.Context(), c.Param("id"), changes)
	if err != nil {
		h.fail(c, err)
		return
	}
	middleware.APIResponse(c, http.StatusOK, true, "Order updated", order)
}

func (h *APIHandler) DeleteOrder(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	if err := view.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	middleware.APIResponse(c, http.StatusOK, true, "Order deleted", nil)
}

func (h *APIHandler) Summary(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	facets, err := h.parseFacets(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	res := view.Summary(facets)
	out := SummaryResponse{
		Keys:       res.Keys,
		Groups:     make(map[string]aggregate.RoundedStats, len(res.Groups)),
		GrandTotal: res.GrandTotal.Rounded(),
	}
	if out.Keys == nil {
		out.Keys = []string{}
	}
	for k, st := range res.Groups {
		out.Groups[k] = st.Rounded()
	}
	middleware.APIResponse(c, http.StatusOK, true, "ok", out)
}

func (h *APIHandler) Export(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	facets, err := h.parseFacets(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	data, err := view.Export(facets)
	if err != nil {
		config.LogError(h.logger, "handlers", "Export", view.Name(), nil, err)
		middleware.APIResponse(c, http.StatusInternalServerError, false, "Failed to build export", nil)
		return
	}
	filename := fmt.Sprintf("%s-orders-%s.xlsx", view.Name(), time.Now().In(h.loc).Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *APIHandler) Status(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	middleware.APIResponse(c, http.StatusOK, true, "ok", view.Status())
}

func (h *APIHandler) Reconnect(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	if err := view.Retry(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	middleware.APIResponse(c, http.StatusOK, true, "Reconnected", view.Status())
}

func (h *APIHandler) GetFacets(c *gin.Context) {
	sess, _ := middleware.SessionFrom(c)
	if _, ok := services.LookupView(c.Param("view")); !ok {
		h.fail(c, services.ErrUnknownView)
		return
	}
	facets, err := h.prefs.LoadFacets(c.Request.Context(), sess.UserID, c.Param("view"))
	if err != nil {
		config.LogError(h.logger, "handlers", "GetFacets", c.Param("view"), nil, err)
		middleware.APIResponse(c, http.StatusServiceUnavailable, false, "Preferences unavailable", nil)
		return
	}
	middleware.APIResponse(c, http.StatusOK, true, "ok", facets)
}

func (h *APIHandler) SaveFacets(c *gin.Context) {
	sess, _ := middleware.SessionFrom(c)
	if _, ok := services.LookupView(c.Param("view")); !ok {
		h.fail(c, services.ErrUnknownView)
		return
	}
	var facets filter.Facets
	if err := c.ShouldBindJSON(&facets); err != nil {
		middleware.APIResponse(c, http.StatusBadRequest, false, "Invalid request format", nil)
		return
	}
	if err := h.prefs.SaveFacets(c.Request.Context(), sess.UserID, c.Param("view"), facets); err != nil {
		config.LogError(h.logger, "handlers", "SaveFacets", c.Param("view"), facets, err)
		middleware.APIResponse(c, http.StatusServiceUnavailable, false, "Preferences unavailable", nil)
		return
	}
	middleware.APIResponse(c, http.StatusOK, true, "Facets saved", facets)
}

func (h *APIHandler) ResetFacets(c *gin.Context) {
	sess, _ := middleware.SessionFrom(c)
	if _, ok := services.LookupView(c.Param("view")); !ok {
		h.fail(c, services.ErrUnknownView)
		return
	}
	if err := h.prefs.ResetFacets(c.Request.Context(), sess.UserID, c.Param("view")); err != nil {
		config.LogError(h.logger, "handlers", "ResetFacets", c.Param("view"), nil, err)
		middleware.APIResponse(c, http.StatusServiceUnavailable, false, "Preferences unavailable", nil)
		return
	}
	middleware.APIResponse(c, http.StatusOK, true, "Facets reset", nil)
}

// StreamNotices pushes the user's notices as server-sent events.
func (h *APIHandler) StreamNotices(c *gin.Context) {
	sess, _ := middleware.SessionFrom(c)
	notices, cancel := h.notices.Subscribe(sess.UserID)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case n, ok := <-notices:
			if !ok {
				return false
			}
			c.SSEvent(string(n.Kind), n)
			return true
		}
	})
}

func (h *APIHandler) EndSession(c *gin.Context) {
	sess, _ := middleware.SessionFrom(c)
	closed := h.views.CloseSession(sess.UserID)
	middleware.APIResponse(c, http.StatusOK, true, "Session closed", gin.H{"closedViews": closed})
}

func (h *APIHandler) view(c *gin.Context) (*services.OrderView, bool) {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		middleware.APIResponse(c, http.StatusUnauthorized, false, "Missing session", nil)
		return nil, false
	}
	v, err := h.views.Get(c.Request.Context(), sess, c.Param("view"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return v, true
}

func (h *APIHandler) parseFacets(c *gin.Context) (filter.Facets, error) {
	f := filter.Facets{
		Query:           c.Query("q"),
		Approval:        c.Query("approval"),
		Production:      c.Query("production"),
		Installation:    c.Query("installation"),
		Accounts:        c.Query("accounts"),
		Dispatch:        c.Query("dispatch"),
		Billing:         c.Query("billing"),
		ProductCategory: c.Query("productCategory"),
	}
	var err error
	if f.StartDate, err = h.parseDay(c, "startDate"); err != nil {
		return f, err
	}
	if f.EndDate, err = h.parseDay(c, "endDate"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *APIHandler) parseDay(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, h.loc)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: key, Reason: "must be YYYY-MM-DD"}
	}
	return t, nil
}

// fail maps the error taxonomy onto HTTP responses.
func (h *APIHandler) fail(c *gin.Context, err error) {
	var (
		validation *models.ValidationError
		rejection  *models.UpstreamRejection
	)
	sess, _ := middleware.SessionFrom(c)
	entry := h.logger.WithFields(logrus.Fields{"user_id": sess.UserID, "view": c.Param("view")})

	switch {
	case errors.As(err, &validation):
		entry.WithError(err).Warn("request rejected")
		middleware.APIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	case errors.Is(err, models.ErrOrderNotFound), errors.Is(err, services.ErrUnknownView):
		middleware.APIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, services.ErrViewForbidden):
		middleware.APIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.As(err, &rejection):
		entry.WithError(err).Warn("upstream rejected write")
		status := rejection.Status
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
		msg := rejection.Message
		if msg == "" {
			msg = rejection.Error()
		}
		middleware.APIResponse(c, status, false, msg, nil)
	case models.IsTransient(err):
		entry.WithError(err).Error("upstream unavailable")
		middleware.APIResponse(c, http.StatusServiceUnavailable, false, err.Error(), gin.H{"retryable": true})
	default:
		config.LogError(h.logger, "handlers", "fail", c.FullPath(), nil, err)
		middleware.APIResponse(c, http.StatusInternalServerError, false, "Internal server error", nil)
	}
}

// Health reports liveness. It is mounted outside the authenticated group.
func Health(c *gin.Context) {
	middleware.APIResponse(c, http.StatusOK, true, "Server OK!", nil)
}
