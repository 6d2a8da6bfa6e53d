// Package callback serves the return callbacks the remote payment pages send
// the customer back to, plus the customer-initiated payment retry.
package callback

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/checkout-gateway/internal/order"
	"github.com/yourorg/checkout-gateway/internal/payment"
	"github.com/yourorg/checkout-gateway/internal/reporting"
)

// HomePath is where callbacks for unknown orders end up.
const HomePath = "/"

// CompletedPath returns the checkout-completed page of an order.
func CompletedPath(orderID int64) string {
	return fmt.Sprintf("/checkout/completed/%d", orderID)
}

// Handler resolves the payment method from the route and delegates the
// reconciliation to it. Remote failures never reach the browser; they end
// as order notes and a redirect to the checkout-completed page.
type Handler struct {
	registry *payment.Registry
	journal  *reporting.Journal
	reporter *reporting.RetrospectiveReporter
	log      *slog.Logger
}

// NewHandler creates a Handler. journal may be nil, in which case the
// retrospective endpoint reports no events.
func NewHandler(registry *payment.Registry, journal *reporting.Journal, logger *slog.Logger) *Handler {
	if registry == nil {
		panic("callback: payment registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		journal:  journal,
		reporter: reporting.NewRetrospectiveReporter(),
		log:      logger,
	}
}

// Register mounts the handlers on r.
func (h *Handler) Register(r gin.IRouter) {
	plugins := r.Group("/Plugins/:route")
	plugins.GET("/Payed", h.Payed)
	plugins.GET("/Canceled", h.Canceled)
	plugins.POST("/Pay", h.Pay)

	r.GET("/admin/payments/retrospective", h.Retrospective)
}

// Payed handles GET /Plugins/<route>/Payed?orderid=<guid>.
func (h *Handler) Payed(c *gin.Context) {
	m, o, ok := h.resolve(c)
	if !ok {
		return
	}
	res, err := m.CompletePayment(c.Request.Context(), o)
	if err != nil {
		h.fail(c, m, o, "paid callback", err)
		return
	}
	h.log.Debug("paid callback reconciled", "gateway", m.SystemName(), "order_id", o.ID, "outcome", res.Outcome)
	c.Redirect(http.StatusFound, CompletedPath(o.ID))
}

// Canceled handles GET /Plugins/<route>/Canceled?orderid=<guid>.
func (h *Handler) Canceled(c *gin.Context) {
	m, o, ok := h.resolve(c)
	if !ok {
		return
	}
	if _, err := m.CancelPayment(c.Request.Context(), o); err != nil {
		h.fail(c, m, o, "cancel callback", err)
		return
	}
	c.Redirect(http.StatusFound, CompletedPath(o.ID))
}

// Pay handles POST /Plugins/<route>/Pay?orderid=<guid>, letting the customer
// retry a payment that was never completed.
func (h *Handler) Pay(c *gin.Context) {
	m, o, ok := h.resolve(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if o.IsPaid() {
		c.Redirect(http.StatusFound, CompletedPath(o.ID))
		return
	}
	allowed, err := m.CanRePostProcessPayment(ctx, o)
	if err != nil {
		h.fail(c, m, o, "re-post check", err)
		return
	}
	if !allowed {
		c.Redirect(http.StatusFound, CompletedPath(o.ID))
		return
	}
	res, err := m.PostProcessPayment(ctx, o)
	if err != nil {
		h.fail(c, m, o, "re-post", err)
		return
	}
	if res.Redirect() {
		c.Redirect(http.StatusFound, res.RedirectURL)
		return
	}
	c.Redirect(http.StatusFound, CompletedPath(o.ID))
}

// Retrospective handles GET /admin/payments/retrospective[?gateway=<name>].
func (h *Handler) Retrospective(c *gin.Context) {
	var entries []reporting.LogEntry
	if h.journal != nil {
		entries = h.journal.Filter(c.Query("gateway"))
	}
	report, err := h.reporter.GenerateRetrospective(entries)
	if err != nil {
		h.log.Error("failed to generate retrospective", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate retrospective"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// resolve loads the method for the route and the order for the orderid
// query parameter. It writes the response and returns false when either
// cannot be resolved.
func (h *Handler) resolve(c *gin.Context) (payment.Method, *order.Order, bool) {
	route := c.Param("route")
	m, ok := h.registry.ByRoute(route)
	if !ok || !m.Enabled(c.Request.Context()) {
		name := route
		if ok {
			name = m.FriendlyName()
		}
		h.log.Warn("payment method unavailable", "route", route)
		c.String(http.StatusServiceUnavailable, "%s module cannot be loaded", name)
		return nil, nil, false
	}

	o, err := m.LookupOrder(c.Request.Context(), c.Query("orderid"))
	if errors.Is(err, order.ErrNotFound) {
		h.log.Debug("callback for unknown order", "route", route, "orderid", c.Query("orderid"))
		c.Redirect(http.StatusFound, HomePath)
		return nil, nil, false
	}
	if err != nil {
		h.log.Error("failed to load order", "route", route, "err", err)
		c.String(http.StatusInternalServerError, "internal error")
		return nil, nil, false
	}
	return m, o, true
}

func (h *Handler) fail(c *gin.Context, m payment.Method, o *order.Order, what string, err error) {
	h.log.Error(what+" failed", "gateway", m.SystemName(), "order_id", o.ID, "err", err)
	c.String(http.StatusInternalServerError, "internal error")
}
