package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/auth"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/httpx"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

type transitionStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type refundOrderRequest struct {
	RefundAmount decimal.Decimal `json:"refundAmount"`
	RefundReason string          `json:"refundReason"`
}

type approveReturnRequest struct {
	OrderID string `json:"orderId"`
}

// AdminOrderHandlers exposes back-office order operations to staff and admins.
type AdminOrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	returns services.ReturnService
	opts    handlerOptions
}

// NewAdminOrderHandlers constructs the admin order handlers.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, returns services.ReturnService, opts ...HandlerOption) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:   authn,
		orders:  orders,
		returns: returns,
		opts:    applyHandlerOptions(opts),
	}
}

// Routes registers the /admin endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	for _, mw := range h.opts.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}:status", h.transitionStatus)
	r.Post("/orders/{orderID}:cancel", h.cancelOrder)
	r.Post("/orders/{orderID}:refund", h.refundOrder)
	r.Post("/orders/{orderID}:complete-return", h.completeReturn)
	r.Post("/returns/{returnRequestID}:approve", h.approveReturn)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	filter, ok := parseOrderListFilter(w, r)
	if !ok {
		return
	}
	filter.CustomerID = strings.TrimSpace(r.URL.Query().Get("customerId"))

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{OrderID: orderID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	tagOrder(ctx, order)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}
	var req transitionStatusRequest
	if !decodeBody(ctx, w, r, maxOrderActionBodySize, false, &req) {
		return
	}
	target, ok := parseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionStatusCommand{
		OrderID: orderID,
		Target:  target,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	tagOrder(ctx, order)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}
	var req reasonRequest
	if !decodeBody(ctx, w, r, maxOrderActionBodySize, true, &req) {
		return
	}
	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{OrderID: orderID, Reason: req.Reason})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	tagOrder(ctx, order)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeUnavailable(ctx, w, "return")
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}
	var req refundOrderRequest
	if !decodeBody(ctx, w, r, maxOrderActionBodySize, false, &req) {
		return
	}

	outcome, err := h.returns.RefundOrder(ctx, services.RefundOrderCommand{
		OrderID: orderID,
		Amount:  domain.DecimalToMinor(req.RefundAmount),
		Reason:  req.RefundReason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, outcome)
}

func (h *AdminOrderHandlers) completeReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeUnavailable(ctx, w, "return")
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.returns.CompleteReturn(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	tagOrder(ctx, order)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) approveReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeUnavailable(ctx, w, "return")
		return
	}
	returnID, ok := requireURLParam(w, r, "returnRequestID")
	if !ok {
		return
	}
	var req approveReturnRequest
	if !decodeBody(ctx, w, r, maxOrderActionBodySize, false, &req) {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}

	request, err := h.returns.ApproveReturn(ctx, services.ApproveReturnCommand{
		ReturnRequestID: returnID,
		OrderID:         strings.TrimSpace(req.OrderID),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"returnRequest": buildReturnRequestPayload(request)})
}
