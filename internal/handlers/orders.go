package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/auth"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/httpx"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/pagination"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/requestctx"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

const (
	maxCreateOrderBodySize = 64 * 1024
	maxOrderActionBodySize = 8 * 1024
	maxOrderItems          = 50
)

type createOrderRequest struct {
	AddressID     string             `json:"addressId"`
	PaymentMethod string             `json:"paymentMethod"`
	Currency      string             `json:"currency"`
	TotalAmount   decimal.Decimal    `json:"totalAmount"`
	FinalAmount   decimal.Decimal    `json:"finalAmount"`
	OrderItems    []orderItemRequest `json:"orderItems"`
	CouponID      string             `json:"couponId"`
	GiftCardID    string             `json:"giftCardId"`
}

type orderItemRequest struct {
	VariantID string                `json:"productVariantId"`
	Quantity  int                   `json:"quantity"`
	Option    *domain.VariantOption `json:"option"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type returnOrderRequest struct {
	Reason string   `json:"reason"`
	Photos []string `json:"photos"`
}

type confirmPaymentRequest struct {
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

// OrderHandlers exposes the customer order endpoints.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
	returns  services.ReturnService
	opts     handlerOptions
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, returns services.ReturnService, opts ...HandlerOption) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
		returns:  returns,
		opts:     applyHandlerOptions(opts),
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleCustomer, auth.RoleStaff, auth.RoleAdmin))
	}
	for _, mw := range h.opts.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:return", h.requestReturn)
	r.Post("/{orderID}:pay", h.retryPayment)
	r.Post("/{orderID}:confirm-payment", h.confirmPayment)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok || !h.allowCheckout(w, r, identity.CustomerID()) {
		return
	}

	var req createOrderRequest
	if !decodeBody(ctx, w, r, maxCreateOrderBodySize, false, &req) {
		return
	}
	if len(req.OrderItems) == 0 || len(req.OrderItems) > maxOrderItems {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderItems must contain between 1 and 50 lines", http.StatusBadRequest))
		return
	}
	method, ok := parsePaymentMethod(req.PaymentMethod)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentMethod must be RAZORPAY, PAYPAL or COD", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		CustomerID:    identity.CustomerID(),
		AddressID:     strings.TrimSpace(req.AddressID),
		PaymentMethod: method,
		Currency:      strings.TrimSpace(req.Currency),
		TotalAmount:   req.TotalAmount,
		FinalAmount:   req.FinalAmount,
		CouponID:      strings.TrimSpace(req.CouponID),
		GiftCardID:    strings.TrimSpace(req.GiftCardID),
		Items:         make([]services.OrderLineInput, 0, len(req.OrderItems)),
	}
	for _, item := range req.OrderItems {
		cmd.Items = append(cmd.Items, services.OrderLineInput{
			VariantID: strings.TrimSpace(item.VariantID),
			Quantity:  item.Quantity,
			Option:    item.Option,
		})
	}

	result, err := h.orders.CreateOrder(ctx, cmd)
	tagOrder(ctx, result.Order)
	if err != nil {
		if result.Order.ID != "" && services.KindOf(err) == services.KindGateway {
			// The order and its reservation stand; the client retries through :pay.
			httpx.WriteError(ctx, w, httpx.NewError(services.CodeOf(err), err.Error(), http.StatusBadGateway).
				WithDetails(map[string]any{"order": buildOrderPayload(result.Order)}))
			return
		}
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, createOrderResponse{
		Order:       buildOrderPayload(result.Order),
		OrderDetail: result.OrderDetail,
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	filter, ok := parseOrderListFilter(w, r)
	if !ok {
		return
	}
	filter.CustomerID = identity.CustomerID()

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{OrderID: orderID, CustomerID: identity.CustomerID()})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	tagOrder(ctx, order)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
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

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:    orderID,
		CustomerID: identity.CustomerID(),
		Reason:     req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	tagOrder(ctx, order)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeUnavailable(ctx, w, "return")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}
	var req returnOrderRequest
	if !decodeBody(ctx, w, r, maxOrderActionBodySize, false, &req) {
		return
	}

	request, err := h.returns.RequestReturn(ctx, services.RequestReturnCommand{
		OrderID:    orderID,
		CustomerID: identity.CustomerID(),
		Reason:     req.Reason,
		Photos:     req.Photos,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"returnRequest": buildReturnRequestPayload(request)})
}

func (h *OrderHandlers) retryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok || !h.allowCheckout(w, r, identity.CustomerID()) {
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}

	result, err := h.payments.RetryCharge(ctx, services.RetryChargeCommand{OrderID: orderID, CustomerID: identity.CustomerID()})
	tagOrder(ctx, result.Order)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, createOrderResponse{
		Order:       buildOrderPayload(result.Order),
		OrderDetail: result.OrderDetail,
	})
}

func (h *OrderHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := requireURLParam(w, r, "orderID")
	if !ok {
		return
	}
	var req confirmPaymentRequest
	if !decodeBody(ctx, w, r, maxOrderActionBodySize, false, &req) {
		return
	}

	order, err := h.payments.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		OrderID:          orderID,
		CustomerID:       identity.CustomerID(),
		GatewayPaymentID: strings.TrimSpace(req.GatewayPaymentID),
		Signature:        strings.TrimSpace(req.Signature),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	tagOrder(ctx, order)
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) allowCheckout(w http.ResponseWriter, r *http.Request, customerID string) bool {
	if h.opts.limiter == nil || h.opts.limiter.Allow(customerID) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many checkout attempts", http.StatusTooManyRequests))
	return false
}

func requireURLParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if value == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", name+" is required", http.StatusBadRequest))
		return "", false
	}
	if name == "orderID" {
		requestctx.TagOrder(r.Context(), value, "")
	}
	return value, true
}

// parseOrderListFilter reads status, paymentStatus, createdAfter, createdBefore, pageSize and
// pageToken. Repeated and comma separated values are both accepted.
func parseOrderListFilter(w http.ResponseWriter, r *http.Request) (services.OrderListFilter, bool) {
	ctx := r.Context()
	query := r.URL.Query()

	page, err := pagination.Parse(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return services.OrderListFilter{}, false
	}
	filter := services.OrderListFilter{Pagination: page}

	for _, raw := range splitFilterValues(query["status"]) {
		status, ok := parseOrderStatus(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status "+raw, http.StatusBadRequest))
			return services.OrderListFilter{}, false
		}
		filter.Status = append(filter.Status, status)
	}
	for _, raw := range splitFilterValues(query["paymentStatus"]) {
		filter.PaymentStatus = append(filter.PaymentStatus, domain.PaymentStatus(strings.ToUpper(raw)))
	}

	for param, target := range map[string]**time.Time{
		"createdAfter":  &filter.DateRange.From,
		"createdBefore": &filter.DateRange.To,
	} {
		raw := strings.TrimSpace(query.Get(param))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", param+" must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return services.OrderListFilter{}, false
		}
		ts = ts.UTC()
		*target = &ts
	}
	return filter, true
}

func buildOrderList(page domain.CursorPage[services.Order]) orderListResponse {
	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	return orderListResponse{Items: items, NextPageToken: page.NextPageToken}
}

func splitFilterValues(values []string) []string {
	var result []string
	seen := make(map[string]struct{})
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			result = append(result, part)
		}
	}
	return result
}

var orderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:         {},
	domain.OrderStatusConfirmed:       {},
	domain.OrderStatusShipped:         {},
	domain.OrderStatusDelivered:       {},
	domain.OrderStatusCancelled:       {},
	domain.OrderStatusReturnRequested: {},
	domain.OrderStatusReturnApproved:  {},
	domain.OrderStatusReturned:        {},
	domain.OrderStatusRefunded:        {},
}

func parseOrderStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := orderStatuses[status]
	return status, ok
}

func parsePaymentMethod(raw string) (domain.PaymentMethod, bool) {
	switch method := domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(raw))); method {
	case domain.PaymentMethodRazorpay, domain.PaymentMethodPayPal, domain.PaymentMethodCOD:
		return method, true
	default:
		return "", false
	}
}
