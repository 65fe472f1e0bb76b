package handlers

import (
	"strings"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/payments"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

// Amounts leave the API as fixed two-decimal strings in major units, matching what clients send.
func money(minor int64) string {
	return domain.MinorToDecimal(minor).StringFixed(2)
}

type amountsPayload struct {
	Currency       string `json:"currency"`
	TotalAmount    string `json:"totalAmount"`
	GSTAmount      string `json:"gstAmount"`
	DiscountAmount string `json:"discountAmount"`
	FinalAmount    string `json:"finalAmount"`
}

func buildAmounts(currency string, a domain.OrderAmounts) amountsPayload {
	return amountsPayload{
		Currency:       strings.ToUpper(currency),
		TotalAmount:    money(a.Total),
		GSTAmount:      money(a.GST),
		DiscountAmount: money(a.Discount),
		FinalAmount:    money(a.Final),
	}
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"orderNumber"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	PaymentMethod string `json:"paymentMethod"`
	Currency      string `json:"currency"`
	FinalAmount   string `json:"finalAmount"`
	ItemCount     int    `json:"itemCount"`
	CreatedAt     string `json:"createdAt"`
}

type orderPayload struct {
	ID               string                  `json:"id"`
	OrderNumber      string                  `json:"orderNumber"`
	CustomerID       string                  `json:"customerId"`
	Status           string                  `json:"status"`
	PaymentStatus    string                  `json:"paymentStatus"`
	PaymentMethod    string                  `json:"paymentMethod"`
	IsPaid           bool                    `json:"isPaid"`
	Amounts          amountsPayload          `json:"amounts"`
	AmountsINR       amountsPayload          `json:"amountsInr"`
	AmountsUSD       amountsPayload          `json:"amountsUsd"`
	Address          domain.AddressSnapshot  `json:"address"`
	Coupon           *domain.AppliedCoupon   `json:"coupon,omitempty"`
	GiftCard         *domain.AppliedGiftCard `json:"giftCard,omitempty"`
	GatewayOrderID   string                  `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string                  `json:"gatewayPaymentId,omitempty"`
	Refund           *refundPayload          `json:"refund,omitempty"`
	CancelReason     string                  `json:"cancelReason,omitempty"`
	Items            []orderItemPayload      `json:"items"`
	StatusHistory    []statusHistoryPayload  `json:"statusHistory,omitempty"`
	Payments         []paymentAttemptPayload `json:"payments,omitempty"`
	ReturnRequest    *returnRequestPayload   `json:"returnRequest,omitempty"`
	PaidAt           string                  `json:"paidAt,omitempty"`
	CancelledAt      string                  `json:"cancelledAt,omitempty"`
	CreatedAt        string                  `json:"createdAt"`
	UpdatedAt        string                  `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ID              string                   `json:"id"`
	VariantID       string                   `json:"productVariantId"`
	Quantity        int                      `json:"quantity"`
	PriceAtPurchase string                   `json:"priceAtPurchase"`
	GST             string                   `json:"gst"`
	DiscountValue   string                   `json:"discountValue"`
	Total           string                   `json:"total"`
	Status          string                   `json:"status"`
	Snapshot        domain.OrderItemSnapshot `json:"snapshot"`
}

type refundPayload struct {
	Amount     string `json:"amount"`
	RefundID   string `json:"refundId,omitempty"`
	Reason     string `json:"reason,omitempty"`
	RefundedAt string `json:"refundedAt"`
}

type statusHistoryPayload struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type paymentAttemptPayload struct {
	TransactionID    string `json:"transactionId"`
	AttemptNumber    int    `json:"attemptNumber"`
	Provider         string `json:"provider"`
	Status           string `json:"status"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	GatewayOrderID   string `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string `json:"gatewayPaymentId,omitempty"`
	FailureReason    string `json:"failureReason,omitempty"`
	Refunded         bool   `json:"refunded"`
	CreatedAt        string `json:"createdAt"`
}

type returnRequestPayload struct {
	ID         string   `json:"id"`
	OrderID    string   `json:"orderId"`
	Reason     string   `json:"reason"`
	Photos     []string `json:"photos,omitempty"`
	IsApproved bool     `json:"isApproved"`
	ApprovedAt string   `json:"approvedAt,omitempty"`
	CreatedAt  string   `json:"createdAt"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type createOrderResponse struct {
	Order       orderPayload     `json:"order"`
	OrderDetail *payments.Charge `json:"orderDetail,omitempty"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		Currency:      strings.ToUpper(order.Currency),
		FinalAmount:   money(order.Amounts.Final),
		ItemCount:     len(order.Items),
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		CustomerID:       order.CustomerID,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentMethod:    string(order.PaymentMethod),
		IsPaid:           order.IsPaid,
		Amounts:          buildAmounts(order.Currency, order.Amounts),
		AmountsINR:       buildAmounts(domain.BaseCurrency, order.AmountsINR),
		AmountsUSD:       buildAmounts("USD", order.AmountsUSD),
		Address:          order.Address,
		Coupon:           order.Coupon,
		GiftCard:         order.GiftCard,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: order.GatewayPaymentID,
		CancelReason:     order.CancelReason,
		Items:            make([]orderItemPayload, 0, len(order.Items)),
		PaidAt:           formatTimePtr(order.PaidAt),
		CancelledAt:      formatTimePtr(order.CancelledAt),
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:              item.ID,
			VariantID:       item.VariantID,
			Quantity:        item.Quantity,
			PriceAtPurchase: money(item.PriceAtPurchase),
			GST:             money(item.GST),
			DiscountValue:   money(item.DiscountValue),
			Total:           money(item.Total),
			Status:          string(item.Status),
			Snapshot:        item.Snapshot,
		})
	}
	if order.Refund != nil {
		payload.Refund = &refundPayload{
			Amount:     money(order.Refund.Amount),
			RefundID:   order.Refund.RefundID,
			Reason:     order.Refund.Reason,
			RefundedAt: formatTime(order.Refund.RefundedAt),
		}
	}
	for _, entry := range order.StatusHistory {
		payload.StatusHistory = append(payload.StatusHistory, statusHistoryPayload{
			Status:    string(entry.Status),
			Note:      entry.Note,
			CreatedAt: formatTime(entry.CreatedAt),
			UpdatedAt: formatTime(entry.UpdatedAt),
		})
	}
	for _, attempt := range order.Payments {
		payload.Payments = append(payload.Payments, paymentAttemptPayload{
			TransactionID:    attempt.TransactionID,
			AttemptNumber:    attempt.AttemptNumber,
			Provider:         string(attempt.Provider),
			Status:           string(attempt.Status),
			Amount:           money(attempt.Amount),
			Currency:         strings.ToUpper(attempt.Currency),
			GatewayOrderID:   attempt.GatewayOrderID,
			GatewayPaymentID: attempt.GatewayPaymentID,
			FailureReason:    attempt.FailureReason,
			Refunded:         attempt.Refunded,
			CreatedAt:        formatTime(attempt.CreatedAt),
		})
	}
	if order.ReturnRequest != nil {
		rr := buildReturnRequestPayload(*order.ReturnRequest)
		payload.ReturnRequest = &rr
	}
	return payload
}

func buildReturnRequestPayload(req services.ReturnRequest) returnRequestPayload {
	return returnRequestPayload{
		ID:         req.ID,
		OrderID:    req.OrderID,
		Reason:     req.Reason,
		Photos:     req.Photos,
		IsApproved: req.IsApproved,
		ApprovedAt: formatTimePtr(req.ApprovedAt),
		CreatedAt:  formatTime(req.CreatedAt),
	}
}

type cartItemPayload struct {
	ID              string                `json:"id"`
	VariantID       string                `json:"productVariantId"`
	Option          *domain.VariantOption `json:"option,omitempty"`
	Quantity        int                   `json:"quantity"`
	PriceAtAddition string                `json:"priceAtAddition"`
	AddedAt         string                `json:"addedAt"`
}

type cartPayload struct {
	ID              string            `json:"id"`
	CustomerID      string            `json:"customerId"`
	Items           []cartItemPayload `json:"items"`
	AppliedCouponID string            `json:"appliedCouponId,omitempty"`
	Currency        string            `json:"currency"`
	TotalAmount     string            `json:"totalAmount"`
	DiscountAmount  string            `json:"discountAmount"`
	FinalAmount     string            `json:"finalAmount"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:              cart.ID,
		CustomerID:      cart.CustomerID,
		Items:           make([]cartItemPayload, 0, len(cart.Items)),
		AppliedCouponID: cart.AppliedCouponID,
		Currency:        domain.BaseCurrency,
		TotalAmount:     money(cart.TotalAmount),
		DiscountAmount:  money(cart.DiscountAmount),
		FinalAmount:     money(cart.FinalAmount),
		UpdatedAt:       formatTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			ID:              item.ID,
			VariantID:       item.VariantID,
			Option:          item.Option,
			Quantity:        item.Quantity,
			PriceAtAddition: money(item.PriceAtAddition),
			AddedAt:         formatTime(item.AddedAt),
		})
	}
	return payload
}
