package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Gautam0104/jupi-diamond-sub005/internal/domain"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/auth"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/httpx"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

const maxCartBodySize = 8 * 1024

type addCartItemRequest struct {
	VariantID string                `json:"productVariantId"`
	Option    *domain.VariantOption `json:"option"`
	Quantity  int                   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// CartHandlers exposes the authenticated customer's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
	opts  handlerOptions
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, opts ...HandlerOption) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts, opts: applyHandlerOptions(opts)}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
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
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Post("/coupon", h.applyCoupon)
	r.Delete("/coupon", h.removeCoupon)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(customerID string) (services.Cart, error) {
		return h.carts.GetCart(r.Context(), customerID)
	})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(customerID string) (services.Cart, error) {
		return h.carts.Clear(r.Context(), customerID)
	})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if !decodeBody(r.Context(), w, r, maxCartBodySize, false, &req) {
		return
	}
	h.respond(w, r, func(customerID string) (services.Cart, error) {
		return h.carts.AddItem(r.Context(), services.AddCartItemCommand{
			CustomerID: customerID,
			VariantID:  strings.TrimSpace(req.VariantID),
			Option:     req.Option,
			Quantity:   req.Quantity,
		})
	})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := requireURLParam(w, r, "itemID")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeBody(r.Context(), w, r, maxCartBodySize, false, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	h.respond(w, r, func(customerID string) (services.Cart, error) {
		return h.carts.UpdateItemQuantity(r.Context(), services.UpdateCartItemCommand{
			CustomerID: customerID,
			ItemID:     itemID,
			Quantity:   *req.Quantity,
		})
	})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := requireURLParam(w, r, "itemID")
	if !ok {
		return
	}
	h.respond(w, r, func(customerID string) (services.Cart, error) {
		return h.carts.RemoveItem(r.Context(), customerID, itemID)
	})
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if !decodeBody(r.Context(), w, r, maxCartBodySize, false, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}
	h.respond(w, r, func(customerID string) (services.Cart, error) {
		return h.carts.ApplyCoupon(r.Context(), customerID, req.Code)
	})
}

func (h *CartHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(customerID string) (services.Cart, error) {
		return h.carts.RemoveCoupon(r.Context(), customerID)
	})
}

func (h *CartHandlers) respond(w http.ResponseWriter, r *http.Request, op func(customerID string) (services.Cart, error)) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := op(identity.CustomerID())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}
