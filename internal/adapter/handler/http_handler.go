package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/pharmacy-cart/internal/core/cart"
	"github.com/rl1809/pharmacy-cart/internal/core/coupon"
	"github.com/rl1809/pharmacy-cart/internal/core/domain"
	"github.com/rl1809/pharmacy-cart/internal/core/service"
)

const (
	idempotencyHeader  = "Idempotency-Key"
	maxRequestBodySize = 1 << 20
	requestTimeout     = 15 * time.Second
)

type HTTPHandler struct {
	sessions  *service.SessionService
	checkouts *service.CheckoutService
	logger    *zap.Logger
}

type ProductDTO struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Image       string           `json:"image"`
	Category    string           `json:"category"`
	GenericName string           `json:"genericName"`
	InStock     bool             `json:"inStock"`
	Price       decimal.Decimal  `json:"price"`
	FinalPrice  *decimal.Decimal `json:"finalPrice"`
	Unit        string           `json:"unit"`
}

func (p ProductDTO) toDomain() domain.Product {
	return domain.Product{
		ID:          p.ID,
		Name:        p.Name,
		Image:       p.Image,
		Category:    p.Category,
		GenericName: p.GenericName,
		InStock:     p.InStock,
		Price:       p.Price,
		FinalPrice:  p.FinalPrice,
		Unit:        p.Unit,
	}
}

type AddItemHTTPRequest struct {
	Product  ProductDTO `json:"product"`
	Quantity int        `json:"quantity"`
	Variant  string     `json:"variant"`
}

type UpdateQuantityHTTPRequest struct {
	ProductID string `json:"productId"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity"`
}

type ApplyCouponHTTPRequest struct {
	Code string `json:"code"`
}

type LookupHTTPResponse struct {
	InCart bool             `json:"inCart"`
	Item   *domain.LineItem `json:"item,omitempty"`
}

type ErrorHTTPResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Summary *service.Summary `json:"summary,omitempty"`
}

func NewHTTPHandler(sessions *service.SessionService, checkouts *service.CheckoutService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{sessions: sessions, checkouts: checkouts, logger: logger}
}

// Routes mounts the cart API. Everything under /api needs an owner.
func (h *HTTPHandler) Routes(owners *OwnerResolver) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(owners.Middleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Patch("/items", h.UpdateQuantity)
			r.Delete("/items", h.RemoveItem)
			r.Get("/items/lookup", h.LookupItem)
			r.Post("/coupon", h.ApplyCoupon)
			r.Delete("/coupon", h.RemoveCoupon)
		})

		r.Post("/checkout", h.SubmitCheckout)
		r.Get("/checkout/{id}", h.GetCheckout)
	})
	return r
}

func (h *HTTPHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, err := h.sessions.Get(r.Context(), ownerFrom(r.Context()))
	switch {
	case errors.Is(err, service.ErrMissingOwner):
		writeError(w, http.StatusUnauthorized, err.Error())
		return nil, false
	case err != nil:
		h.logger.Warn("cart session unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "cart temporarily unavailable")
		return nil, false
	}
	return sess, true
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary(r.Context()))
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	summary, err := sess.AddItem(r.Context(), req.Product.toDomain(), req.Quantity, req.Variant)
	if errors.Is(err, cart.ErrInvalidProduct) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *HTTPHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.UpdateQuantity(r.Context(), req.ProductID, req.Variant, req.Quantity))
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.RemoveItem(r.Context(), productID, r.URL.Query().Get("variant")))
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Clear(r.Context()))
}

func (h *HTTPHandler) LookupItem(w http.ResponseWriter, r *http.Request) {
	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var resp LookupHTTPResponse
	if item, found := sess.GetItem(productID, r.URL.Query().Get("variant")); found {
		resp.InCart = true
		resp.Item = &item
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req ApplyCouponHTTPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	summary, err := sess.ApplyCoupon(r.Context(), req.Code)
	if err != nil {
		status := http.StatusServiceUnavailable
		message := "coupon service unavailable"
		switch {
		case errors.Is(err, coupon.ErrEmptyCode):
			status, message = http.StatusBadRequest, err.Error()
		case errors.Is(err, coupon.ErrCouponRejected):
			status, message = http.StatusUnprocessableEntity, err.Error()
		case errors.Is(err, coupon.ErrValidationInFlight):
			status, message = http.StatusConflict, err.Error()
		default:
			h.logger.Warn("coupon validation failed", zap.String("owner", sess.Owner()), zap.Error(err))
		}
		writeJSON(w, status, ErrorHTTPResponse{Success: false, Message: message, Summary: &summary})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *HTTPHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.RemoveCoupon(r.Context()))
}

func (h *HTTPHandler) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(idempotencyHeader)
	checkout, err := h.checkouts.Submit(r.Context(), ownerFrom(r.Context()), requestID)
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal error"

		switch {
		case errors.Is(err, service.ErrMissingRequestID):
			status, message = http.StatusBadRequest, "Idempotency-Key header is required"
		case errors.Is(err, service.ErrMissingOwner):
			status, message = http.StatusUnauthorized, err.Error()
		case errors.Is(err, service.ErrDuplicateRequest):
			status, message = http.StatusConflict, "duplicate request"
		case errors.Is(err, service.ErrEmptyCart):
			status, message = http.StatusUnprocessableEntity, err.Error()
		case errors.Is(err, service.ErrQueueFull):
			status, message = http.StatusTooManyRequests, err.Error()
		case errors.Is(err, service.ErrShuttingDown):
			status, message = http.StatusServiceUnavailable, err.Error()
		case errors.Is(err, service.ErrCartUnavailable):
			status, message = http.StatusServiceUnavailable, "cart temporarily unavailable"
		default:
			h.logger.Error("checkout submit failed", zap.Error(err))
		}

		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusAccepted, checkout)
}

func (h *HTTPHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	checkout, err := h.checkouts.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrCheckoutNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("checkout lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// other owners' checkouts are indistinguishable from missing ones
	if checkout.Owner != ownerFrom(r.Context()) {
		writeError(w, http.StatusNotFound, service.ErrCheckoutNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorHTTPResponse{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
