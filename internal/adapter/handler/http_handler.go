package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

var errInvalidBody = errors.New("invalid request body")

type Services struct {
	Checkout *service.CheckoutService
	Orders   *service.OrderService
	Carts    *service.CartService
	Catalog  *service.CatalogService
}

type HTTPHandler struct {
	log      *slog.Logger
	svc      Services
	identity port.IdentityProvider
	observer RequestObserver
	metrics  http.Handler
	tracer   trace.Tracer
}

type HTTPOption func(*HTTPHandler)

// WithMetrics records request metrics through obs and serves exposition at /metrics.
func WithMetrics(obs RequestObserver, exposition http.Handler) HTTPOption {
	return func(h *HTTPHandler) {
		h.observer = obs
		h.metrics = exposition
	}
}

func NewHTTPHandler(log *slog.Logger, svc Services, identity port.IdentityProvider, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		log:      log,
		svc:      svc,
		identity: identity,
		tracer:   otel.Tracer("storefront-http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if h.observer != nil {
		r.Use(Observe(h.observer))
	}

	r.Get("/health", h.HealthCheck)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{productID}", h.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(h.identity))

			r.Post("/orders/checkout", h.checkout)
			r.Get("/orders", h.orderHistory)
			r.Get("/orders/{orderID}", h.getOrder)

			r.Get("/cart", h.getCart)
			r.Delete("/cart", h.clearCart)
			r.Post("/cart/items", h.addCartItem)
			r.Put("/cart/items/{productID}", h.updateCartItem)
			r.Delete("/cart/items/{productID}", h.removeCartItem)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Put("/orders/{orderID}/status", h.updateOrderStatus)
				r.Delete("/orders/{orderID}", h.deleteOrder)
				r.Get("/admin/orders", h.listAllOrders)
				r.Post("/products", h.createProduct)
				r.Put("/products/{productID}", h.updateProduct)
				r.Delete("/products/{productID}", h.deleteProduct)
			})
		})
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "HTTP Checkout")
	defer span.End()

	caller, _ := identityFrom(ctx)
	var req CheckoutHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.svc.Checkout.Checkout(ctx, service.CheckoutRequest{
		UserID:           caller.UserID,
		Email:            caller.Email,
		ShippingAddress:  req.ShippingAddress,
		PaymentReference: req.PaymentReference,
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("order_id", res.Order.ID), attribute.Bool("replayed", res.Replayed))

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, APIResponse{Success: true, Data: toOrderDTO(res.Order), Warning: res.Warning})
}

func (h *HTTPHandler) orderHistory(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	orders, err := h.svc.Orders.History(r.Context(), caller.UserID)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toOrderDTOs(orders)})
}

func (h *HTTPHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	order, err := h.svc.Orders.Get(r.Context(), caller, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toOrderDTO(order)})
}

func (h *HTTPHandler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	var req StatusHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	order, err := h.svc.Orders.UpdateStatus(r.Context(), caller, chi.URLParam(r, "orderID"), req.Status)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toOrderDTO(order)})
}

func (h *HTTPHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	if err := h.svc.Orders.Delete(r.Context(), caller, chi.URLParam(r, "orderID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "order deleted"})
}

func (h *HTTPHandler) listAllOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted"))

	orders, err := h.svc.Orders.ListAll(r.Context(), caller, includeDeleted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toOrderDTOs(orders)})
}

func (h *HTTPHandler) getCart(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	cart, err := h.svc.Carts.Get(r.Context(), caller.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		// no cart yet reads as an empty one
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toCartDTO(domain.Cart{UserID: caller.UserID})})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toCartDTO(cart)})
}

func (h *HTTPHandler) addCartItem(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	var req CartItemHTTPRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, APIResponse{Code: "invalid_input", Message: "product_id is required"})
		return
	}

	cart, err := h.svc.Carts.AddItem(r.Context(), caller.UserID, req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toCartDTO(cart)})
}

func (h *HTTPHandler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	var req CartItemHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	cart, err := h.svc.Carts.UpdateItem(r.Context(), caller.UserID, chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toCartDTO(cart)})
}

func (h *HTTPHandler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	cart, err := h.svc.Carts.RemoveItem(r.Context(), caller.UserID, chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toCartDTO(cart)})
}

func (h *HTTPHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	if err := h.svc.Carts.Clear(r.Context(), caller.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "cart cleared"})
}

func (h *HTTPHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Catalog.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		out = append(out, toProductDTO(p))
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (h *HTTPHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Catalog.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toProductDTO(p)})
}

func (h *HTTPHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	var req ProductHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.svc.Catalog.Create(r.Context(), caller, productInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: toProductDTO(p)})
}

func (h *HTTPHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	var req ProductHTTPRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.svc.Catalog.Update(r.Context(), caller, chi.URLParam(r, "productID"), productInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toProductDTO(p)})
}

func (h *HTTPHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := identityFrom(r.Context())
	if err := h.svc.Catalog.Delete(r.Context(), caller, chi.URLParam(r, "productID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "product deleted"})
}

func productInput(req ProductHTTPRequest) service.ProductInput {
	return service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
		Version:     req.Version,
	}
}

// logFailure logs errors that are not a client mistake.
func (h *HTTPHandler) logFailure(r *http.Request, err error) {
	if mapError(err).status < http.StatusInternalServerError {
		return
	}
	h.log.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"err", err,
	)
}

// decode reads a JSON body into v. An empty body leaves v at its zero value.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, APIResponse{Code: "invalid_input", Message: errInvalidBody.Error()})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	m := mapError(err)
	writeJSON(w, m.status, APIResponse{Code: m.code, Message: publicMessage(err, m)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
