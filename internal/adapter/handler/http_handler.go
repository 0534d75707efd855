package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const idempotencyHeader = "Idempotency-Key"

// HealthChecker reports whether the backing stores are reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HTTPHandler struct {
	catalog *service.CatalogService
	carts   *service.CartService
	orders  *service.OrderService
	health  HealthChecker
	logger  *slog.Logger
}

func NewHTTPHandler(catalog *service.CatalogService, carts *service.CartService, orders *service.OrderService,
	health HealthChecker, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{
		catalog: catalog,
		carts:   carts,
		orders:  orders,
		health:  health,
		logger:  logger,
	}
}

// Routes returns the full HTTP surface wrapped in tracing middleware.
func (h *HTTPHandler) Routes() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return otelhttp.NewHandler(r, "storefront.http")
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// Products
	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products", h.CreateProduct).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.UpdateProduct).Methods(http.MethodPut)
	api.HandleFunc("/products/{id}", h.DeleteProduct).Methods(http.MethodDelete)

	// Categories
	api.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.CreateCategory).Methods(http.MethodPost)
	api.HandleFunc("/categories/{id}", h.GetCategory).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}", h.UpdateCategory).Methods(http.MethodPut)
	api.HandleFunc("/categories/{id}", h.DeleteCategory).Methods(http.MethodDelete)

	// Cart
	api.HandleFunc("/cart", h.UpsertCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/{id}", h.GetCart).Methods(http.MethodGet)
	api.HandleFunc("/cart/{id}", h.SetCartItemQuantity).Methods(http.MethodPut)
	api.HandleFunc("/cart/{id}", h.DeleteCart).Methods(http.MethodDelete)

	// Orders
	api.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "Method not allowed"})
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Cart

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetCart(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK, cart)
}

// UpsertCartItem handles POST /api/cart
// body: {"cartId": "...", "productId": "...", "quantity": 2}
func (h *HTTPHandler) UpsertCartItem(w http.ResponseWriter, r *http.Request) {
	var req service.UpsertItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.carts.UpsertItem(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	h.writeCart(w, r, status, res.Cart)
}

// SetCartItemQuantity handles PUT /api/cart/{id}
// body: {"productId": "...", "quantity": 0}
func (h *HTTPHandler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req service.SetItemQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CartID = mux.Vars(r)["id"]

	cart, err := h.carts.SetItemQuantity(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusOK, cart)
}

func (h *HTTPHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.RemoveCart(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cart deleted"})
}

func (h *HTTPHandler) writeCart(w http.ResponseWriter, r *http.Request, status int, cart *domain.Cart) {
	view, err := expandCart(r.Context(), h.catalog, cart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, view)
}

// Orders

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views, err := expandOrders(r.Context(), h.catalog, orders...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOrder(w, r, http.StatusOK, order)
}

// CreateOrder handles POST /api/orders
// body: {"cartId": "...", "user": "..."}; an Idempotency-Key header makes
// retries safe.
func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.ConvertRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.RequestID = r.Header.Get(idempotencyHeader)

	order, err := h.orders.Convert(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOrder(w, r, http.StatusCreated, order)
}

func (h *HTTPHandler) writeOrder(w http.ResponseWriter, r *http.Request, status int, order *domain.Order) {
	views, err := expandOrders(r.Context(), h.catalog, *order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, views[0])
}

// Products

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.catalog.ListProducts(r.Context(), domain.ProductFilter{
		CategoryID:   q.Get("category"),
		NameContains: q.Get("search"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views := make([]ProductView, 0, len(products))
	for i := range products {
		views = append(views, newProductView(&products[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductView(product))
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProductView(product))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = mux.Vars(r)["id"]

	product, err := h.catalog.UpdateProduct(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductView(product))
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// Categories

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views := make([]CategoryView, 0, len(categories))
	for i := range categories {
		views = append(views, newCategoryView(&categories[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *HTTPHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := h.catalog.GetCategory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryView(category))
}

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req service.CategoryRequest
	if !h.decode(w, r, &req) {
		return
	}

	category, err := h.catalog.CreateCategory(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCategoryView(category))
}

func (h *HTTPHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req service.CategoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = mux.Vars(r)["id"]

	category, err := h.catalog.UpdateCategory(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryView(category))
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Category deleted"})
}

// --- helpers ---

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ce := classify(err)
	if ce.internal {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	writeJSON(w, ce.status, errorResponse{Message: ce.message, OrderID: ce.orderID})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
