package handler

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type GRPCHandler struct {
	catalog *service.CatalogService
	carts   *service.CartService
	orders  *service.OrderService
	logger  *slog.Logger
}

var _ StorefrontServer = (*GRPCHandler)(nil)

func NewGRPCHandler(catalog *service.CatalogService, carts *service.CartService, orders *service.OrderService, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{catalog: catalog, carts: carts, orders: orders, logger: logger}
}

func (h *GRPCHandler) UpsertCartItem(ctx context.Context, req *UpsertCartItemRequest) (*CartResponse, error) {
	res, err := h.carts.UpsertItem(ctx, service.UpsertItemRequest{
		CartID:    req.CartID,
		ProductID: req.ProductID,
		Quantity:  int(req.Quantity),
	})
	if err != nil {
		return nil, h.statusError("UpsertCartItem", err)
	}
	return h.cartResponse(ctx, "UpsertCartItem", res.Cart, res.Created)
}

func (h *GRPCHandler) SetCartItemQuantity(ctx context.Context, req *SetCartItemQuantityRequest) (*CartResponse, error) {
	cart, err := h.carts.SetItemQuantity(ctx, service.SetItemQuantityRequest{
		CartID:    req.CartID,
		ProductID: req.ProductID,
		Quantity:  int(req.Quantity),
	})
	if err != nil {
		return nil, h.statusError("SetCartItemQuantity", err)
	}
	return h.cartResponse(ctx, "SetCartItemQuantity", cart, false)
}

func (h *GRPCHandler) GetCart(ctx context.Context, req *CartRequest) (*CartResponse, error) {
	cart, err := h.carts.GetCart(ctx, req.CartID)
	if err != nil {
		return nil, h.statusError("GetCart", err)
	}
	return h.cartResponse(ctx, "GetCart", cart, false)
}

func (h *GRPCHandler) DeleteCart(ctx context.Context, req *CartRequest) (*DeleteCartResponse, error) {
	if err := h.carts.RemoveCart(ctx, req.CartID); err != nil {
		return nil, h.statusError("DeleteCart", err)
	}
	return &DeleteCartResponse{}, nil
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	order, err := h.orders.Convert(ctx, service.ConvertRequest{
		CartID:    req.CartID,
		UserID:    req.UserID,
		RequestID: req.RequestID,
	})
	if err != nil {
		return nil, h.statusError("CreateOrder", err)
	}
	return h.orderResponse(ctx, "CreateOrder", order)
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	order, err := h.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, h.statusError("GetOrder", err)
	}
	return h.orderResponse(ctx, "GetOrder", order)
}

func (h *GRPCHandler) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	orders, err := h.orders.ListOrders(ctx)
	if err != nil {
		return nil, h.statusError("ListOrders", err)
	}
	views, err := expandOrders(ctx, h.catalog, orders...)
	if err != nil {
		return nil, h.statusError("ListOrders", err)
	}
	return &ListOrdersResponse{Orders: views}, nil
}

func (h *GRPCHandler) cartResponse(ctx context.Context, method string, cart *domain.Cart, created bool) (*CartResponse, error) {
	view, err := expandCart(ctx, h.catalog, cart)
	if err != nil {
		return nil, h.statusError(method, err)
	}
	return &CartResponse{Cart: &view, Created: created}, nil
}

func (h *GRPCHandler) orderResponse(ctx context.Context, method string, order *domain.Order) (*OrderResponse, error) {
	views, err := expandOrders(ctx, h.catalog, *order)
	if err != nil {
		return nil, h.statusError(method, err)
	}
	return &OrderResponse{Order: &views[0]}, nil
}

func (h *GRPCHandler) statusError(method string, err error) error {
	ce := classify(err)
	if ce.internal {
		h.logger.Error("rpc failed", "method", method, "error", err)
	}
	msg := ce.message
	if ce.orderID != "" {
		msg += ": order " + ce.orderID
	}
	return status.Error(ce.code, msg)
}
