package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type UpsertItemRequest struct {
	CartID    string `json:"cartId"`
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type UpsertItemResult struct {
	Cart    *domain.Cart
	Created bool
}

type SetItemQuantityRequest struct {
	CartID    string `json:"-" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"`
}

// CartService is the cart engine: it merges lines, keeps totals current and
// persists every change.
type CartService struct {
	carts  port.CartRepository
	guard  *InventoryGuard
	totals *Totaler
	retry  RetryConfig
	newID  func() string
	now    func() time.Time
	logger *slog.Logger
}

type CartOption func(*CartService)

func WithCartRetry(cfg RetryConfig) CartOption {
	return func(s *CartService) { s.retry = cfg }
}

func WithCartLogger(logger *slog.Logger) CartOption {
	return func(s *CartService) { s.logger = logger }
}

func WithCartIDs(newID func() string) CartOption {
	return func(s *CartService) { s.newID = newID }
}

func WithCartClock(now func() time.Time) CartOption {
	return func(s *CartService) { s.now = now }
}

func NewCartService(carts port.CartRepository, guard *InventoryGuard, totals *Totaler, opts ...CartOption) *CartService {
	s := &CartService{
		carts:  carts,
		guard:  guard,
		totals: totals,
		retry:  DefaultRetryConfig(),
		newID:  uuid.NewString,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CartService) GetCart(ctx context.Context, id string) (*domain.Cart, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	return s.carts.GetCart(ctx, id)
}

// UpsertItem adds quantity of a product to a cart, creating the cart when no
// ID is given or the given one does not exist. Stock is checked against the
// added quantity only, not the merged line.
func (s *CartService) UpsertItem(ctx context.Context, req UpsertItemRequest) (*UpsertItemResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if _, err := s.guard.CheckAvailable(ctx, req.ProductID, req.Quantity); err != nil {
		return nil, err
	}

	return retryOnConflict(ctx, s.retry, func() (*UpsertItemResult, error) {
		cart, created, err := s.loadOrNew(ctx, req.CartID)
		if err != nil {
			return nil, err
		}

		cart.AddQuantity(req.ProductID, req.Quantity)

		if err := s.save(ctx, cart, created); err != nil {
			return nil, err
		}

		return &UpsertItemResult{Cart: cart, Created: created}, nil
	})
}

// SetItemQuantity overwrites a line's quantity. A quantity of zero or less
// removes the line; a positive one must be covered by current stock.
func (s *CartService) SetItemQuantity(ctx context.Context, req SetItemQuantityRequest) (*domain.Cart, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	return retryOnConflict(ctx, s.retry, func() (*domain.Cart, error) {
		cart, err := s.carts.GetCart(ctx, req.CartID)
		if err != nil {
			return nil, err
		}

		if cart.IndexOf(req.ProductID) < 0 {
			return nil, domain.NewNotFoundError("cart item", req.ProductID)
		}

		if req.Quantity > 0 {
			if _, err := s.guard.CheckAvailable(ctx, req.ProductID, req.Quantity); err != nil {
				return nil, err
			}
		}

		cart.SetQuantity(req.ProductID, req.Quantity)

		if err := s.save(ctx, cart, false); err != nil {
			return nil, err
		}

		return cart, nil
	})
}

func (s *CartService) RemoveCart(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewValidationError("id", "is required")
	}
	return s.carts.DeleteCart(ctx, id)
}

func (s *CartService) loadOrNew(ctx context.Context, id string) (*domain.Cart, bool, error) {
	if id != "" {
		cart, err := s.carts.GetCart(ctx, id)
		if err == nil {
			return cart, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
		s.logger.Debug("cart not found, starting a new one", "requested_cart_id", id)
	}

	return domain.NewCart(s.newID(), s.now()), true, nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart, created bool) error {
	if err := s.totals.Recompute(ctx, cart); err != nil {
		return err
	}
	cart.UpdatedAt = s.now()

	if created {
		if err := s.carts.CreateCart(ctx, cart); err != nil {
			return fmt.Errorf("create cart: %w", err)
		}
		return nil
	}

	if err := s.carts.UpdateCart(ctx, cart); err != nil {
		return fmt.Errorf("update cart %s: %w", cart.ID, err)
	}
	return nil
}
