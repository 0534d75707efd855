package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const idempotencyKeyPrefix = "order:"

type ConvertRequest struct {
	CartID    string `json:"cartId" validate:"required"`
	UserID    string `json:"user"`
	RequestID string `json:"-"`
}

// OrderService turns carts into orders. The baseline conversion is a chain of
// independent steps: validate every line, persist the order, decrement stock
// line by line, delete the cart. A failed decrement neither undoes earlier
// lines nor skips later ones. Configure a Transactor to run the persist and decrement steps in one
// store transaction instead.
type OrderService struct {
	carts       port.CartRepository
	orders      port.OrderRepository
	guard       *InventoryGuard
	idempotency port.IdempotencyRepository
	transactor  port.Transactor
	newID       func() string
	now         func() time.Time
	logger      *slog.Logger
	tracer      trace.Tracer
}

type OrderOption func(*OrderService)

// WithIdempotency enables duplicate detection for requests carrying a
// RequestID.
func WithIdempotency(repo port.IdempotencyRepository) OrderOption {
	return func(s *OrderService) { s.idempotency = repo }
}

// WithTransactionalConversion makes the order insert and all stock
// decrements commit or roll back together.
func WithTransactionalConversion(tx port.Transactor) OrderOption {
	return func(s *OrderService) { s.transactor = tx }
}

func WithOrderLogger(logger *slog.Logger) OrderOption {
	return func(s *OrderService) { s.logger = logger }
}

func WithOrderIDs(newID func() string) OrderOption {
	return func(s *OrderService) { s.newID = newID }
}

func WithOrderClock(now func() time.Time) OrderOption {
	return func(s *OrderService) { s.now = now }
}

func NewOrderService(carts port.CartRepository, orders port.OrderRepository, guard *InventoryGuard, opts ...OrderOption) *OrderService {
	s := &OrderService{
		carts:  carts,
		orders: orders,
		guard:  guard,
		newID:  uuid.NewString,
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/rl1809/storefront/internal/core/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	return s.orders.GetOrder(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.FindOrders(ctx)
}

// Convert places an order for the contents of a cart.
func (s *OrderService) Convert(ctx context.Context, req ConvertRequest) (order *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Convert",
		trace.WithAttributes(attribute.String("cart.id", req.CartID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	claimed, err := s.claim(ctx, req.RequestID)
	if err != nil {
		return nil, err
	}
	// Until the order is persisted nothing has changed, so a failure frees the
	// request ID for another attempt.
	persisted := false
	defer func() {
		if claimed && !persisted {
			s.release(req.RequestID)
		}
	}()

	cart, err := s.loadConvertibleCart(ctx, req.CartID)
	if err != nil {
		return nil, err
	}

	if err := s.checkLines(ctx, cart); err != nil {
		return nil, err
	}

	order = domain.NewOrderFromCart(s.newID(), req.UserID, cart, s.now())

	if s.transactor != nil {
		if err := s.persistAtomically(ctx, order); err != nil {
			return nil, err
		}
		persisted = true
	} else {
		if err := s.persist(ctx, order); err != nil {
			return nil, err
		}
		persisted = true

		// The order exists from here on, so the cart is consumed even when a
		// decrement fails.
		if err := s.adjustInventory(ctx, order); err != nil {
			if delErr := s.deleteSourceCart(ctx, cart.ID); delErr != nil {
				s.logger.Error("failed to delete source cart", "cart_id", cart.ID, "order_id", order.ID, "error", delErr)
			}
			return nil, err
		}
	}

	if err := s.deleteSourceCart(ctx, cart.ID); err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		"order_id", order.ID,
		"cart_id", cart.ID,
		"lines", len(order.Items),
		"total", order.TotalAmount.String())

	return s.orders.GetOrder(ctx, order.ID)
}

func (s *OrderService) claim(ctx context.Context, requestID string) (bool, error) {
	if requestID == "" || s.idempotency == nil {
		return false, nil
	}

	ok, err := s.idempotency.SetIdempotency(ctx, idempotencyKeyPrefix+requestID)
	if err != nil {
		return false, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return false, domain.ErrDuplicateRequest
	}
	return true, nil
}

func (s *OrderService) release(requestID string) {
	// The request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.idempotency.ReleaseIdempotency(ctx, idempotencyKeyPrefix+requestID); err != nil {
		s.logger.Warn("failed to release idempotency key", "request_id", requestID, "error", err)
	}
}

func (s *OrderService) loadConvertibleCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	cart, err := s.carts.GetCart(ctx, cartID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: cart %s not found or empty", domain.ErrInvalidState, cartID)
	}
	if err != nil {
		return nil, err
	}

	if cart.IsEmpty() {
		return nil, fmt.Errorf("%w: cart %s not found or empty", domain.ErrInvalidState, cartID)
	}
	return cart, nil
}

// checkLines verifies every line before anything is written.
func (s *OrderService) checkLines(ctx context.Context, cart *domain.Cart) error {
	_, span := s.tracer.Start(ctx, "OrderService.checkLines")
	defer span.End()

	for _, item := range cart.Items {
		if _, err := s.guard.CheckAvailable(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderService) persist(ctx context.Context, order *domain.Order) error {
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// adjustInventory decrements stock line by line. A failed line does not stop
// the ones after it and nothing already applied is reverted.
func (s *OrderService) adjustInventory(ctx context.Context, order *domain.Order) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.adjustInventory")
	defer span.End()

	var applied, failed []domain.OrderItem
	var errs []error
	for _, item := range order.Items {
		if err := s.guard.Decrement(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("stock adjustment failed",
				"order_id", order.ID,
				"product_id", item.ProductID,
				"quantity", item.Quantity,
				"error", err)
			failed = append(failed, item)
			errs = append(errs, err)
			continue
		}
		applied = append(applied, item)
	}

	if len(failed) == 0 {
		return nil
	}
	return &domain.PartialConversionError{
		Order:   order,
		Applied: applied,
		Failed:  failed,
		Err:     errors.Join(errs...),
	}
}

func (s *OrderService) persistAtomically(ctx context.Context, order *domain.Order) error {
	ctx, span := s.tracer.Start(ctx, "OrderService.persistAtomically")
	defer span.End()

	return s.transactor.WithinTx(ctx, func(tx port.InventoryTx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, item := range order.Items {
			if err := s.guard.DecrementTx(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *OrderService) deleteSourceCart(ctx context.Context, cartID string) error {
	err := s.carts.DeleteCart(ctx, cartID)
	if errors.Is(err, domain.ErrNotFound) {
		// Another conversion of the same cart got there first
		s.logger.Warn("source cart already deleted", "cart_id", cartID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete cart %s: %w", cartID, err)
	}
	return nil
}
