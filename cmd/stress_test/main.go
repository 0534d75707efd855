package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/cli"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
	sharedAdds    = 40
)

// Runs against the store described by STOREFRONT_CONFIG and STOREFRONT_*
// variables, the in-memory store by default.
func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("STOREFRONT_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// Many writers on one cart need more than the default retry budget
	cfg.Retry.MaxTries = 500
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer app.Close()

	productID := seed(ctx, app)
	passed := true

	// Phase 1: concurrent adds to one cart must not lose increments
	shared, err := app.Carts.UpsertItem(ctx, service.UpsertItemRequest{ProductID: productID, Quantity: 1})
	if err != nil {
		log.Fatalf("failed to create shared cart: %v", err)
	}

	var addFailures atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 1; i < sharedAdds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := app.Carts.UpsertItem(ctx, service.UpsertItemRequest{
				CartID:    shared.Cart.ID,
				ProductID: productID,
				Quantity:  1,
			})
			if err != nil {
				addFailures.Add(1)
			}
		}()
	}
	wg.Wait()
	addElapsed := time.Since(start)

	cart, err := app.Carts.GetCart(ctx, shared.Cart.ID)
	if err != nil {
		log.Fatalf("failed to read shared cart: %v", err)
	}
	quantity := cart.Items[0].Quantity
	if err := app.Carts.RemoveCart(ctx, cart.ID); err != nil {
		log.Printf("failed to remove shared cart %s: %v", cart.ID, err)
	}

	// Phase 2: one cart per buyer, all converting at once
	cartIDs := make([]string, totalRequests)
	for i := range cartIDs {
		res, err := app.Carts.UpsertItem(ctx, service.UpsertItemRequest{ProductID: productID, Quantity: 1})
		if err != nil {
			log.Fatalf("failed to create cart %d: %v", i, err)
		}
		cartIDs[i] = res.Cart.ID
	}

	var successCount, rejectCount, partialCount, errorCount atomic.Int32
	start = time.Now()

	for i, cartID := range cartIDs {
		wg.Add(1)
		go func(userID int, cartID string) {
			defer wg.Done()

			_, err := app.Orders.Convert(ctx, service.ConvertRequest{
				CartID: cartID,
				UserID: fmt.Sprintf("user-%d", userID),
			})
			var partial *domain.PartialConversionError
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.As(err, &partial):
				partialCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				rejectCount.Add(1)
			default:
				errorCount.Add(1)
				logger.Error("conversion failed", "cart_id", cartID, "error", err)
			}
		}(i, cartID)
	}
	wg.Wait()
	convertElapsed := time.Since(start)

	product, err := app.Catalog.GetProduct(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read product: %v", err)
	}

	// Results
	success := successCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:             %s (transactional=%v)\n", cfg.Store.Driver, cfg.Orders.Transactional)
	fmt.Printf("Shared cart adds:  %d (failed %d)\n", sharedAdds, addFailures.Load())
	fmt.Printf("Shared cart qty:   %d\n", quantity)
	fmt.Printf("Add duration:      %v\n", addElapsed)
	fmt.Printf("Initial Stock:     %d\n", initialStock)
	fmt.Printf("Conversions:       %d\n", totalRequests)
	fmt.Printf("Successful:        %d\n", success)
	fmt.Printf("Rejected:          %d\n", rejectCount.Load())
	fmt.Printf("Partial:           %d\n", partialCount.Load())
	fmt.Printf("Errors:            %d\n", errorCount.Load())
	fmt.Printf("Convert duration:  %v\n", convertElapsed)
	fmt.Printf("Final Stock:       %d\n", product.Stock)
	fmt.Println("==========================================")

	// Assertions
	if quantity == sharedAdds {
		fmt.Printf("PASS: Shared cart holds all %d increments\n", sharedAdds)
	} else {
		fmt.Printf("FAIL: Expected quantity %d, got %d\n", sharedAdds, quantity)
		passed = false
	}

	if success == initialStock {
		fmt.Printf("PASS: Exactly %d orders succeeded\n", initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d successful orders, got %d\n", initialStock, success)
		passed = false
	}

	if product.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", product.Stock)
		passed = false
	}

	if !passed {
		app.Close()
		os.Exit(1)
	}
}

func seed(ctx context.Context, app *cli.App) string {
	category, err := app.Catalog.CreateCategory(ctx, service.CategoryRequest{Name: "Stress"})
	if err != nil {
		log.Fatalf("failed to create category: %v", err)
	}

	price := decimal.RequireFromString("9.99")
	stock := initialStock
	product, err := app.Catalog.CreateProduct(ctx, service.CreateProductRequest{
		Name:       "stress-item",
		Price:      &price,
		CategoryID: category.ID,
		Stock:      &stock,
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}
	log.Printf("initialized stock: %s = %d", product.ID, initialStock)
	return product.ID
}
