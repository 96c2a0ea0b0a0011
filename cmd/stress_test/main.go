package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
)

type store interface {
	port.CatalogRepository
	port.CartRepository
	port.OrderRepository
	port.UnitOfWork
}

type nopNotifier struct{}

func (nopNotifier) SendOrderConfirmation(context.Context, string, domain.Order) error { return nil }

func main() {
	backend := flag.String("storage", "memory", "memory or mysql (uses MYSQL_DSN)")
	flag.Parse()

	ctx := context.Background()

	var repos store
	switch *backend {
	case "mysql":
		db, err := sql.Open("mysql", config.Load().MySQLDSN)
		if err != nil {
			log.Fatalf("failed to open mysql: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(totalRequests)
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		mysqlStore := storage.NewMySQLAdapter(db)
		if err := mysqlStore.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		repos = mysqlStore
	default:
		repos = storage.NewMemoryAdapter()
	}

	// Fresh ids per run so reruns against mysql do not collide
	run := uuid.NewString()[:8]
	itemID := "stress-item-" + run
	if err := repos.CreateProduct(ctx, domain.Product{
		ID:    itemID,
		Name:  "Stress item",
		Price: decimal.NewFromInt(99),
		Stock: initialStock,
	}); err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	users := make([]string, totalRequests)
	for i := range users {
		users[i] = fmt.Sprintf("stress-%s-user-%d", run, i)
		cart, err := repos.GetOrCreateCart(ctx, users[i])
		if err != nil {
			log.Fatalf("failed to create cart: %v", err)
		}
		if err := repos.AddLine(ctx, cart.ID, itemID, 1); err != nil {
			log.Fatalf("failed to fill cart: %v", err)
		}
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	checkout := service.NewCheckoutService(quiet, repos, repos, nopNotifier{})

	// Counters
	var successCount, soldOutCount, errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()
	for _, userID := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()

			_, err := checkout.Checkout(ctx, service.CheckoutRequest{UserID: userID})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("unexpected checkout error for %s: %v", userID, err)
			}
		}(userID)
	}
	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Storage:          %s\n", *backend)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	product, err := repos.GetProduct(ctx, itemID)
	if err != nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", product.Stock)
	if product.Stock == 0 {
		fmt.Println("PASS: stock depleted to 0")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", product.Stock)
	}

	var orders int
	for _, userID := range users {
		placed, err := repos.ListOrders(ctx, port.OrderFilter{UserID: userID})
		if err != nil {
			log.Fatalf("failed to list orders: %v", err)
		}
		orders += len(placed)
	}
	if orders == initialStock {
		fmt.Printf("PASS: %d orders recorded\n", orders)
	} else {
		fmt.Printf("FAIL: expected %d orders, got %d\n", initialStock, orders)
	}
}
