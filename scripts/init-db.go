package main

import (
	"context"
	"fmt"
	"time"

	"order_dashboard/internal/config"
	"order_dashboard/internal/database"
	"order_dashboard/internal/migrations"
	"order_dashboard/internal/models"
	"order_dashboard/internal/redis"

	"github.com/google/uuid"
)

// Seeds the order snapshot table with sample orders and announces each one
// on the order events channel.
func main() {
	fmt.Println("Initializing database...")

	// Load configuration
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	// Initialize database
	db, err := database.Initialize(cfg.DatabaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	stored, err := migrations.RunMigrations(ctx, db, logger, true, sampleOrders(time.Now()))
	if err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	redisClient, err := redis.Initialize(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, skipping order announcements")
		return
	}
	defer redisClient.Close()

	for _, o := range stored {
		event := models.OrderEvent{Type: models.EventInsert, Order: o}
		if err := redisClient.PublishOrderEvent(ctx, cfg.OrderEventsChannel, event); err != nil {
			config.LogError(logger, "init-db", "main", "publish", o.ID, err)
		}
	}

	fmt.Printf("Database initialization completed successfully! %d orders seeded\n", len(stored))
}

func sampleOrders(now time.Time) []*models.Order {
	sales := []models.UserRef{
		{ID: "sales-1", Username: "asha"},
		{ID: "sales-2", Username: "ravi"},
	}
	installer := &models.UserRef{ID: "install-1", Username: "kiran"}

	statuses := []string{models.ApprovalPending, models.ApprovalApproved, models.ApprovalAccountsApproved}
	installs := []string{models.InstallationPending, models.InstallationInProgress, models.InstallationCompleted}
	products := []string{"Interactive Panel", "Chair", "Projector"}

	var orders []*models.Order
	for i := 0; i < 12; i++ {
		soDate := now.AddDate(0, 0, -7*i)
		total := float64(10000 + 2500*i)
		collected := total * float64(i%3) / 2
		if collected > total {
			collected = total
		}
		o := &models.Order{
			ID:                 uuid.NewString(),
			OrderID:            fmt.Sprintf("PMTO%04d", i+1),
			CreatedBy:          sales[i%len(sales)],
			SOStatus:           statuses[i%len(statuses)],
			InstallationStatus: installs[i%len(installs)],
			FulfillingStatus:   models.FulfillingPending,
			PaymentReceived:    models.PaymentReceivedNo,
			Total:              models.Amount(total),
			PaymentCollected:   models.Amount(collected),
			PaymentDue:         models.Amount(total - collected),
			SODate:             models.NewDate(soDate),
			CreatedAt:          models.NewDate(soDate),
			UpdatedAt:          models.NewDate(soDate.Add(time.Hour)),
			CustomerName:       fmt.Sprintf("Customer %d", i+1),
			City:               []string{"Pune", "Delhi", "Jaipur"}[i%3],
			Products: []models.Product{{
				ProductType: products[i%len(products)],
				Qty:         models.Amount(1 + i%4),
				UnitPrice:   models.Amount(total / float64(1+i%4)),
				SerialNos:   []string{fmt.Sprintf("SN-%04d", i+1)},
			}},
		}
		if i%2 == 0 {
			o.AssignedTo = installer
		}
		orders = append(orders, o)
	}
	return orders
}
