package migrations

import (
	"context"
	"fmt"

	"order_dashboard/internal/models"
	"order_dashboard/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunMigrations recreates the snapshot table when reset is set and loads
// seed orders into it. It returns the orders that were stored.
func RunMigrations(ctx context.Context, db *gorm.DB, log logrus.FieldLogger, reset bool, seed []*models.Order) ([]*models.Order, error) {
	log.Info("Running database migrations...")

	if reset {
		log.Info("Dropping existing tables...")
		if err := db.Migrator().DropTable(&models.OrderSnapshot{}); err != nil {
			log.WithError(err).Warn("Error dropping tables")
		}
	}

	log.Info("Creating tables...")
	if err := db.AutoMigrate(&models.OrderSnapshot{}); err != nil {
		return nil, err
	}

	stored, err := createDefaultData(ctx, repository.NewSnapshotRepository(db), log, seed)
	if err != nil {
		return stored, err
	}

	log.WithField("orders", len(stored)).Info("Database migrations completed successfully!")
	return stored, nil
}

func createDefaultData(ctx context.Context, repo repository.SnapshotRepository, log logrus.FieldLogger, seed []*models.Order) ([]*models.Order, error) {
	stored := make([]*models.Order, 0, len(seed))
	for _, o := range seed {
		snapshot, err := models.NewOrderSnapshot(o)
		if err != nil {
			log.WithError(err).Warn("Skipping seed order")
			continue
		}
		if err := repo.Save(ctx, snapshot); err != nil {
			return stored, fmt.Errorf("failed to store order %s: %w", o.ID, err)
		}
		stored = append(stored, o)
	}
	return stored, nil
}
