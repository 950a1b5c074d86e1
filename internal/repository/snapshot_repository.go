package repository

import (
	"context"
	"errors"

	"order_dashboard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRepository persists order snapshots in postgres.
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *models.OrderSnapshot) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.OrderSnapshot, error)
	GetAll(ctx context.Context) ([]*models.OrderSnapshot, error)
	GetVisibleTo(ctx context.Context, userID string) ([]*models.OrderSnapshot, error)
}

type snapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

// Save inserts or overwrites the row with the same id.
func (r *snapshotRepository) Save(ctx context.Context, snapshot *models.OrderSnapshot) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"order_id", "owner_id", "assignee_id", "payload", "updated_at", "deleted_at"}),
	}).Create(snapshot).Error
}

// Delete soft-deletes the row; ErrOrderNotFound when nothing matched.
func (r *snapshotRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.OrderSnapshot{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

func (r *snapshotRepository) GetByID(ctx context.Context, id string) (*models.OrderSnapshot, error) {
	var snapshot models.OrderSnapshot
	err := r.db.WithContext(ctx).First(&snapshot, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *snapshotRepository) GetAll(ctx context.Context) ([]*models.OrderSnapshot, error) {
	var snapshots []*models.OrderSnapshot
	err := r.db.WithContext(ctx).Order("created_at").Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *snapshotRepository) GetVisibleTo(ctx context.Context, userID string) ([]*models.OrderSnapshot, error) {
	var snapshots []*models.OrderSnapshot
	err := r.db.WithContext(ctx).
		Where("owner_id = ? OR assignee_id = ?", userID, userID).
		Order("created_at").
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
