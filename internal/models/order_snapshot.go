package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// OrderSnapshot is the database row behind ORDER_SOURCE=database. The full
// order is kept as JSON; ownership columns are indexed for scoped fetches.
type OrderSnapshot struct {
	ID         string         `json:"id" gorm:"primaryKey;type:varchar(64)"`
	OrderID    string         `json:"order_id" gorm:"index"`
	OwnerID    string         `json:"owner_id" gorm:"index"`
	AssigneeID string         `json:"assignee_id" gorm:"index"`
	Payload    []byte         `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

func (OrderSnapshot) TableName() string {
	return "order_snapshots"
}

func NewOrderSnapshot(o *Order) (*OrderSnapshot, error) {
	if o == nil || o.ID == "" {
		return nil, &ValidationError{Field: "_id", Reason: "is required"}
	}
	c := o.Clone()
	c.Normalize()
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order %s: %w", o.ID, err)
	}
	return &OrderSnapshot{
		ID:         c.ID,
		OrderID:    c.OrderID,
		OwnerID:    c.OwnerID,
		AssigneeID: c.AssigneeID,
		Payload:    payload,
	}, nil
}

// Order decodes the stored payload.
func (s *OrderSnapshot) Order() (*Order, error) {
	var o Order
	if err := json.Unmarshal(s.Payload, &o); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", s.ID, err)
	}
	if o.ID == "" {
		o.ID = s.ID
	}
	o.Normalize()
	return &o, nil
}
