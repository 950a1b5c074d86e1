package models

// EventType distinguishes push-channel messages.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// OrderEvent is one message from the realtime channel. Insert and update
// events carry the full authoritative order; delete events may carry only
// the id and its owners.
type OrderEvent struct {
	Type       EventType `json:"type"`
	Order      *Order    `json:"order,omitempty"`
	ID         string    `json:"id,omitempty"`
	OwnerID    string    `json:"ownerId,omitempty"`
	AssigneeID string    `json:"assigneeId,omitempty"`
}

// OrderKey returns the id the event refers to.
func (e OrderEvent) OrderKey() string {
	if e.Order != nil && e.Order.ID != "" {
		return e.Order.ID
	}
	return e.ID
}

// Owners returns the owner and assignee used for the visibility check,
// falling back to the embedded order when the envelope omits them.
func (e OrderEvent) Owners() (owner, assignee string) {
	owner, assignee = e.OwnerID, e.AssigneeID
	if e.Order == nil {
		return owner, assignee
	}
	if owner == "" {
		owner = e.Order.CreatedBy.ID
		if owner == "" {
			owner = e.Order.OwnerID
		}
	}
	if assignee == "" {
		if e.Order.AssignedTo != nil {
			assignee = e.Order.AssignedTo.ID
		}
		if assignee == "" {
			assignee = e.Order.AssigneeID
		}
	}
	return owner, assignee
}
