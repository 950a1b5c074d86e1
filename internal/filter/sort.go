package filter

import (
	"cmp"
	"strings"

	"order_dashboard/internal/models"
)

// Comparator orders two orders for display; negative means a comes first.
type Comparator func(a, b *models.Order) int

// ByRecency sorts by updatedAt, then createdAt, then soDate, newest first.
// Missing dates count as the epoch.
func ByRecency(a, b *models.Order) int {
	if c := cmp.Compare(b.UpdatedAt.Millis(), a.UpdatedAt.Millis()); c != 0 {
		return c
	}
	if c := cmp.Compare(b.CreatedAt.Millis(), a.CreatedAt.Millis()); c != 0 {
		return c
	}
	return cmp.Compare(b.SODate.Millis(), a.SODate.Millis())
}

// BySODateDesc sorts by soDate only, newest first.
func BySODateDesc(a, b *models.Order) int {
	return cmp.Compare(b.SODate.Millis(), a.SODate.Millis())
}

// withIDTieBreak makes any comparator total so equal keys keep a fixed order.
func withIDTieBreak(c Comparator) Comparator {
	return func(a, b *models.Order) int {
		if r := c(a, b); r != 0 {
			return r
		}
		if r := strings.Compare(a.ID, b.ID); r != 0 {
			return r
		}
		return strings.Compare(a.OrderID, b.OrderID)
	}
}
