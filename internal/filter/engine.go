package filter

import (
	"slices"
	"time"

	"order_dashboard/internal/models"
	"order_dashboard/internal/session"
)

// Options are the per-view knobs of the engine.
type Options struct {
	Comparator Comparator
	Location   *time.Location
}

// Apply returns the visible, sorted subset of orders. It never modifies its
// input and is safe to call on every repository or facet change.
func Apply(orders []*models.Order, f Facets, sess session.Context, opts Options) []*models.Order {
	preds := Predicates(f, sess, opts.Location)
	out := make([]*models.Order, 0, len(orders))
	for _, o := range orders {
		if o == nil || !o.HasIdentity() {
			continue
		}
		if matchAll(o, preds) {
			out = append(out, o)
		}
	}
	comparator := opts.Comparator
	if comparator == nil {
		comparator = ByRecency
	}
	slices.SortStableFunc(out, withIDTieBreak(comparator))
	return out
}

func matchAll(o *models.Order, preds []Predicate) bool {
	for _, p := range preds {
		if !p(o) {
			return false
		}
	}
	return true
}

// Page is a window over a filtered view.
type Page struct {
	Items []*models.Order `json:"items"`
	Start int             `json:"start"`
	Count int             `json:"count"`
	Total int             `json:"total"`
}

// Window slices [start, start+count) out of orders, clamped to its bounds.
// A non-positive count returns everything from start.
func Window(orders []*models.Order, start, count int) Page {
	total := len(orders)
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if count > 0 && start+count < total {
		end = start + count
	}
	items := orders[start:end:end]
	return Page{Items: items, Start: start, Count: len(items), Total: total}
}
