package filter

import (
	"strings"
	"time"

	"order_dashboard/internal/models"
	"order_dashboard/internal/session"
)

// All disables an enumerated facet.
const All = "All"

// Facets are the independent filter dimensions of a view. Zero values
// disable a facet.
type Facets struct {
	Query     string    `json:"query,omitempty"`
	StartDate time.Time `json:"startDate,omitempty"`
	EndDate   time.Time `json:"endDate,omitempty"`

	Approval        string `json:"approval,omitempty"`
	Production      string `json:"production,omitempty"`
	Installation    string `json:"installation,omitempty"`
	Accounts        string `json:"accounts,omitempty"`
	Dispatch        string `json:"dispatch,omitempty"`
	Billing         string `json:"billing,omitempty"`
	ProductCategory string `json:"productCategory,omitempty"`
}

// Merge returns f with every disabled facet taken from base.
func (f Facets) Merge(base Facets) Facets {
	pick := func(v, b string) string {
		if enabled(v) {
			return v
		}
		return b
	}
	out := f
	if strings.TrimSpace(out.Query) == "" {
		out.Query = base.Query
	}
	if out.StartDate.IsZero() {
		out.StartDate = base.StartDate
	}
	if out.EndDate.IsZero() {
		out.EndDate = base.EndDate
	}
	out.Approval = pick(f.Approval, base.Approval)
	out.Production = pick(f.Production, base.Production)
	out.Installation = pick(f.Installation, base.Installation)
	out.Accounts = pick(f.Accounts, base.Accounts)
	out.Dispatch = pick(f.Dispatch, base.Dispatch)
	out.Billing = pick(f.Billing, base.Billing)
	out.ProductCategory = pick(f.ProductCategory, base.ProductCategory)
	return out
}

// Predicate decides whether one order stays in the view.
type Predicate func(o *models.Order) bool

func enabled(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != All
}

// Predicates builds one predicate per active facet plus the ownership scope.
// They are pure and combined with logical AND, so evaluation order does not
// change the result.
func Predicates(f Facets, sess session.Context, loc *time.Location) []Predicate {
	if loc == nil {
		loc = time.Local
	}
	preds := []Predicate{OwnedBy(sess)}

	if q := strings.TrimSpace(f.Query); q != "" {
		preds = append(preds, MatchesText(q, loc))
	}
	if !f.StartDate.IsZero() || !f.EndDate.IsZero() {
		preds = append(preds, InDateRange(f.StartDate, f.EndDate, loc))
	}

	enums := []struct {
		value string
		field func(o *models.Order) string
	}{
		{f.Approval, func(o *models.Order) string { return o.SOStatus }},
		{f.Production, func(o *models.Order) string { return o.FulfillingStatus }},
		{f.Installation, func(o *models.Order) string { return o.InstallationStatus }},
		{f.Accounts, func(o *models.Order) string { return o.PaymentReceived }},
		{f.Dispatch, func(o *models.Order) string { return o.DispatchStatus }},
		{f.Billing, func(o *models.Order) string { return o.BillStatus }},
	}
	for _, e := range enums {
		if enabled(e.value) {
			preds = append(preds, FieldEquals(e.field, strings.TrimSpace(e.value)))
		}
	}
	if enabled(f.ProductCategory) {
		preds = append(preds, HasProductType(strings.TrimSpace(f.ProductCategory)))
	}
	return preds
}

// OwnedBy keeps orders the session may see.
func OwnedBy(sess session.Context) Predicate {
	return func(o *models.Order) bool {
		owner, assignee := o.OwnerID, o.AssigneeID
		if owner == "" {
			owner = o.CreatedBy.ID
		}
		if assignee == "" && o.AssignedTo != nil {
			assignee = o.AssignedTo.ID
		}
		return sess.CanSee(owner, assignee)
	}
}

// FieldEquals is exact equality on a status field.
func FieldEquals(field func(o *models.Order) string, want string) Predicate {
	return func(o *models.Order) bool {
		return field(o) == want
	}
}

// HasProductType matches when any product of the order has the given type.
func HasProductType(want string) Predicate {
	return func(o *models.Order) bool {
		for i := range o.Products {
			if o.Products[i].ProductType == want {
				return true
			}
		}
		return false
	}
}

// InDateRange is inclusive on the calendar date of soDate in loc. A zero
// bound is open. Orders without a valid soDate never match.
func InDateRange(start, end time.Time, loc *time.Location) Predicate {
	var lo, hi time.Time
	if !start.IsZero() {
		lo = startOfDay(start, loc)
	}
	if !end.IsZero() {
		hi = startOfDay(end, loc).AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return func(o *models.Order) bool {
		if !o.SODate.Valid() {
			return false
		}
		day := startOfDay(o.SODate.Time, loc)
		if !lo.IsZero() && day.Before(lo) {
			return false
		}
		if !hi.IsZero() && day.After(hi) {
			return false
		}
		return true
	}
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
