package aggregate

import (
	"math"
	"sort"
	"time"

	"order_dashboard/internal/models"

	"github.com/shopspring/decimal"
)

// Unassigned labels orders without a creator.
const Unassigned = "Unassigned"

const overdueDays = 30

// Stats are raw accumulations. Values are never rounded here; use Rounded
// when presenting them.
type Stats struct {
	OrderCount     int     `json:"orderCount"`
	TotalAmount    float64 `json:"totalAmount"`
	TotalCollected float64 `json:"totalCollected"`
	TotalDue       float64 `json:"totalDue"`
	DueOver30Days  float64 `json:"dueOver30Days"`
	TotalLineValue float64 `json:"totalLineValue"`
}

// RoundedStats is Stats rounded to two decimals for display and export.
type RoundedStats struct {
	OrderCount     int             `json:"orderCount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	TotalCollected decimal.Decimal `json:"totalCollected"`
	TotalDue       decimal.Decimal `json:"totalDue"`
	DueOver30Days  decimal.Decimal `json:"dueOver30Days"`
	TotalLineValue decimal.Decimal `json:"totalLineValue"`
}

func (s Stats) Rounded() RoundedStats {
	return RoundedStats{
		OrderCount:     s.OrderCount,
		TotalAmount:    round2(s.TotalAmount),
		TotalCollected: round2(s.TotalCollected),
		TotalDue:       round2(s.TotalDue),
		DueOver30Days:  round2(s.DueOver30Days),
		TotalLineValue: round2(s.TotalLineValue),
	}
}

func (s *Stats) add(o Stats) {
	s.OrderCount += o.OrderCount
	s.TotalAmount = addFinite(s.TotalAmount, o.TotalAmount)
	s.TotalCollected = addFinite(s.TotalCollected, o.TotalCollected)
	s.TotalDue = addFinite(s.TotalDue, o.TotalDue)
	s.DueOver30Days = addFinite(s.DueOver30Days, o.DueOver30Days)
	s.TotalLineValue = addFinite(s.TotalLineValue, o.TotalLineValue)
}

// GroupFunc maps an order to its group key.
type GroupFunc func(o *models.Order) string

// ByCreator groups by the creator's username, falling back to the raw id.
func ByCreator(o *models.Order) string {
	if o.CreatedBy.Username != "" {
		return o.CreatedBy.Username
	}
	if o.CreatedBy.ID != "" {
		return o.CreatedBy.ID
	}
	return Unassigned
}

// ByField groups by an arbitrary string field; empty values go to Unassigned.
func ByField(field func(o *models.Order) string) GroupFunc {
	return func(o *models.Order) string {
		if v := field(o); v != "" {
			return v
		}
		return Unassigned
	}
}

// Result holds per-group stats, the group keys in sorted order and the
// grand total over all groups.
type Result struct {
	Keys       []string          `json:"keys"`
	Groups     map[string]*Stats `json:"groups"`
	GrandTotal Stats             `json:"grandTotal"`
}

// Aggregate accumulates orders into groups in a single pass. Missing or
// non-finite inputs contribute zero.
func Aggregate(orders []*models.Order, groupBy GroupFunc, now time.Time) Result {
	if groupBy == nil {
		groupBy = ByCreator
	}
	res := Result{Groups: map[string]*Stats{}}
	for _, o := range orders {
		if o == nil {
			continue
		}
		key := groupBy(o)
		st, ok := res.Groups[key]
		if !ok {
			st = &Stats{}
			res.Groups[key] = st
			res.Keys = append(res.Keys, key)
		}
		accumulate(st, o, now)
	}
	sort.Strings(res.Keys)
	for _, k := range res.Keys {
		res.GrandTotal.add(*res.Groups[k])
	}
	return res
}

func accumulate(st *Stats, o *models.Order, now time.Time) {
	st.OrderCount++
	st.TotalAmount = addFinite(st.TotalAmount, o.Total.Float())
	st.TotalCollected = addFinite(st.TotalCollected, o.PaymentCollected.Float())
	st.TotalDue = addFinite(st.TotalDue, o.PaymentDue.Float())

	if due := o.PaymentDue.OrZero(); due > 0 && o.SODate.Valid() && ageInDays(o.SODate.Time, now) > overdueDays {
		st.DueOver30Days = addFinite(st.DueOver30Days, due)
	}
	for i := range o.Products {
		st.TotalLineValue = addFinite(st.TotalLineValue, o.Products[i].LineValue())
	}
}

func ageInDays(from, now time.Time) int64 {
	return int64(math.Floor(now.Sub(from).Hours() / 24))
}

// addFinite adds v to sum unless v, or the result, is NaN or infinite.
func addFinite(sum, v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sum
	}
	next := sum + v
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return sum
	}
	return next
}

func round2(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(2)
}
