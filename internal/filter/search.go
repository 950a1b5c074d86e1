package filter

import (
	"strconv"
	"strings"
	"time"

	"order_dashboard/internal/models"
)

var searchDateLayouts = []string{"02/01/2006", "2006-01-02"}

// MatchesText is a case-insensitive substring match over the order's
// searchable fields and every product's fields.
func MatchesText(query string, loc *time.Location) Predicate {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return func(*models.Order) bool { return true }
	}
	contains := func(s string) bool {
		return s != "" && strings.Contains(strings.ToLower(s), q)
	}
	return func(o *models.Order) bool {
		for _, s := range orderFields(o) {
			if contains(s) {
				return true
			}
		}
		for _, d := range []models.Date{o.SODate, o.DispatchDate, o.DeliveryDate, o.InvoiceDate} {
			if !d.Valid() {
				continue
			}
			for _, layout := range searchDateLayouts {
				if contains(d.In(loc).Format(layout)) {
					return true
				}
			}
		}
		for i := range o.Products {
			if productMatches(&o.Products[i], contains) {
				return true
			}
		}
		return false
	}
}

func orderFields(o *models.Order) []string {
	fields := []string{
		o.OrderID,
		o.CustomerName,
		o.Name,
		o.ContactNo,
		o.AlterContactNo,
		o.CustomerEmail,
		o.ShippingAddress,
		o.BillingAddress,
		o.City,
		o.State,
		o.Pincode,
		o.GSTNo,
		o.Remarks,
		o.ProductionRemarks,
		o.InstallationRemarks,
		o.AccountsRemarks,
		o.BillingRemarks,
		o.DispatchRemarks,
		o.VerificationRemarks,
		o.InvoiceNo,
		o.BillNumber,
		o.Transporter,
		o.SOStatus,
		o.FulfillingStatus,
		o.InstallationStatus,
		o.DispatchStatus,
		o.BillStatus,
		o.PaymentMethod,
		o.PaymentTerms,
		o.CreatedBy.Username,
	}
	if o.AssignedTo != nil {
		fields = append(fields, o.AssignedTo.Username)
	}
	return fields
}

func productMatches(p *models.Product, contains func(string) bool) bool {
	if contains(p.ProductType) || contains(p.Size) || contains(p.Spec) || contains(p.Brand) {
		return true
	}
	if p.Qty.Finite() && contains(formatNumber(p.Qty.Float())) {
		return true
	}
	if p.UnitPrice.Finite() && contains(formatNumber(p.UnitPrice.Float())) {
		return true
	}
	for _, s := range p.SerialNos {
		if contains(s) {
			return true
		}
	}
	for _, s := range p.ModelNos {
		if contains(s) {
			return true
		}
	}
	return false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
