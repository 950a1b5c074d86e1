package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"order_dashboard/internal/aggregate"
	"order_dashboard/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	ordersSheet  = "Orders"
	summarySheet = "Summary"
)

var orderHeadings = []string{
	"Order ID", "SO Date", "Customer", "Contact", "City", "State", "Created By", "Assigned To",
	"Approval", "Production", "Dispatch", "Installation", "Billing", "Payment Received",
	"Products", "Total", "Collected", "Due", "Invoice No", "Remarks",
}

var summaryHeadings = []string{
	"Group", "Orders", "Total Amount", "Collected", "Due", "Due > 30 Days", "Line Value",
}

// ExportService renders a filtered view as an xlsx workbook: the orders as
// plain rows and their aggregate.
type ExportService struct {
	loc *time.Location
}

func NewExportService(loc *time.Location) *ExportService {
	if loc == nil {
		loc = time.Local
	}
	return &ExportService{loc: loc}
}

func (s *ExportService) Workbook(orders []*models.Order, summary aggregate.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ordersSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, err
	}

	if err := writeRow(f, ordersSheet, 1, toCells(orderHeadings)); err != nil {
		return nil, err
	}
	for i, o := range orders {
		if err := writeRow(f, ordersSheet, i+2, s.orderRow(o)); err != nil {
			return nil, err
		}
	}

	if err := writeRow(f, summarySheet, 1, toCells(summaryHeadings)); err != nil {
		return nil, err
	}
	row := 2
	for _, key := range summary.Keys {
		if err := writeRow(f, summarySheet, row, statsRow(key, summary.Groups[key])); err != nil {
			return nil, err
		}
		row++
	}
	if err := writeRow(f, summarySheet, row, statsRow("Grand Total", &summary.GrandTotal)); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *ExportService) orderRow(o *models.Order) []interface{} {
	assignee := ""
	if o.AssignedTo != nil {
		assignee = o.AssignedTo.Username
	}
	products := make([]string, 0, len(o.Products))
	for _, p := range o.Products {
		products = append(products, fmt.Sprintf("%s x%g", p.ProductType, p.Qty.OrZero()))
	}
	soDate := ""
	if o.SODate.Valid() {
		soDate = o.SODate.In(s.loc).Format("02/01/2006")
	}
	return []interface{}{
		o.OrderID, soDate, o.CustomerName, o.ContactNo, o.City, o.State, o.CreatedBy.Username, assignee,
		o.SOStatus, o.FulfillingStatus, o.DispatchStatus, o.InstallationStatus, o.BillStatus, o.PaymentReceived,
		strings.Join(products, ", "), o.Total.OrZero(), o.PaymentCollected.OrZero(), o.PaymentDue.OrZero(),
		o.InvoiceNo, o.Remarks,
	}
}

func statsRow(label string, st *aggregate.Stats) []interface{} {
	r := st.Rounded()
	return []interface{}{
		label, r.OrderCount,
		r.TotalAmount.InexactFloat64(), r.TotalCollected.InexactFloat64(), r.TotalDue.InexactFloat64(),
		r.DueOver30Days.InexactFloat64(), r.TotalLineValue.InexactFloat64(),
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toCells(headings []string) []interface{} {
	out := make([]interface{}, len(headings))
	for i, h := range headings {
		out[i] = h
	}
	return out
}
