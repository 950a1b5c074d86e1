package models

import (
	"encoding/json"
)

// Order is the workflow record shared by every role view. It is decoded from
// the upstream API as-is and normalised once at ingestion (see Normalize);
// after that it is treated as immutable.
type Order struct {
	ID         string   `json:"_id"`
	OrderID    string   `json:"orderId"`
	CreatedBy  UserRef  `json:"createdBy"`
	AssignedTo *UserRef `json:"assignedTo,omitempty"`

	// Canonical ownership, filled by Normalize.
	OwnerID    string `json:"ownerId,omitempty"`
	AssigneeID string `json:"assigneeId,omitempty"`

	SOStatus           string `json:"sostatus"`
	FulfillingStatus   string `json:"fulfillingStatus"`
	InstallationStatus string `json:"installationStatus"`
	DispatchStatus     string `json:"dispatchStatus"`
	BillStatus         string `json:"billStatus"`
	PaymentReceived    string `json:"paymentReceived"`
	Stamp              string `json:"stamp,omitempty"`

	Total            Amount    `json:"total"`
	PaymentCollected Amount    `json:"paymentCollected"`
	PaymentDue       Amount    `json:"paymentDue"`
	PaymentMethod    string    `json:"paymentMethod"`
	PaymentTerms     string    `json:"paymentTerms"`
	Products         []Product `json:"products"`

	SODate       Date `json:"soDate"`
	DispatchDate Date `json:"dispatchDate"`
	DeliveryDate Date `json:"deliveryDate"`
	InvoiceDate  Date `json:"invoiceDate"`
	UpdatedAt    Date `json:"updatedAt"`
	CreatedAt    Date `json:"createdAt"`

	CustomerName        string `json:"customername"`
	Name                string `json:"name"`
	ContactNo           string `json:"contactNo"`
	AlterContactNo      string `json:"alterContactNo"`
	CustomerEmail       string `json:"customerEmail"`
	ShippingAddress     string `json:"shippingAddress"`
	BillingAddress      string `json:"billingAddress"`
	City                string `json:"city"`
	State               string `json:"state"`
	Pincode             string `json:"pinCode"`
	GSTNo               string `json:"gstno"`
	Remarks             string `json:"remarks"`
	ProductionRemarks   string `json:"remarksByProduction"`
	InstallationRemarks string `json:"remarksByInstallation"`
	AccountsRemarks     string `json:"remarksByAccounts"`
	BillingRemarks      string `json:"remarksByBilling"`
	DispatchRemarks     string `json:"remarksByDispatch"`
	VerificationRemarks string `json:"remarksByVerification"`
	InvoiceNo           string `json:"invoiceNo"`
	BillNumber          string `json:"billNumber"`
	Transporter         string `json:"transporter"`
}

// Approval status (sostatus)
const (
	ApprovalPending          = "Pending for Approval"
	ApprovalAccountsApproved = "Accounts Approved"
	ApprovalApproved         = "Approved"
)

// Production status (fulfillingStatus)
const (
	FulfillingPending         = "Pending"
	FulfillingUnderProcess    = "Under Process"
	FulfillingPartialDispatch = "Partial Dispatch"
	FulfillingFulfilled       = "Fulfilled"
)

// Installation status
const (
	InstallationPending      = "Pending"
	InstallationInProgress   = "In Progress"
	InstallationCompleted    = "Completed"
	InstallationFailed       = "Failed"
	InstallationHoldBySales  = "Hold by Salesperson"
	InstallationHoldByClient = "Hold by Customer"
	InstallationSiteNotReady = "Site Not Ready"
)

// Billing status
const (
	BillPending      = "Pending"
	BillUnderBilling = "Under Billing"
	BillComplete     = "Billing Complete"
)

// Payment received status
const (
	PaymentReceivedYes = "Received"
	PaymentReceivedNo  = "Not Received"
)

// UnmarshalJSON accepts both "_id" and "id" as the identity key.
func (o *Order) UnmarshalJSON(data []byte) error {
	type alias Order
	aux := struct {
		*alias
		PlainID string `json:"id"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = aux.PlainID
	}
	return nil
}

// Normalize collapses the two shapes of createdBy/assignedTo into the
// canonical OwnerID and AssigneeID fields.
func (o *Order) Normalize() {
	if o.CreatedBy.ID != "" {
		o.OwnerID = o.CreatedBy.ID
	}
	if o.AssignedTo != nil && o.AssignedTo.ID != "" {
		o.AssigneeID = o.AssignedTo.ID
	}
}

// HasIdentity reports whether the order can be shown at all.
func (o *Order) HasIdentity() bool {
	return o.ID != "" || o.OrderID != ""
}

// Clone returns a copy that shares no slices with o.
func (o *Order) Clone() *Order {
	c := *o
	if o.AssignedTo != nil {
		a := *o.AssignedTo
		c.AssignedTo = &a
	}
	if o.Products != nil {
		c.Products = make([]Product, len(o.Products))
		for i, p := range o.Products {
			c.Products[i] = p.clone()
		}
	}
	return &c
}
