package models

// Product is one line of an order.
type Product struct {
	ProductType string   `json:"productType"`
	Size        string   `json:"size"`
	Spec        string   `json:"spec"`
	Qty         Amount   `json:"qty"`
	UnitPrice   Amount   `json:"unitPrice"`
	GST         string   `json:"gst"`
	SerialNos   []string `json:"serialNos"`
	ModelNos    []string `json:"modelNos"`
	Brand       string   `json:"brand,omitempty"`
	Warranty    string   `json:"warranty,omitempty"`
}

// LineValue is unitPrice * qty, or 0 when either side is not a finite number.
func (p Product) LineValue() float64 {
	if !p.Qty.Finite() || !p.UnitPrice.Finite() {
		return 0
	}
	v := p.UnitPrice.Float() * p.Qty.Float()
	if !Amount(v).Finite() {
		return 0
	}
	return v
}

func (p Product) clone() Product {
	c := p
	if p.SerialNos != nil {
		c.SerialNos = append([]string(nil), p.SerialNos...)
	}
	if p.ModelNos != nil {
		c.ModelNos = append([]string(nil), p.ModelNos...)
	}
	return c
}
