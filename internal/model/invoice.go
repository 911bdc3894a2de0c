package model

// LineItem is one billed position of an invoice.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Amount      float64 `json:"amount"`
	SKU         string  `json:"sku,omitempty"`
}

// Invoice is an immutable snapshot of one invoice as received from upstream
// extraction. Corrections produce a new Invoice value, never an in-place edit.
// Amount fields are pointers so an explicit 0 is distinguishable from absent.
type Invoice struct {
	ID            string     `json:"id,omitempty"`
	VendorName    string     `json:"vendor_name"`
	InvoiceNumber string     `json:"invoice_number"`
	Date          string     `json:"date,omitempty"`         // YYYY-MM-DD
	ServiceDate   string     `json:"service_date,omitempty"` // YYYY-MM-DD
	DueDate       string     `json:"due_date,omitempty"`     // YYYY-MM-DD
	NetAmount     *float64   `json:"net_amount,omitempty"`
	TaxAmount     *float64   `json:"tax_amount,omitempty"`
	TotalAmount   *float64   `json:"total_amount,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	LineItems     []LineItem `json:"line_items,omitempty"`
	PaymentTerms  string     `json:"payment_terms,omitempty"`
	PONumber      string     `json:"po_number,omitempty"`
	RawText       string     `json:"raw_text"`
}

// Canonical field names used by rules, proposals and the output contract.
const (
	FieldVendor        = "vendor"
	FieldInvoiceNumber = "invoiceNumber"
	FieldDate          = "date"
	FieldServiceDate   = "serviceDate"
	FieldDueDate       = "dueDate"
	FieldNetAmount     = "netAmount"
	FieldTaxAmount     = "taxAmount"
	FieldTotalAmount   = "totalAmount"
	FieldCurrency      = "currency"
	FieldLineItems     = "lineItems"
	FieldPaymentTerms  = "paymentTerms"
	FieldPONumber      = "poNumber"
	FieldRawText       = "rawText"
	FieldSKU           = "sku"
)

// ContractFields is the fixed set of output fields the decision engine merges,
// in its documented order.
var ContractFields = []string{
	FieldDate,
	FieldServiceDate,
	FieldDueDate,
	FieldTotalAmount,
	FieldTaxAmount,
	FieldNetAmount,
	FieldCurrency,
	FieldLineItems,
	FieldPaymentTerms,
	FieldPONumber,
}

// Record flattens the invoice into the map shape the rule evaluator and the
// induction diff operate on. Absent optional fields are omitted entirely.
func (inv Invoice) Record() map[string]any {
	rec := map[string]any{
		FieldVendor:        inv.VendorName,
		FieldInvoiceNumber: inv.InvoiceNumber,
		FieldRawText:       inv.RawText,
	}
	putString(rec, FieldDate, inv.Date)
	putString(rec, FieldServiceDate, inv.ServiceDate)
	putString(rec, FieldDueDate, inv.DueDate)
	putString(rec, FieldCurrency, inv.Currency)
	putString(rec, FieldPaymentTerms, inv.PaymentTerms)
	putString(rec, FieldPONumber, inv.PONumber)
	putAmount(rec, FieldNetAmount, inv.NetAmount)
	putAmount(rec, FieldTaxAmount, inv.TaxAmount)
	putAmount(rec, FieldTotalAmount, inv.TotalAmount)
	if len(inv.LineItems) > 0 {
		items := make([]map[string]any, len(inv.LineItems))
		for i, li := range inv.LineItems {
			items[i] = map[string]any{
				"description": li.Description,
				"quantity":    li.Quantity,
				"unitPrice":   li.UnitPrice,
				"amount":      li.Amount,
				FieldSKU:      li.SKU,
			}
		}
		rec[FieldLineItems] = items
	}
	return rec
}

// Field returns the invoice value for a canonical field name. The second
// return reports whether the field is present and non-empty.
func (inv Invoice) Field(name string) (any, bool) {
	switch name {
	case FieldVendor:
		return inv.VendorName, inv.VendorName != ""
	case FieldInvoiceNumber:
		return inv.InvoiceNumber, inv.InvoiceNumber != ""
	case FieldDate:
		return inv.Date, inv.Date != ""
	case FieldServiceDate:
		return inv.ServiceDate, inv.ServiceDate != ""
	case FieldDueDate:
		return inv.DueDate, inv.DueDate != ""
	case FieldNetAmount:
		return deref(inv.NetAmount)
	case FieldTaxAmount:
		return deref(inv.TaxAmount)
	case FieldTotalAmount:
		return deref(inv.TotalAmount)
	case FieldCurrency:
		return inv.Currency, inv.Currency != ""
	case FieldLineItems:
		return inv.LineItems, len(inv.LineItems) > 0
	case FieldPaymentTerms:
		return inv.PaymentTerms, inv.PaymentTerms != ""
	case FieldPONumber:
		return inv.PONumber, inv.PONumber != ""
	case FieldRawText:
		return inv.RawText, inv.RawText != ""
	}
	return nil, false
}

// SetField writes a proposal value into the invoice copy the decision engine
// is assembling. Unknown fields and unconvertible values are ignored; a rule
// producing garbage must not corrupt the contract.
func (inv *Invoice) SetField(name string, v any) bool {
	switch name {
	case FieldVendor:
		return setString(&inv.VendorName, v)
	case FieldInvoiceNumber:
		return setString(&inv.InvoiceNumber, v)
	case FieldDate:
		return setString(&inv.Date, v)
	case FieldServiceDate:
		return setString(&inv.ServiceDate, v)
	case FieldDueDate:
		return setString(&inv.DueDate, v)
	case FieldNetAmount:
		return setAmount(&inv.NetAmount, v)
	case FieldTaxAmount:
		return setAmount(&inv.TaxAmount, v)
	case FieldTotalAmount:
		return setAmount(&inv.TotalAmount, v)
	case FieldCurrency:
		return setString(&inv.Currency, v)
	case FieldPaymentTerms:
		return setString(&inv.PaymentTerms, v)
	case FieldPONumber:
		return setString(&inv.PONumber, v)
	case FieldLineItems:
		items, ok := v.([]LineItem)
		if !ok {
			return false
		}
		inv.LineItems = items
		return true
	}
	return false
}

func putString(rec map[string]any, key, v string) {
	if v != "" {
		rec[key] = v
	}
}

func putAmount(rec map[string]any, key string, v *float64) {
	if v != nil {
		rec[key] = *v
	}
}

func deref(v *float64) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

func setString(dst *string, v any) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return false
	}
	*dst = s
	return true
}

func setAmount(dst **float64, v any) bool {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		return false
	}
	*dst = &f
	return true
}

// Float is a convenience for building optional amount fields in literals.
func Float(v float64) *float64 { return &v }
