package model

import (
	"regexp"
	"time"

	"github.com/rotisserie/eris"
)

// ErrValidation marks schema violations at the boundary. Callers distinguish
// these from business outcomes and from persistence failures.
var ErrValidation = eris.New("validation failed")

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var validCurrencies = map[string]bool{
	"EUR": true, "USD": true, "GBP": true, "CHF": true, "JPY": true,
}

func invalidf(format string, args ...any) error {
	return eris.Wrapf(ErrValidation, format, args...)
}

// Validate checks the invoice against the boundary schema. It must pass
// before the invoice enters the core.
func (inv Invoice) Validate() error {
	if inv.VendorName == "" {
		return invalidf("invoice: vendor_name is required")
	}
	if inv.InvoiceNumber == "" {
		return invalidf("invoice: invoice_number is required")
	}
	if inv.RawText == "" {
		return invalidf("invoice: raw_text is required")
	}
	for _, d := range []struct{ name, value string }{
		{"date", inv.Date},
		{"service_date", inv.ServiceDate},
		{"due_date", inv.DueDate},
	} {
		if d.value == "" {
			continue
		}
		if !isoDateRe.MatchString(d.value) {
			return invalidf("invoice: %s %q is not YYYY-MM-DD", d.name, d.value)
		}
		if _, err := time.Parse("2006-01-02", d.value); err != nil {
			return invalidf("invoice: %s %q is not a calendar date", d.name, d.value)
		}
	}
	for _, a := range []struct {
		name  string
		value *float64
	}{
		{"net_amount", inv.NetAmount},
		{"tax_amount", inv.TaxAmount},
		{"total_amount", inv.TotalAmount},
	} {
		if a.value != nil && *a.value < 0 {
			return invalidf("invoice: %s must not be negative", a.name)
		}
	}
	if inv.Currency != "" && !validCurrencies[inv.Currency] {
		return invalidf("invoice: unknown currency %q", inv.Currency)
	}
	for i, li := range inv.LineItems {
		if li.Description == "" {
			return invalidf("invoice: line_items[%d]: description is required", i)
		}
		if li.Quantity < 0 || li.UnitPrice < 0 || li.Amount < 0 {
			return invalidf("invoice: line_items[%d]: negative value", i)
		}
	}
	return nil
}

// Validate checks an output contract before it is handed back for learning.
func (oc OutputContract) Validate() error {
	if err := oc.Invoice.Validate(); err != nil {
		return err
	}
	if oc.Confidence < 0 || oc.Confidence > 1 {
		return invalidf("contract: confidence %.3f outside [0,1]", oc.Confidence)
	}
	for field, p := range oc.Proposals {
		if p.Confidence < 0 || p.Confidence > 1 {
			return invalidf("contract: proposal %s confidence %.3f outside [0,1]", field, p.Confidence)
		}
	}
	return nil
}

// IsValidation reports whether err is a boundary validation error.
func IsValidation(err error) bool {
	return eris.Is(err, ErrValidation)
}
