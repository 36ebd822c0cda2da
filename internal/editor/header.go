package editor

import (
	"strings"
	"time"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/format"
	"github.com/straye-as/invoice-api/internal/invoice"
)

// Header defaults applied when a session opens.
const (
	DefaultInvoiceNumber   = "0000"
	DefaultProjectTitle    = "Project Title"
	DefaultCustomerSummary = "Customer"
	DefaultInvoiceSummary  = "Invoice Details"
	DefaultPaymentSummary  = "Payment"
	DefaultNotes           = "<p>Notes...</p>"
)

// DateLayout is the format of seeded dates.
const DateLayout = "2006-01-02"

// DefaultBranding derives the issuer identity from the project's invoice
// brand, falling back to the company and its address.
func DefaultBranding(p *domain.Project) invoice.Branding {
	name := strings.TrimSpace(p.InvoiceBrandName)
	if name == "" {
		name = strings.TrimSpace(p.Company)
	}
	address := strings.TrimSpace(p.InvoiceBrandAddress)
	if address == "" {
		address = strings.TrimSpace(p.Address)
	}
	return invoice.Branding{
		LogoURL: strings.TrimSpace(p.InvoiceBrandLogoKey),
		Name:    name,
		Tagline: strings.TrimSpace(p.InvoiceBrandTagline),
		Address: invoice.NormalizeSummary(address, ""),
		Phone:   strings.TrimSpace(p.InvoiceBrandPhone),
	}
}

// DefaultHeader seeds every header field from project context.
func DefaultHeader(p *domain.Project, today time.Time) invoice.Header {
	brand := DefaultBranding(p)
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = DefaultProjectTitle
	}
	return invoice.Header{
		Brand:           brand,
		InvoiceNumber:   DefaultInvoiceNumber,
		IssueDate:       today.Format(DateLayout),
		ProjectTitle:    title,
		BilledTo:        joinSummary("", p.ClientName, p.ClientAddress),
		CustomerSummary: joinSummary(DefaultCustomerSummary, p.ClientName, p.ClientAddress, p.ClientEmail),
		InvoiceSummary:  joinSummary(DefaultInvoiceSummary, brand.Name, brand.Address, brand.Phone),
		PaymentSummary:  DefaultPaymentSummary,
		Notes:           DefaultNotes,
		Footer:          brand.Name,
	}
}

func joinSummary(fallback string, values ...string) string {
	return invoice.NormalizeSummary(strings.Join(values, "\n"), fallback)
}

// applyHeader copies the non-nil request fields onto h and reports whether
// any value changed.
func applyHeader(h *invoice.Header, req domain.UpdateInvoiceHeaderRequest) bool {
	changed := false
	set := func(dst *string, src *string, normalize func(string) string) {
		if src == nil {
			return
		}
		v := normalize(*src)
		if *dst != v {
			*dst = v
			changed = true
		}
	}
	trim := strings.TrimSpace
	lines := func(fallback string) func(string) string {
		return func(s string) string { return invoice.NormalizeSummary(s, fallback) }
	}

	set(&h.Brand.LogoURL, req.BrandLogoURL, trim)
	set(&h.Brand.Name, req.BrandName, trim)
	set(&h.Brand.Tagline, req.BrandTagline, trim)
	set(&h.Brand.Address, req.BrandAddress, lines(""))
	set(&h.Brand.Phone, req.BrandPhone, trim)
	set(&h.InvoiceNumber, req.InvoiceNumber, trim)
	set(&h.IssueDate, req.IssueDate, trim)
	set(&h.DueDate, req.DueDate, trim)
	set(&h.ServiceDate, req.ServiceDate, trim)
	set(&h.ProjectTitle, req.ProjectTitle, trim)
	set(&h.BilledTo, req.BilledTo, lines(""))
	set(&h.CustomerSummary, req.CustomerSummary, lines(DefaultCustomerSummary))
	set(&h.InvoiceSummary, req.InvoiceSummary, lines(DefaultInvoiceSummary))
	set(&h.PaymentSummary, req.PaymentSummary, lines(DefaultPaymentSummary))
	set(&h.Notes, req.Notes, format.SanitizeNotes)
	set(&h.Footer, req.Footer, lines(""))
	return changed
}
