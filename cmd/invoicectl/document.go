package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/format"
	"github.com/straye-as/invoice-api/internal/invoice"
)

// documentInput is the JSON accepted by the render command.
type documentInput struct {
	Header      invoice.Header      `json:"header"`
	GroupField  domain.GroupField   `json:"groupField"`
	GroupValues []string            `json:"groupValues"`
	TaxRate     string              `json:"taxRate"`
	Deposit     string              `json:"deposit"`
	TotalDue    string              `json:"totalDue"`
	Items       []domain.BudgetItem `json:"items"`
}

// laidOut is a document together with its measured page assignment.
type laidOut struct {
	Doc   *invoice.Document
	Pages invoice.PageAssignment
}

func decodeDocumentInput(r io.Reader) (*documentInput, error) {
	var in documentInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &in, nil
}

// build runs grouping, totals and pagination over the input.
func (in *documentInput) build(ctx context.Context, m invoice.Measurer, budget invoice.Budget) (*laidOut, error) {
	grouping := invoice.NewGrouping(in.Items)
	if in.GroupField != "" {
		if !in.GroupField.IsValid() {
			return nil, fmt.Errorf("unknown group field %q", in.GroupField)
		}
		grouping.Field = in.GroupField
	}
	if in.GroupValues != nil {
		grouping.Values = append([]string{}, in.GroupValues...)
	}
	result := grouping.Evaluate(in.Items)

	var override *decimal.Decimal
	if in.TotalDue != "" {
		due := format.ParseMoney(in.TotalDue)
		override = &due
	}
	totals := invoice.ComputeTotals(result.Subtotal, format.ParseMoney(in.TaxRate), format.ParseMoney(in.Deposit), override)

	doc := &invoice.Document{Header: in.Header, Rows: result.Rows, Totals: totals}

	geom, err := m.Measure(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to measure document: %w", err)
	}
	layout, err := invoice.Paginate(doc.Rows, geom, budget)
	if err != nil {
		return nil, fmt.Errorf("failed to paginate document: %w", err)
	}
	return &laidOut{Doc: doc, Pages: layout.Pages}, nil
}

// allPages lists every page index of pages.
func allPages(pages invoice.PageAssignment) []int {
	selected := make([]int, len(pages))
	for i := range pages {
		selected[i] = i
	}
	return selected
}
