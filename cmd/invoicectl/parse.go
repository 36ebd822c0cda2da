package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straye-as/invoice-api/internal/domain"
	"github.com/straye-as/invoice-api/internal/invoice"
	"github.com/straye-as/invoice-api/internal/snapshot"
)

// parsedOutput is the JSON written by the parse command.
type parsedOutput struct {
	Header      invoice.Header    `json:"header"`
	Subtotal    string            `json:"subtotal"`
	TaxRate     string            `json:"taxRate"`
	Tax         string            `json:"tax"`
	Deposit     string            `json:"deposit"`
	TotalDue    string            `json:"totalDue"`
	GroupLabels []string          `json:"groupLabels"`
	GroupField  domain.GroupField `json:"groupField,omitempty"`
	PageCount   int               `json:"pageCount"`
}

func newParseCmd() *cobra.Command {
	var input, items string
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Read a snapshot HTML document back into its editable fields",
		Long: `Parse a saved invoice snapshot and print the recovered header, totals and
group labels as JSON. When an items file is given, the grouping field whose
values cover every group label is inferred as well.`,
		Example: `  invoicectl parse --input snapshot.html --items items.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(input, items, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Snapshot HTML file")
	cmd.Flags().StringVar(&items, "items", "", "Budget items JSON array used for group field inference")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runParse(input, itemsPath string, out io.Writer) error {
	var items []domain.BudgetItem
	if itemsPath != "" {
		raw, err := os.ReadFile(itemsPath)
		if err != nil {
			return fmt.Errorf("failed to read items: %w", err)
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("failed to decode items: %w", err)
		}
	}

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	parsed, err := snapshot.Parse(f, items, domain.GroupFields)
	if err != nil {
		return err
	}

	log.Debug("Snapshot parsed",
		zap.String("input", input),
		zap.Int("items", len(items)),
		zap.String("group_field", string(parsed.GroupField)),
	)

	labels := parsed.GroupLabels
	if labels == nil {
		labels = []string{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(parsedOutput{
		Header:      parsed.Header,
		Subtotal:    parsed.Subtotal.StringFixed(2),
		TaxRate:     parsed.TaxRate.String(),
		Tax:         parsed.Tax.StringFixed(2),
		Deposit:     parsed.Deposit.StringFixed(2),
		TotalDue:    parsed.TotalDue.StringFixed(2),
		GroupLabels: labels,
		GroupField:  parsed.GroupField,
		PageCount:   parsed.PageCount,
	})
}
