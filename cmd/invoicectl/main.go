// Command invoicectl renders invoice documents and inspects saved snapshots
// without running the API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/straye-as/invoice-api/internal/config"
	"github.com/straye-as/invoice-api/internal/logger"
)

var version = "1.0.0"

var (
	logLevel string
	log      = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "invoicectl",
	Short: "Render invoice documents and parse saved invoice snapshots",
	Long: `invoicectl drives the invoice document engine from the command line.

It groups and paginates a set of budget items the same way the API does,
writes the result as a snapshot HTML document or a vector PDF, and reads
snapshot documents back into their editable fields.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.NewLogger(
			&config.LoggingConfig{Level: logLevel, Format: "console"},
			&config.AppConfig{Name: "invoicectl", Environment: "development"},
		)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(newRenderCmd(), newParseCmd())
}

func main() {
	err := rootCmd.Execute()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
