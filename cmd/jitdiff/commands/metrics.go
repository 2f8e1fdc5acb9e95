package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dasmtools/jitdiff/pkg/metric"
)

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List the metrics available for comparison",
		Run: func(cmd *cobra.Command, _ []string) {
			catalog := metric.NewCatalog()

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Description", "Unit"})

			for _, d := range catalog.Descriptors() {
				t.AppendRow(table.Row{d.Name, d.DisplayName, d.Unit})
			}

			t.Render()
		},
	}
}
