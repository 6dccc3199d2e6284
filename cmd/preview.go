package cmd

import (
	"fmt"
	"os"

	"github.com/KaramelBytes/datachat-cli/internal/flow"
	"github.com/KaramelBytes/datachat-cli/internal/parser"
	"github.com/KaramelBytes/datachat-cli/internal/viz"
	"github.com/spf13/cobra"
)

var (
	previewRows  int
	previewSheet string
)

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show the first rows of a local spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if _, err := flow.Accept(path, ""); err != nil {
			return err
		}
		tbl, err := parser.ParseFile(path, parser.Options{MaxRows: previewRows, Sheet: previewSheet})
		if err != nil {
			return err
		}
		title := tbl.Name
		if tbl.Sheet != "" {
			title = fmt.Sprintf("%s (sheet: %s)", tbl.Name, tbl.Sheet)
		}
		spec := viz.Build(tbl.Records(), viz.Hint{Title: title})
		if err := viz.Dispatch(spec, viz.NewTerminalRenderer(os.Stdout)); err != nil {
			return err
		}
		if tbl.Truncated {
			fmt.Printf("(showing first %d rows)\n", previewRows)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().IntVar(&previewRows, "rows", 10, "number of data rows to show (0 for all)")
	previewCmd.Flags().StringVar(&previewSheet, "sheet", "", "sheet name for Excel workbooks (default first sheet)")
}
