package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/utils"
	"github.com/spf13/cobra"
)

var uploadJSON bool

var uploadCmd = &cobra.Command{
	Use:     "upload <file>",
	Short:   "Upload a CSV or Excel file and print its upload id",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: requireBackend,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		ctrl := rt.controller(session.NewStore())
		defer ctrl.Close()
		if len(args) > 1 {
			fmt.Fprintf(os.Stderr, "⚠ Only the first file is uploaded; ignoring %d more.\n", len(args)-1)
		}
		resp, err := ctrl.Upload(ctx, args...)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("upload cancelled")
			}
			return explainError("upload", err)
		}
		if uploadJSON {
			b, err := utils.PrettyJSON(resp)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}
		fmt.Printf("✓ Uploaded %s\n", resp.FileName)
		fmt.Printf("Upload ID: %s\n", resp.UploadID)
		printSchema(os.Stdout, resp.Schema)
		fmt.Printf("\nAsk away: datachat ask --upload-id %s \"your question\"\n", resp.UploadID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolVar(&uploadJSON, "json", false, "print the raw upload response as JSON")
}
