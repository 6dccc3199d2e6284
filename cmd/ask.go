package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/api"
	"github.com/KaramelBytes/datachat-cli/internal/flow"
	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	askUploadID string
	askPNGDir   string
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:     "ask --upload-id <id> <question>",
	Short:   "Ask a question about an uploaded file",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: requireBackend,
	RunE: func(cmd *cobra.Command, args []string) error {
		uploadID := strings.TrimSpace(askUploadID)
		if uploadID == "" {
			return fmt.Errorf("--upload-id is required (run 'datachat upload <file>' first)")
		}
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("question cannot be empty")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		if askJSON {
			resp, err := rt.client.Query(ctx, api.QueryRequest{Question: question, UploadID: uploadID})
			if err != nil {
				return explainError("query", err)
			}
			b, err := utils.PrettyJSON(resp)
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}

		store := session.NewStore()
		store.SetSessionID(uploadID)
		ctrl := rt.controller(store)
		defer ctrl.Close()

		reply, err := ctrl.Ask(ctx, question)
		if err != nil {
			if errors.Is(err, flow.ErrIgnored) {
				return err
			}
			// The apology is what the conversation shows; the cause goes to stderr.
			fmt.Println(reply.Text)
			return explainError("query", err)
		}
		written, err := renderAnswer(reply, renderOptions{
			Writer: os.Stdout,
			PNGDir: askPNGDir,
			Base:   uploadID,
		})
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Printf("✓ Wrote chart to %s\n", p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askUploadID, "upload-id", "", "upload id returned by 'datachat upload'")
	askCmd.Flags().StringVar(&askPNGDir, "png-dir", "", "also write the chart as PNG into this directory")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw query response as JSON")
}
