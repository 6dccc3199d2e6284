package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datachat-cli/internal/session"
	"github.com/KaramelBytes/datachat-cli/internal/tui"
	"github.com/KaramelBytes/datachat-cli/internal/utils"
)

var chatCmd = &cobra.Command{
	Use:     "chat [file]",
	Short:   "Start the interactive chat (upload, then ask questions)",
	Args:    cobra.MaximumNArgs(1),
	PreRunE: requireBackend,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		store := session.NewStore()
		ctrl := rt.controller(store)
		defer ctrl.Close()

		chartDir := ""
		if cfg.ChartDir != "" {
			dir, err := utils.ExpandHome(cfg.ChartDir)
			if err != nil {
				return err
			}
			chartDir = dir
		}
		opts := tui.Options{BackendURL: rt.client.BaseURL(), ChartDir: chartDir}
		if len(args) == 1 {
			opts.InitialFile = args[0]
		}

		p := tea.NewProgram(tui.NewModel(ctx, ctrl, opts), tea.WithAltScreen(), tea.WithContext(ctx))
		tui.Subscribe(store, p)
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
