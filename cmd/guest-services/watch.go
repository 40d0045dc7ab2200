package main

import (
	"context"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/nhle/guest-services/internal/app"
	"github.com/nhle/guest-services/internal/model"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the live notification feed in the terminal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// The TUI owns the terminal; logs go to a file.
		if cfg.Log.File == "" {
			cfg.Log.File = filepath.Join(model.ConfigDir(), "watch.log")
		}

		e, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		p := tea.NewProgram(app.New(e.session), tea.WithAltScreen())

		var g run.Group
		{
			ctx, cancel := context.WithCancel(cmd.Context())
			g.Add(func() error {
				if err := e.session.Start(ctx); err != nil {
					return err
				}
				<-ctx.Done()
				return nil
			}, func(error) {
				cancel()
			})
		}
		{
			g.Add(func() error {
				_, err := p.Run()
				return err
			}, func(error) {
				p.Quit()
			})
		}
		return g.Run()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
