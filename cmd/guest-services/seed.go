package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/guest-services/internal/store"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo records for the viewer into the local database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		if e.sqlite == nil {
			return errors.New("seed needs the sqlite backend")
		}

		rows, err := e.sqlite.Seed(cmd.Context(), store.SeedOwner{
			GuestID:    cfg.Viewer.GuestID,
			RoomNumber: cfg.Viewer.RoomNumber,
		}, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d records\n", len(rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
