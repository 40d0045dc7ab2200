package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var seenAll bool

// seenCmd represents the seen command
var seenCmd = &cobra.Command{
	Use:   "seen [section]",
	Short: "Mark a section, or every section, as seen",
	Long: `Mark a section as seen, clearing its unread badge.

EXAMPLES:
    guest-services seen spa
    guest-services seen --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if seenAll == (len(args) == 1) {
			return errors.New("give either a section or --all")
		}

		e, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		if seenAll {
			if err := e.session.MarkAllSeen(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All sections marked as seen")
			return nil
		}

		if err := e.session.MarkSectionSeen(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s marked as seen\n", args[0])
		return nil
	},
}

func init() {
	seenCmd.Flags().BoolVar(&seenAll, "all", false, "mark every section as seen")
	rootCmd.AddCommand(seenCmd)
}
