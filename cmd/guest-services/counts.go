package main

import (
	"github.com/spf13/cobra"
)

var countsJSON bool

// countsCmd represents the counts command
var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Print unread counts per section",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		c, err := e.session.GetUnreadCounts(cmd.Context())
		if err != nil {
			return err
		}

		if countsJSON {
			return writeJSON(cmd.OutOrStdout(), c)
		}
		return printCounts(cmd.OutOrStdout(), c, e.session.Badge)
	},
}

func init() {
	countsCmd.Flags().BoolVar(&countsJSON, "json", false, "print counts as JSON")
	rootCmd.AddCommand(countsCmd)
}
