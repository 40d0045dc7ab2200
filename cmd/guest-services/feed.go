package main

import (
	"github.com/spf13/cobra"
)

var (
	feedJSON    bool
	feedRefresh bool
)

// feedCmd represents the feed command
var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print the viewer's merged notification feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		get := e.session.GetFeed
		if feedRefresh {
			get = e.session.Refresh
		}
		f, err := get(cmd.Context())
		if err != nil {
			return err
		}

		if feedJSON {
			return writeJSON(cmd.OutOrStdout(), toFeedOutput(f))
		}
		return printFeed(cmd.OutOrStdout(), f)
	},
}

func init() {
	feedCmd.Flags().BoolVar(&feedJSON, "json", false, "print the feed as JSON")
	feedCmd.Flags().BoolVar(&feedRefresh, "refresh", false, "refetch every source")
	rootCmd.AddCommand(feedCmd)
}
