package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/guest-services/internal/model"
)

var cancelYes bool

// confirmCancel asks before cancelling. Replaced in tests.
var confirmCancel = func(it model.NotificationItem) (bool, error) {
	ok := false
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Cancel %s?", it.Title)).
		Description(it.Description).
		Affirmative("Cancel it").
		Negative("Keep").
		Value(&ok).
		Run()
	return ok, err
}

// cancelCmd represents the cancel command
var cancelCmd = &cobra.Command{
	Use:   "cancel <type> <id>",
	Short: "Cancel a request or booking",
	Long: `Cancel a request or booking from the feed.

Types: request, reservation, spa_booking, event_reservation.

EXAMPLES:
    guest-services cancel spa_booking 42
    guest-services cancel request 7 --yes`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := model.ItemType(args[0])
		id := args[1]

		e, err := openEngine(cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		if !cancelYes {
			f, err := e.session.GetFeed(cmd.Context())
			if err != nil {
				return err
			}
			// Unknown items go straight to Cancel, which rejects them.
			if it, found := f.Find(model.ItemKey{Type: typ, ID: id}); found {
				ok, err := confirmCancel(it)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Kept.")
					return nil
				}
			}
		}

		it, err := e.session.Cancel(cmd.Context(), typ, id)
		if err != nil {
			if it.Status != "" {
				return fmt.Errorf("%w (status: %s)", err, it.Status)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s cancelled\n", it.Key())
		return nil
	},
}

func init() {
	cancelCmd.Flags().BoolVarP(&cancelYes, "yes", "y", false, "do not ask for confirmation")
	rootCmd.AddCommand(cancelCmd)
}
