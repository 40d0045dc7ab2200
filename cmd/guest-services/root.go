package main

import (
	"github.com/spf13/cobra"

	"github.com/nhle/guest-services/internal/model"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile      string
	flagGuest    string
	flagRoom     string
	flagRole     string
	flagLogLevel string

	// cfg is loaded before every command runs.
	cfg *model.AppConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "guest-services",
	Short: "One live notification feed across every guest service.",
	Long: `One live notification feed across every guest service.

Service requests, dining and event reservations, spa bookings and staff
chat are merged into a single feed per viewer, kept current by push
subscriptions with polling as a backstop.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.Version = Version

	// Hide the completion command
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", model.DefaultConfigPath(), "config file")
	pf.StringVar(&flagGuest, "guest", "", "guest id of the viewer (overrides config)")
	pf.StringVar(&flagRoom, "room", "", "room number of the viewer (overrides config)")
	pf.StringVar(&flagRole, "role", "", "viewer role: guest or staff (overrides config)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(_ *cobra.Command, _ []string) error {
	c, err := model.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	applyFlags(c)
	cfg = c
	return nil
}

func applyFlags(c *model.AppConfig) {
	if flagGuest != "" {
		c.Viewer.GuestID = flagGuest
	}
	if flagRoom != "" {
		c.Viewer.RoomNumber = flagRoom
	}
	if flagRole != "" {
		c.Viewer.Role = model.Role(flagRole)
	}
	if flagLogLevel != "" {
		c.Log.Level = flagLogLevel
	}
}
