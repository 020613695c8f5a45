package commands

import (
	"github.com/spf13/cobra"
)

var version string

// SetVersion sets the version string reported by the version flag.
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "kp-sync",
	Short: "Knowledge platform sync server",
	Long: `kp-sync runs the multi-device synchronization server for the knowledge
platform: device registration, change journal pull/push, and conflict
resolution over HTTP.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(keyCmd)
}
