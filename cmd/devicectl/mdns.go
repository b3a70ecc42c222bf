package main

import (
	"github.com/spf13/cobra"
)

var mdnsCmd = &cobra.Command{
	Use:   "mdns",
	Short: "Manage the device's mDNS services",
}

var mdnsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restart the mDNS daemon and the advertising agent",
	Long: `Reset restarts mdnsd and then the device's mDNS advertising agent, so
the device is discoverable again under its current name and address.

Examples:
  devicectl mdns reset`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := newDevice()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		return pipelineError(dev.ResetMDNS(ctx, func() {
			logger.Info("mDNS services restarted.")
		}))
	},
}

func init() {
	mdnsCmd.AddCommand(mdnsResetCmd)
}
