package main

import (
	"github.com/spf13/cobra"

	"github.com/mfittko/devicectl/internal/device"
)

var deployVerbose bool

var deployCmd = &cobra.Command{
	Use:   "deploy <entry-point>",
	Short: "Bundle a script, push it to the device and run it",
	Long: `Deploy packages the project containing the entry point (the nearest
directory with a package.json), streams it to /tmp/remote-script on the
device and runs the entry point there, relaying its output.

Any output on the script's stderr stops the run. Patterns listed in a
.deployignore file at the project root are left out of the bundle.

Examples:
  devicectl deploy index.js
  devicectl --host 192.168.1.101 deploy src/app.js -v
  devicectl --timeout 2m deploy index.js`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := newDevice()
		if err != nil {
			return err
		}
		if deployVerbose {
			logger.SetVerbose(true)
		}

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		return pipelineError(dev.Deploy(ctx, device.DeployRequest{
			EntryPoint: args[0],
			Verbose:    deployVerbose,
		}))
	},
}

func init() {
	deployCmd.Flags().BoolVarP(&deployVerbose, "verbose", "v", false, "Show bundle details and step transitions")
}
