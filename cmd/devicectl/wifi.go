package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mfittko/devicectl/internal/device"
	"github.com/mfittko/devicectl/internal/output"
)

var (
	wifiSSID     string
	wifiPassword string
)

var wifiCmd = &cobra.Command{
	Use:   "wifi",
	Short: "Scan for and join wireless networks",
}

var wifiScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List networks visible to the device, strongest first",
	Long: `Scan asks the device's wlan0 interface for visible networks. Networks
without an SSID are hidden; the rest are ordered by signal quality.

Examples:
  devicectl wifi scan
  devicectl wifi scan -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := newDevice()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		networks, err := dev.ScanNetworks(ctx)
		if err != nil {
			return pipelineError(err)
		}
		return formatter.PrintTable(networkTable(networks))
	},
}

var wifiConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Configure the device to join a wireless network",
	Long: `Connect stores the SSID and password in the device's wireless
configuration, enables the radio, commits and reconnects.

Examples:
  devicectl wifi connect --ssid home --password 's3cret'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := device.WifiCredentials{SSID: wifiSSID, Password: wifiPassword}
		if err := creds.Validate(); err != nil {
			return err
		}

		dev, err := newDevice()
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd.Context())
		defer cancel()

		if err := dev.ConnectToNetwork(ctx, creds); err != nil {
			return pipelineError(err)
		}
		if formatter.Format() == output.FormatJSON {
			return formatter.Print(&output.Result{
				Success: true,
				Message: "credentials set",
				Data:    map[string]interface{}{"ssid": creds.SSID},
			})
		}
		return nil
	},
}

func init() {
	wifiConnectCmd.Flags().StringVar(&wifiSSID, "ssid", "", "Network name")
	wifiConnectCmd.Flags().StringVar(&wifiPassword, "password", "", "Network password")

	wifiCmd.AddCommand(wifiScanCmd)
	wifiCmd.AddCommand(wifiConnectCmd)
}

// networkTable renders scan results. JSON output keeps the scan's field names.
func networkTable(networks []device.Network) *output.Table {
	t := &output.Table{
		Headers: []string{"SSID", "SIGNAL", "QUALITY", "CHANNEL", "SECURITY"},
		Records: networks,
	}
	if networks == nil {
		t.Records = []device.Network{}
	}

	for _, n := range networks {
		channel := "-"
		if n.Channel > 0 {
			channel = strconv.Itoa(n.Channel)
		}
		security := "-"
		if n.Encryption != nil {
			security = "open"
			if n.Encryption.Enabled {
				security = "encrypted"
			}
		}
		t.Rows = append(t.Rows, []string{
			n.SSID,
			fmt.Sprintf("%.0f%%", n.SignalRatio()*100),
			strconv.Itoa(n.Quality) + "/" + strconv.Itoa(n.QualityMax),
			channel,
			security,
		})
	}
	return t
}
