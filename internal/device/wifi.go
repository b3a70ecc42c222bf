package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/mfittko/devicectl/internal/remote"
	"github.com/mfittko/devicectl/internal/validation"
)

// Network is one access point reported by a scan.
type Network struct {
	SSID       string      `json:"ssid"`
	Quality    int         `json:"quality"`
	QualityMax int         `json:"quality_max"`
	BSSID      string      `json:"bssid,omitempty"`
	Channel    int         `json:"channel,omitempty"`
	Encryption *Encryption `json:"encryption,omitempty"`
}

// Encryption is the subset of the scan's encryption block worth showing.
type Encryption struct {
	Enabled bool `json:"enabled"`
}

// SignalRatio is Quality normalized by QualityMax. A missing maximum
// yields 0 so such records sort last.
func (n Network) SignalRatio() float64 {
	if n.QualityMax <= 0 {
		return 0
	}
	return float64(n.Quality) / float64(n.QualityMax)
}

type scanResponse struct {
	Results []Network `json:"results"`
}

// WifiCredentials are the settings applied by ConnectToNetwork.
type WifiCredentials struct {
	SSID     string
	Password string
}

// Validate reports every missing field.
func (c WifiCredentials) Validate() error {
	return validation.Collect(
		validation.Required("ssid", c.SSID),
		validation.Required("password", c.Password),
	)
}

// FilterNetworks returns the networks that advertise an SSID, in order.
// The input is not modified.
func FilterNetworks(networks []Network) []Network {
	out := make([]Network, 0, len(networks))
	for _, n := range networks {
		if n.SSID != "" {
			out = append(out, n)
		}
	}
	return out
}

// SortBySignal returns a copy of networks ordered strongest first by
// SignalRatio. Equal ratios put the higher raw Quality first; records equal
// on both keep their scan order.
func SortBySignal(networks []Network) []Network {
	out := append([]Network(nil), networks...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].SignalRatio(), out[j].SignalRatio()
		if ri != rj {
			return ri > rj
		}
		return out[i].Quality > out[j].Quality
	})
	return out
}

// ScanNetworks asks the device for visible networks and returns those with
// an SSID, strongest first. Unparsable scan output yields a ProtocolError
// and no networks.
func (d *Device) ScanNetworks(ctx context.Context) ([]Network, error) {
	sess, err := d.open(ctx, "wifi-scan")
	if err != nil {
		return nil, err
	}

	const step = "scan"
	d.log.Info("Scanning for available networks...")
	cmd := remote.ScanWiFiCommand()
	proc, err := sess.exec(step, cmd)
	if err != nil {
		return nil, err
	}

	var stdout bytes.Buffer
	drained := drain(proc, &stdout, logWriter{log: d.log})

	status, err := sess.await(ctx, step, proc)
	if err != nil {
		return nil, err
	}
	drained()

	if !status.Success() {
		return nil, sess.fail(step, &RemoteFailure{Step: step, Command: cmd, Status: status})
	}

	var resp scanResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, sess.fail(step, &ProtocolError{Step: step, Err: err})
	}
	if resp.Results == nil {
		return nil, sess.fail(step, &ProtocolError{Step: step, Err: errors.New(`missing "results"`)})
	}

	networks := SortBySignal(FilterNetworks(resp.Results))
	sess.debug(len(resp.Results), "results,", len(networks), "with ssid")
	if err := sess.close(); err != nil {
		return nil, err
	}
	return networks, nil
}

// ConnectToNetwork points the device's wireless interface at creds and
// reconnects. Steps run strictly in order; the first failure stops the
// chain and is returned.
func (d *Device) ConnectToNetwork(ctx context.Context, creds WifiCredentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	sess, err := d.open(ctx, "wifi-connect")
	if err != nil {
		return err
	}

	d.log.Info("Setting SSID:", creds.SSID, "and password")
	steps := []struct {
		name string
		cmd  string
	}{
		{"set-ssid", remote.SetNetworkSSIDCommand(creds.SSID)},
		{"set-password", remote.SetNetworkPasswordCommand(creds.Password)},
		{"enable-radio", remote.TurnOnWiFiCommand(true)},
		{"commit", remote.CommitWirelessCredentialsCommand()},
		{"reconnect", remote.ReconnectWiFiCommand()},
	}
	for _, st := range steps {
		if err := sess.run(ctx, st.name, st.cmd, nil); err != nil {
			return err
		}
	}

	d.log.Info("Credentials set!")
	return sess.close()
}
