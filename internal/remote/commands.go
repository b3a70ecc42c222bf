package remote

import (
	"fmt"
	"regexp"
	"strings"
)

// RemoteScriptDir is where deployed code is extracted on the device.
const RemoteScriptDir = "/tmp/remote-script"

// wifiIface is the uci section holding the station configuration.
const wifiIface = "wireless.@wifi-iface[0]"

// The remote command surface. These strings are what the device firmware
// expects and must not drift.

// PrepareExtractCommand clears the staging directory and extracts a tar
// stream read from stdin into it.
func PrepareExtractCommand() string {
	return fmt.Sprintf("rm -rf %s/*; tar -x -C %s", RemoteScriptDir, RemoteScriptDir)
}

// RunScriptCommand runs an extracted entry point under node.
func RunScriptCommand(entryPoint string) string {
	return "node " + quoteIfNeeded(RemoteScriptDir+"/"+strings.TrimPrefix(entryPoint, "/"))
}

// ScanWiFiCommand lists visible networks as JSON on stdout.
func ScanWiFiCommand() string {
	return `ubus call iwinfo scan '{"device":"wlan0"}'`
}

// SetNetworkSSIDCommand stages the station SSID.
func SetNetworkSSIDCommand(ssid string) string {
	return fmt.Sprintf("uci set %s.ssid=%s", wifiIface, quoteIfNeeded(ssid))
}

// SetNetworkPasswordCommand stages the station key.
func SetNetworkPasswordCommand(password string) string {
	return fmt.Sprintf("uci set %s.key=%s", wifiIface, quoteIfNeeded(password))
}

// TurnOnWiFiCommand stages the radio as enabled or disabled.
func TurnOnWiFiCommand(enable bool) string {
	disabled := 1
	if enable {
		disabled = 0
	}
	return fmt.Sprintf("uci set %s.disabled=%d", wifiIface, disabled)
}

// CommitWirelessCredentialsCommand persists staged wireless settings.
func CommitWirelessCredentialsCommand() string {
	return "uci commit wireless"
}

// ReconnectWiFiCommand reloads the wireless stack with committed settings.
func ReconnectWiFiCommand() string {
	return "wifi"
}

// MDNSDaemonCommand drives the mDNS responder init script.
func MDNSDaemonCommand(action string) string {
	return "/etc/init.d/mdnsd " + action
}

// MDNSAgentCommand drives the device's mDNS advertising agent init script.
func MDNSAgentCommand(action string) string {
	return "/etc/init.d/tessel-mdns " + action
}

// safeWord matches strings the shell passes through unchanged.
var safeWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// quoteIfNeeded leaves shell-safe words untouched so the common command
// strings stay byte-for-byte stable, and escapes everything else.
func quoteIfNeeded(s string) string {
	if safeWord.MatchString(s) {
		return s
	}
	return ShellEscape(s)
}

// ShellEscape escapes a string for safe use in a shell command
func ShellEscape(s string) string {
	// Use single quotes for simplicity and safety
	// Replace any single quotes in the string with '\''
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return fmt.Sprintf("'%s'", escaped)
}
