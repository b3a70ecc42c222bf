package remote

import "testing"

func TestShellEscape(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple string",
			input: "hello",
			want:  "'hello'",
		},
		{
			name:  "string with spaces",
			input: "hello world",
			want:  "'hello world'",
		},
		{
			name:  "string with single quote",
			input: "it's",
			want:  "'it'\\''s'",
		},
		{
			name:  "empty string",
			input: "",
			want:  "''",
		},
		{
			name:  "string with special chars",
			input: "test; rm -rf /",
			want:  "'test; rm -rf /'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShellEscape(tt.input)
			if got != tt.want {
				t.Errorf("ShellEscape(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCommandSurface(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"prepare extract", PrepareExtractCommand(), "rm -rf /tmp/remote-script/*; tar -x -C /tmp/remote-script"},
		{"run script", RunScriptCommand("index.js"), "node /tmp/remote-script/index.js"},
		{"run nested script", RunScriptCommand("src/app.js"), "node /tmp/remote-script/src/app.js"},
		{"run script with space", RunScriptCommand("my app.js"), "node '/tmp/remote-script/my app.js'"},
		{"scan", ScanWiFiCommand(), `ubus call iwinfo scan '{"device":"wlan0"}'`},
		{"set ssid", SetNetworkSSIDCommand("home"), "uci set wireless.@wifi-iface[0].ssid=home"},
		{"set ssid quoted", SetNetworkSSIDCommand("Cafe Wifi"), "uci set wireless.@wifi-iface[0].ssid='Cafe Wifi'"},
		{"set password", SetNetworkPasswordCommand("pa$$'word"), `uci set wireless.@wifi-iface[0].key='pa$$'\''word'`},
		{"enable wifi", TurnOnWiFiCommand(true), "uci set wireless.@wifi-iface[0].disabled=0"},
		{"disable wifi", TurnOnWiFiCommand(false), "uci set wireless.@wifi-iface[0].disabled=1"},
		{"commit", CommitWirelessCredentialsCommand(), "uci commit wireless"},
		{"reconnect", ReconnectWiFiCommand(), "wifi"},
		{"mdns daemon", MDNSDaemonCommand("restart"), "/etc/init.d/mdnsd restart"},
		{"mdns agent", MDNSAgentCommand("restart"), "/etc/init.d/tessel-mdns restart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
