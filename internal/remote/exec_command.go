package remote

import (
	"context"
	"net"
	"os"
)

// Injection points for unit tests. Centralized here so the host
// dependencies used by ssh.go and remote.go are explicit.
var (
	netDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, addr)
	}
	readFile    = os.ReadFile
	userHomeDir = os.UserHomeDir
)
