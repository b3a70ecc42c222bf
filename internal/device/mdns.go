package device

import (
	"context"

	"github.com/mfittko/devicectl/internal/remote"
)

// ResetMDNS restarts the device's mDNS daemon and then its advertising
// agent, relaying both commands' stderr. callback, if non-nil, runs once
// the agent restart has completed.
func (d *Device) ResetMDNS(ctx context.Context, callback func()) error {
	sess, err := d.open(ctx, "mdns-reset")
	if err != nil {
		return err
	}

	if err := sess.run(ctx, "restart-daemon", remote.MDNSDaemonCommand("restart"), d.stderr); err != nil {
		return err
	}
	if err := sess.run(ctx, "restart-agent", remote.MDNSAgentCommand("restart"), d.stderr); err != nil {
		return err
	}

	if callback != nil {
		callback()
	}
	return sess.close()
}
