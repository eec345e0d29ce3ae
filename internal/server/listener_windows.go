//go:build windows

package server

import "syscall"

// reusePortControl is a no-op on Windows, which has no SO_REUSEPORT.
// Multi-worker deployments there need an external load balancer.
func reusePortControl(network, address string, c syscall.RawConn) error {
	return nil
}
