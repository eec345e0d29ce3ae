//go:build windows

package cmd

import "os"

// gracefulSignals returns the OS signals to capture for graceful shutdown.
// On Windows, only os.Interrupt (Ctrl+C / CTRL_C_EVENT) is reliably
// delivered; SIGTERM does not exist there.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
