//go:build !windows

package host

import (
	"os/exec"
	"syscall"
)

// configurePlatformProcess puts the server in its own process group so a
// terminal Ctrl-C reaches the router first and the router stops the server.
func configurePlatformProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
