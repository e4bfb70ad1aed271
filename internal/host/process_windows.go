//go:build windows

package host

import (
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// configurePlatformProcess detaches the server from the console's Ctrl-C.
func configurePlatformProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}
