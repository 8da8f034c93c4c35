//go:build windows

package cli

import "syscall"

// daemonSysProcAttr starts the daemon in its own process group, detached
// from the console.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
