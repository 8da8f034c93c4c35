//go:build unix

package cli

import "syscall"

// daemonSysProcAttr starts the daemon in a new session, detached from the
// terminal.
func daemonSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
