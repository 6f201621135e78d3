//go:build unix

package lifecycle

import "syscall"

// isProcessRunning sends signal 0 to pid: a nil error or EPERM both mean
// a live process owns that pid (EPERM happens when it runs as another
// user); ESRCH means it's gone.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
