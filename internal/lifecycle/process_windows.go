//go:build windows

package lifecycle

import (
	"fmt"
	"os/exec"
	"strings"
)

// isProcessRunning shells out to tasklist, since os.FindProcess always
// succeeds on Windows regardless of whether pid actually exists.
func isProcessRunning(pid int) bool {
	cmd := exec.Command("tasklist", "/FI", fmt.Sprintf("PID eq %d", pid), "/NH")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(output), fmt.Sprintf("%d", pid))
}
