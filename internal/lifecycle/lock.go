// Package lifecycle owns the daemon's single-instance lock file, process
// liveness checks, and startup/shutdown sequencing.
package lifecycle

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/consultd/consultd/internal/model"
)

// ErrLocked is returned when the lock file is already held by a live,
// known daemon process.
var ErrLocked = errors.New("daemon lock already held by another process")

const lockFileName = "daemon.lock"

// Lock represents a held daemon lock. Close releases the OS-level flock
// and removes the lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire attempts to take the daemon lock under dir (the
// ~/.ai-consultation-mcp directory). It first inspects any existing lock
// file: if it names a live process whose executable matches binaryName
// (the "known daemon marker" check), acquisition fails with ErrLocked.
// Otherwise the stale lock is reclaimed. The OS-level flock is the final
// arbiter for a startup race between two processes that both believe the
// existing lock is stale.
func Acquire(dir, binaryName string, port int) (*Lock, model.DaemonLock, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, model.DaemonLock{}, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(dir, lockFileName)

	if existing, err := readLock(path); err == nil {
		if isProcessRunning(existing.PID) && isKnownDaemon(existing.PID, binaryName) {
			return nil, model.DaemonLock{}, ErrLocked
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, model.DaemonLock{}, fmt.Errorf("open lock file: %w", err)
	}

	if err := flockExclusive(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, model.DaemonLock{}, ErrLocked
		}
		return nil, model.DaemonLock{}, fmt.Errorf("flock: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		f.Close()
		return nil, model.DaemonLock{}, fmt.Errorf("generate token: %w", err)
	}

	info := model.DaemonLock{
		PID:       os.Getpid(),
		Port:      port,
		StartedAt: time.Now().UTC(),
		Token:     token,
	}

	if err := writeLockAtomic(dir, path, info); err != nil {
		f.Close()
		return nil, model.DaemonLock{}, fmt.Errorf("write lock: %w", err)
	}

	// The rename put a new file at path; move the flock onto it so a later
	// Acquire's flock on path finds it held.
	held, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		f.Close()
		return nil, model.DaemonLock{}, fmt.Errorf("reopen lock file: %w", err)
	}
	if err := flockExclusive(held); err != nil {
		held.Close()
		f.Close()
		return nil, model.DaemonLock{}, fmt.Errorf("flock: %w", err)
	}
	f.Close()

	return &Lock{file: held, path: path}, info, nil
}

// Close releases the flock and removes the lock file. Call only on a
// clean shutdown; a crash leaves the file in place for the next start's
// liveness check to reclaim.
func (l *Lock) Close() error {
	if l.file == nil {
		return nil
	}
	_ = flockUnlock(l.file)
	err := l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	return err
}

func readLock(path string) (model.DaemonLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.DaemonLock{}, err
	}
	var info model.DaemonLock
	if err := json.Unmarshal(data, &info); err != nil {
		return model.DaemonLock{}, err
	}
	return info, nil
}

// writeLockAtomic writes the lock JSON to a temp file in the same
// directory, then renames it over path, so a reader never observes a
// partially-written lock file.
func writeLockAtomic(dir, path string, info model.DaemonLock) error {
	tmp, err := os.CreateTemp(dir, "daemon.lock.tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// isKnownDaemon reports whether pid's executable name contains
// binaryName, guarding against a PID that has been recycled by an
// unrelated process since the lock file was written.
func isKnownDaemon(pid int, binaryName string) bool {
	proc, err := ps.FindProcess(pid)
	if err != nil || proc == nil {
		return false
	}
	return containsSubstring(proc.Executable(), binaryName)
}

func containsSubstring(s, substr string) bool {
	if substr == "" {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
