package lifecycle

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/consultd/consultd/internal/model"
)

// StateDirName is the per-user directory holding the database, lock file,
// and any other daemon-owned state.
const StateDirName = ".ai-consultation-mcp"

const (
	firstPort      = 3456
	portScanLimit  = 10
	idleTimeout    = 30 * time.Minute
	idlePollPeriod = 30 * time.Second
)

// StateDir resolves $HOME/.ai-consultation-mcp, using go-homedir so it
// works under unusual HOME setups (sudo, cross-compiled Windows builds).
func StateDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home + string(os.PathSeparator) + StateDirName, nil
}

// PickPort finds the first free TCP port starting at 3456, giving up
// after portScanLimit consecutive attempts.
func PickPort() (int, error) {
	for port := firstPort; port < firstPort+portScanLimit; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port found in range [%d, %d)", firstPort, firstPort+portScanLimit)
}

// Stage is one named, cancelable startup dependency. A Stage's Run blocks
// until ctx is canceled or a fatal error occurs; Stop performs a graceful,
// bounded-time shutdown.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
	Stop func(ctx context.Context) error
}

// IdleChecker reports the number of currently connected event-hub clients,
// so the Manager can arm its idle-shutdown timer only while it is zero.
type IdleChecker func() int

// Manager sequences daemon startup (lock -> stages -> idle timer) and
// shutdown (signal/idle/fatal -> stop stages -> release lock) using an
// errgroup so any stage's failure cancels every other stage.
type Manager struct {
	Log         *logrus.Entry
	Stages      []Stage
	IdleClients IdleChecker
	OnStale     func(ctx context.Context) error

	// OnAcquire, if set, runs synchronously right after the lock is
	// acquired and before any stage starts, so callers can propagate the
	// freshly minted daemon token into stage dependencies constructed
	// lazily inside a Stage.Run closure.
	OnAcquire func(info model.DaemonLock)

	lock *Lock
}

// Run acquires the lock, starts every stage, then blocks until shutdown is
// triggered by SIGINT/SIGTERM, the idle timer, or a stage error. It always
// releases the lock before returning.
func (m *Manager) Run(ctx context.Context, dir, binaryName string, port int) (model.DaemonLock, error) {
	lock, info, err := Acquire(dir, binaryName, port)
	if err != nil {
		return model.DaemonLock{}, err
	}
	m.lock = lock
	defer func() {
		if err := m.lock.Close(); err != nil {
			m.Log.WithError(err).Warn("release daemon lock")
		}
	}()

	if m.OnAcquire != nil {
		m.OnAcquire(info)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	for _, stage := range m.Stages {
		stage := stage
		g.Go(func() error {
			if err := stage.Run(gctx); err != nil {
				m.Log.WithError(err).WithField("stage", stage.Name).Error("stage failed")
				return fmt.Errorf("%s: %w", stage.Name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		err := m.watchShutdown(gctx, sigCh)
		cancel()
		return err
	})

	_ = g.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	for _, stage := range m.Stages {
		if stage.Stop == nil {
			continue
		}
		if err := stage.Stop(stopCtx); err != nil {
			m.Log.WithError(err).WithField("stage", stage.Name).Warn("stage stop error")
		}
	}

	return info, nil
}

// watchShutdown blocks until SIGINT/SIGTERM or the client-count-zero idle
// timer elapses, then cancels ctx to unwind every stage.
func (m *Manager) watchShutdown(ctx context.Context, sigCh <-chan os.Signal) error {
	var idleSince time.Time
	ticker := time.NewTicker(idlePollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			m.Log.WithField("signal", sig).Info("shutdown signal received")
			return nil
		case <-ticker.C:
			if m.IdleClients == nil {
				continue
			}
			if m.IdleClients() > 0 {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
				continue
			}
			if time.Since(idleSince) >= idleTimeout {
				m.Log.WithField("idle_for", humanize.Time(idleSince)).Info("idle timeout reached, shutting down")
				return nil
			}
		}
	}
}
