// Package controller implements reconciliation-loop controllers for
// self-healing background operations.
//
// Controllers periodically reconcile the desired state of the system
// with its actual state. Each controller runs in its own goroutine and
// handles a specific aspect of the system:
//   - ScheduledScanController: enqueues the weekly full scans
//   - ScanRecoveryController: fails stuck scans so repositories do not
//     stay locked behind a dead worker
//   - FilterLogRetentionController: prunes old filter log rows
//
// Controllers are idempotent: running one twice has the same effect as
// running it once, and any of them can fail without affecting the rest.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vexguard/api/pkg/logger"
)

// Controller is one reconciliation loop.
type Controller interface {
	// Name returns the unique name of this controller.
	Name() string

	// Interval returns how often this controller should run.
	Interval() time.Duration

	// Reconcile performs the reconciliation logic. It must be
	// idempotent. Returns the number of items processed.
	Reconcile(ctx context.Context) (int, error)
}

// Metrics collects controller health data.
type Metrics interface {
	RecordReconcile(controller string, itemsProcessed int, duration time.Duration, err error)
	SetControllerRunning(controller string, running bool)
	SetLastReconcileTime(controller string, t time.Time)
}

// Manager runs registered controllers in parallel goroutines.
type Manager struct {
	controllers []Controller
	metrics     Metrics
	logger      *logger.Logger
	running     bool
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
}

// NewManager creates a controller manager. Metrics may be nil.
func NewManager(metrics Metrics, log *logger.Logger) *Manager {
	return &Manager{
		metrics: metrics,
		logger:  log,
		stopCh:  make(chan struct{}),
	}
}

// Register adds a controller. Must happen before Start.
func (m *Manager) Register(c Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		panic("cannot register controllers while manager is running")
	}

	m.controllers = append(m.controllers, c)
	m.logger.Info("controller registered", "name", c.Name(), "interval", c.Interval().String())
}

// Start launches all registered controllers.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("controller manager already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("starting controller manager", "controller_count", len(m.controllers))

	for _, c := range m.controllers {
		m.wg.Add(1)
		go m.runController(ctx, c)
	}
	return nil
}

// Stop stops all controllers and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("controller manager stopped")
}

func (m *Manager) runController(ctx context.Context, c Controller) {
	defer m.wg.Done()

	name := c.Name()
	m.logger.Info("starting controller", "name", name, "interval", c.Interval())

	if m.metrics != nil {
		m.metrics.SetControllerRunning(name, true)
	}
	defer func() {
		if m.metrics != nil {
			m.metrics.SetControllerRunning(name, false)
		}
	}()

	// Run once on start so a restart does not delay recovery by a
	// whole interval.
	m.reconcileOnce(ctx, c)

	ticker := time.NewTicker(c.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("controller stopping", "name", name, "reason", "context cancelled")
			return
		case <-m.stopCh:
			m.logger.Info("controller stopping", "name", name, "reason", "manager stopped")
			return
		case <-ticker.C:
			m.reconcileOnce(ctx, c)
		}
	}
}

func (m *Manager) reconcileOnce(ctx context.Context, c Controller) {
	name := c.Name()
	start := time.Now()

	reconcileCtx, cancel := context.WithTimeout(ctx, c.Interval())
	defer cancel()

	count, err := c.Reconcile(reconcileCtx)
	duration := time.Since(start)

	switch {
	case err != nil:
		m.logger.Error("controller reconcile failed",
			"name", name, "duration", duration, "error", err)
	case count > 0:
		m.logger.Info("controller reconcile completed",
			"name", name, "items_processed", count, "duration", duration)
	default:
		m.logger.Debug("controller reconcile completed",
			"name", name, "duration", duration)
	}

	if m.metrics != nil {
		m.metrics.RecordReconcile(name, count, duration, err)
		m.metrics.SetLastReconcileTime(name, time.Now())
	}
}
