package camera

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// monitor periodically checks cameras for color-space drift
type monitor struct {
	cron   *cron.Cron
	cancel context.CancelFunc
}

// cronLogger adapts zap to the cron.Logger interface
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// StartMonitor schedules CheckDrift with a standard cron expression or
// descriptor such as "@every 1m"
func (m *Manager) StartMonitor(ctx context.Context, schedule string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.monitor != nil {
		return fmt.Errorf("monitor already running")
	}

	logger := cronLogger{logger: m.logger.Named("monitor").Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)

	monitorCtx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(schedule, func() {
		if n := m.CheckDrift(monitorCtx); n > 0 {
			m.logger.Info("Re-applied drifted cameras", zap.Int("count", n))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}

	c.Start()
	m.monitor = &monitor{cron: c, cancel: cancel}
	m.logger.Info("Drift monitor started", zap.String("schedule", schedule))
	return nil
}

// StopMonitor stops the drift monitor and waits for a running check
func (m *Manager) StopMonitor() {
	m.mu.Lock()
	mon := m.monitor
	m.monitor = nil
	m.mu.Unlock()

	if mon == nil {
		return
	}
	mon.cancel()
	<-mon.cron.Stop().Done()
	m.logger.Info("Drift monitor stopped")
}
