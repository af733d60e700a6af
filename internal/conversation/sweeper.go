package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ScheduleSweep runs SweepIdle on a standard five-field cron schedule. Stop the
// returned scheduler to end it.
func (m *Machine) ScheduleSweep(schedule string, maxIdle time.Duration) (*cron.Cron, error) {
	if maxIdle <= 0 {
		return nil, fmt.Errorf("sweep idle time must be positive, got %s", maxIdle)
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := m.SweepIdle(ctx, maxIdle)
		if err != nil {
			m.logger.Warn("Conversation sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			m.logger.Info("Swept idle conversations", zap.Int("count", n), zap.Duration("max_idle", maxIdle))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}
