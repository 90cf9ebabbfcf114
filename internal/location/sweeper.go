package location

import (
	"context"
	"time"

	"github.com/askwhyharsh/liveradar/internal/metrics"
	"github.com/askwhyharsh/liveradar/pkg/logger"
)

// Janitor runs a Sweeper on an interval.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	metrics  *metrics.Collector
	logger   logger.Logger
}

func NewJanitor(sweeper Sweeper, interval time.Duration, m *metrics.Collector, log logger.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		sweeper:  sweeper,
		interval: interval,
		metrics:  m,
		logger:   log,
	}
}

func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("Location janitor started", "interval", j.interval)

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-ctx.Done():
			j.logger.Info("Location janitor stopped")
			return
		}
	}
}

// RunOnce performs a single sweep and returns the number of entries removed.
func (j *Janitor) RunOnce(ctx context.Context) int {
	n, err := j.sweeper.Sweep(ctx)
	if err != nil {
		j.logger.Error("Failed to sweep expired locations", "error", err)
		return n
	}
	if n > 0 {
		j.logger.Debug("Swept expired locations", "count", n)
	}
	j.metrics.Swept(n)
	return n
}
