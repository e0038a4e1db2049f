package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"mqtt-cluster/internal/metrics"
)

// runTimer schedules a flush when timer fires and then every
// FlushInterval until the coordinator closes.
func (c *Coordinator) runTimer(timer *clock.Timer) {
	defer close(c.timerDone)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-c.timerStop:
		return
	}

	ticker := c.clock.Ticker(c.cfg.FlushInterval)
	defer ticker.Stop()

	c.scheduleFlush()
	for {
		select {
		case <-ticker.C:
			c.scheduleFlush()
		case <-c.timerStop:
			return
		}
	}
}

// scheduleFlush runs a flush cycle through the mailbox
func (c *Coordinator) scheduleFlush() {
	err := c.do(context.Background(), func() error {
		// Failures are already logged and counted per batch
		_ = c.flush(context.Background())
		return nil
	})
	if err != nil && !errors.Is(err, ErrDeactivated) {
		c.logger.Error("failed to schedule flush", "error", err)
	}
}

// flush persists everything queued so far. A failed batch is discarded.
func (c *Coordinator) flush(ctx context.Context) error {
	start := c.clock.Now()

	c.logger.Debug("periodic persisting started",
		"publishMessageQueue", c.publishQueue.Len(),
		"eventLogQueue", c.eventLogQueue.Len())

	err := multierr.Combine(
		c.storeEventLogs(ctx),
		c.storePublishMessages(ctx),
	)

	elapsed := c.clock.Now().Sub(start)
	c.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.ObserveFlushDuration(elapsed)
	})
	c.logger.Debug("periodic persisting finished", "duration", elapsed)

	return err
}

func (c *Coordinator) storeEventLogs(ctx context.Context) error {
	batch := c.eventLogQueue.DrainAll()
	if len(batch) == 0 {
		return nil
	}

	err := c.insert(kindEventLog, len(batch), func() error {
		return c.repos.EventLogs.InsertEventLogs(ctx, batch)
	})
	if err != nil {
		return err
	}

	if c.notifier != nil {
		c.notifier.NotifyEventLogs(ctx, batch)
	}
	return nil
}

func (c *Coordinator) storePublishMessages(ctx context.Context) error {
	batch := c.publishQueue.DrainAll()
	if len(batch) == 0 {
		return nil
	}

	err := c.insert(kindPublishMessage, len(batch), func() error {
		return c.repos.PublishMessages.InsertPublishMessages(ctx, batch)
	})
	if err != nil {
		return err
	}

	if c.notifier != nil {
		c.notifier.NotifyPublishMessages(ctx, batch)
	}
	return nil
}

// insert runs one repository call and records its outcome
func (c *Coordinator) insert(kind string, n int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("repository panicked: %v", r)
		}
		if err == nil {
			c.stats.AddPersisted(n)
			c.safeMetricsUpdate(func(m *metrics.Metrics) {
				m.IncFlushBatches(kind, "success")
				m.AddRecordsPersisted(kind, n)
			})
			return
		}

		c.logger.Error("failed to persist batch, records discarded",
			"kind", kind,
			"count", n,
			"error", err)
		c.stats.AddLost(n)
		c.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncFlushBatches(kind, "error")
			m.AddRecordsLost(kind, n)
		})
		err = fmt.Errorf("failed to persist %d %s records: %w", n, kind, err)
	}()

	return fn()
}
