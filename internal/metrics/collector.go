package metrics

import (
	"context"
	"os"
	"sync"
	"time"
)

// Collector periodically refreshes the system gauges
type Collector struct {
	metrics      *Metrics
	storagePaths []string
	interval     time.Duration
	startTime    time.Time
	sessionCount func() int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a collector. storagePaths are files whose sizes are
// summed into pagesend_storage_used_bytes; sessionCount may be nil.
func NewCollector(m *Metrics, storagePaths []string, sessionCount func() int, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:      m,
		storagePaths: storagePaths,
		interval:     interval,
		startTime:    time.Now(),
		sessionCount: sessionCount,
		stopCh:       make(chan struct{}),
	}
}

// Start runs the refresh loop until ctx is done or Stop is called
func (c *Collector) Start(ctx context.Context) {
	c.update()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.update()
			}
		}
	}()
}

// Stop stops the refresh loop
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) update() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())

	var size int64
	for _, path := range c.storagePaths {
		if info, err := os.Stat(path); err == nil {
			size += info.Size()
		}
	}
	c.metrics.StorageUsedBytes.Set(float64(size))

	// Expired sessions leave the cache lazily, so resync the gauge here
	if c.sessionCount != nil {
		c.metrics.UploadSessions.Set(float64(c.sessionCount()))
	}
}
