// Package ratelimit enforces hourly and daily send quotas. Counters live
// in memory and are flushed to bbolt so that quotas survive restarts.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/pagesend/internal/mail"
	"github.com/foxzi/pagesend/internal/metrics"
)

var bucketRateLimits = []byte("rate_limits")

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal          Level = "global"
	LevelRecipientDomain Level = "recipient_domain"
	LevelRecipient       Level = "recipient"
)

// Config contains rate limit configuration. A nil or zero limit disables
// that level.
type Config struct {
	Global          *LimitConfig
	RecipientDomain *LimitConfig
	Recipient       *LimitConfig
	FlushInterval   time.Duration
}

// LimitConfig contains rate limit values
type LimitConfig struct {
	MessagesPerHour int `yaml:"messages_per_hour" json:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day" json:"messages_per_day"`
}

func (c *LimitConfig) enabled() bool {
	return c != nil && (c.MessagesPerHour > 0 || c.MessagesPerDay > 0)
}

// Counter tracks rate limit counters
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Result contains the rate limit check result
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

// Limiter implements rate limiting with multiple levels
type Limiter struct {
	db       *bolt.DB
	config   *Config
	counters map[string]*Counter
	mu       sync.Mutex
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLimiter creates a limiter and starts its flush loop
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	l.wg.Add(1)
	go l.persistLoop()

	return l, nil
}

// Enabled reports whether any level has a limit
func (l *Limiter) Enabled() bool {
	return l.config.Global.enabled() || l.config.RecipientDomain.enabled() || l.config.Recipient.enabled()
}

// Allow checks every level for recipient and, when all pass, counts one
// message against each of them.
func (l *Limiter) Allow(ctx context.Context, recipient string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.getChecks(recipient)
	if res := l.check(checks, now); !res.Allowed {
		return res, nil
	}
	l.record(checks, now)
	return &Result{Allowed: true}, nil
}

// Check reports whether one more message to recipient fits every level
// without counting it. Pair it with Record once the message is out.
func (l *Limiter) Check(ctx context.Context, recipient string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.check(l.getChecks(recipient), l.now()), nil
}

// Record counts one delivered message to recipient against every level
func (l *Limiter) Record(ctx context.Context, recipient string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.record(l.getChecks(recipient), l.now())
}

func (l *Limiter) check(checks []limitCheck, now time.Time) *Result {
	for _, check := range checks {
		counter := l.getOrCreateCounter(check.key, now)
		resetExpiredCounters(counter, now)

		var retryAfter time.Duration
		switch {
		case check.limit.MessagesPerHour > 0 && counter.HourlyCount >= check.limit.MessagesPerHour:
			retryAfter = counter.HourStart.Add(time.Hour).Sub(now)
		case check.limit.MessagesPerDay > 0 && counter.DailyCount >= check.limit.MessagesPerDay:
			retryAfter = counter.DayStart.Add(24 * time.Hour).Sub(now)
		default:
			continue
		}

		metrics.IncRateLimitExceeded(string(check.level))
		return &Result{
			Allowed:    false,
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: retryAfter,
		}
	}
	return &Result{Allowed: true}
}

func (l *Limiter) record(checks []limitCheck, now time.Time) {
	for _, check := range checks {
		counter := l.getOrCreateCounter(check.key, now)
		resetExpiredCounters(counter, now)
		counter.HourlyCount++
		counter.DailyCount++
	}
}

// Stop stops the flush loop and persists counters
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
	return l.persistCounters()
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) getChecks(recipient string) []limitCheck {
	var checks []limitCheck

	if l.config.Global.enabled() {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	if domain := mail.Domain(recipient); domain != "" && l.config.RecipientDomain.enabled() {
		checks = append(checks, limitCheck{
			level: LevelRecipientDomain,
			key:   makeKey(LevelRecipientDomain, domain),
			limit: l.config.RecipientDomain,
		})
	}

	if recipient != "" && l.config.Recipient.enabled() {
		checks = append(checks, limitCheck{
			level: LevelRecipient,
			key:   makeKey(LevelRecipient, strings.ToLower(recipient)),
			limit: l.config.Recipient,
		})
	}

	return checks
}

func (l *Limiter) getOrCreateCounter(key string, now time.Time) *Counter {
	counter, exists := l.counters[key]
	if !exists {
		counter = &Counter{
			HourStart: now,
			DayStart:  now,
		}
		l.counters[key] = counter
	}
	return counter
}

func resetExpiredCounters(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func (l *Limiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // Skip invalid entries
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func (l *Limiter) persistCounters() error {
	l.mu.Lock()
	snapshot := make(map[string][]byte, len(l.counters))
	for key, counter := range l.counters {
		if data, err := json.Marshal(counter); err == nil {
			snapshot[key] = data
		}
	}
	l.mu.Unlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		for key, data := range snapshot {
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) persistLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
