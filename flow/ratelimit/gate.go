package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Limit-type names surfaced to callers when a window denies admission.
const (
	LimitDaily  = "daily teacher limit"
	LimitHourly = "hourly classroom limit"
	LimitBurst  = "burst limit"
	LimitIP     = "ip limit"
)

// Window durations.
const (
	hourlyWindow = time.Hour
	burstWindow  = time.Minute
	ipWindow     = time.Minute
)

// Config carries the window caps. Zero values select the defaults.
type Config struct {
	DailyLimit  int // executions per teacher per UTC day
	HourlyLimit int // executions per classroom per hour
	BurstLimit  int // executions per teacher per minute
	IPLimit     int // requests per source address per minute
}

// DefaultConfig returns the standard caps.
func DefaultConfig() Config {
	return Config{
		DailyLimit:  500,
		HourlyLimit: 100,
		BurstLimit:  10,
		IPLimit:     30,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DailyLimit <= 0 {
		c.DailyLimit = d.DailyLimit
	}
	if c.HourlyLimit <= 0 {
		c.HourlyLimit = d.HourlyLimit
	}
	if c.BurstLimit <= 0 {
		c.BurstLimit = d.BurstLimit
	}
	if c.IPLimit <= 0 {
		c.IPLimit = d.IPLimit
	}
	return c
}

// WindowStatus is the point-in-time state of one window.
type WindowStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
	Success   bool      `json:"success"`
}

// Decision is the admission outcome. When denied, LimitType names the
// first failing window and RetryAfter approximates when it reopens.
type Decision struct {
	Allowed    bool
	LimitType  string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Limits     map[string]WindowStatus
}

// UsageSnapshot reports a teacher's remaining quota across windows.
type UsageSnapshot struct {
	Daily WindowStatus `json:"daily"`
	Burst WindowStatus `json:"burst"`
}

// Gate admits or rejects execution requests against the configured
// windows. All applicable windows must admit; counters are incremented only
// on admission. Store errors admit the request.
type Gate struct {
	store CounterStore
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

// NewGate creates a gate over the given counter store.
func NewGate(store CounterStore, cfg Config, log zerolog.Logger) *Gate {
	return &Gate{
		store: store,
		cfg:   cfg.withDefaults(),
		log:   log,
		now:   time.Now,
	}
}

// WithClock substitutes the time source, for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// CheckExecution admits or denies one execution for the teacher, and the
// classroom when one is supplied. On admission every applicable counter is
// incremented.
func (g *Gate) CheckExecution(ctx context.Context, teacherID, classroomID string) Decision {
	now := g.now().UTC()
	limits := make(map[string]WindowStatus, 3)

	daily, err := g.fixedStatus(ctx, g.dailyKey(teacherID, now), g.cfg.DailyLimit, midnightAfter(now))
	if err != nil {
		return g.failOpen(err)
	}
	limits["teacher"] = daily

	var hourly WindowStatus
	if classroomID != "" {
		hourly, err = g.fixedStatus(ctx, g.hourlyKey(classroomID, now), g.cfg.HourlyLimit, now.Truncate(hourlyWindow).Add(hourlyWindow))
		if err != nil {
			return g.failOpen(err)
		}
		limits["classroom"] = hourly
	}

	burst, err := g.slidingStatus(ctx, g.burstKey(teacherID), g.cfg.BurstLimit, burstWindow, now)
	if err != nil {
		return g.failOpen(err)
	}
	limits["burst"] = burst

	// First failing window names the denial.
	switch {
	case !daily.Success:
		return deny(LimitDaily, daily, limits, now)
	case classroomID != "" && !hourly.Success:
		return deny(LimitHourly, hourly, limits, now)
	case !burst.Success:
		return deny(LimitBurst, burst, limits, now)
	}

	if _, err := g.store.FixedIncr(ctx, g.dailyKey(teacherID, now), midnightAfter(now).Sub(now)); err != nil {
		return g.failOpen(err)
	}
	if classroomID != "" {
		if _, err := g.store.FixedIncr(ctx, g.hourlyKey(classroomID, now), hourlyWindow); err != nil {
			return g.failOpen(err)
		}
	}
	if err := g.store.SlidingAdd(ctx, g.burstKey(teacherID), burstWindow); err != nil {
		return g.failOpen(err)
	}

	return Decision{Allowed: true, Limits: limits}
}

// CheckIP gates unauthenticated callers by source address.
func (g *Gate) CheckIP(ctx context.Context, ip string) Decision {
	now := g.now().UTC()
	status, err := g.slidingStatus(ctx, "rl:ip:"+ip, g.cfg.IPLimit, ipWindow, now)
	if err != nil {
		return g.failOpen(err)
	}
	limits := map[string]WindowStatus{"ip": status}
	if !status.Success {
		return deny(LimitIP, status, limits, now)
	}
	if err := g.store.SlidingAdd(ctx, "rl:ip:"+ip, ipWindow); err != nil {
		return g.failOpen(err)
	}
	return Decision{Allowed: true, Limits: limits}
}

// UsageStats reports the teacher's current quota without counting against
// any window.
func (g *Gate) UsageStats(ctx context.Context, teacherID string) (UsageSnapshot, error) {
	now := g.now().UTC()
	daily, err := g.fixedStatus(ctx, g.dailyKey(teacherID, now), g.cfg.DailyLimit, midnightAfter(now))
	if err != nil {
		return UsageSnapshot{}, err
	}
	burst, err := g.slidingStatus(ctx, g.burstKey(teacherID), g.cfg.BurstLimit, burstWindow, now)
	if err != nil {
		return UsageSnapshot{}, err
	}
	return UsageSnapshot{Daily: daily, Burst: burst}, nil
}

func (g *Gate) fixedStatus(ctx context.Context, key string, limit int, reset time.Time) (WindowStatus, error) {
	count, err := g.store.FixedCount(ctx, key)
	if err != nil {
		return WindowStatus{}, err
	}
	return status(count, limit, reset), nil
}

func (g *Gate) slidingStatus(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (WindowStatus, error) {
	count, err := g.store.SlidingCount(ctx, key, window)
	if err != nil {
		return WindowStatus{}, err
	}
	return status(count, limit, now.Add(window)), nil
}

func status(count int64, limit int, reset time.Time) WindowStatus {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return WindowStatus{
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
		Success:   int(count) < limit,
	}
}

func deny(limitType string, failed WindowStatus, limits map[string]WindowStatus, now time.Time) Decision {
	retryAfter := failed.Reset.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{
		Allowed:    false,
		LimitType:  limitType,
		Limit:      failed.Limit,
		Remaining:  failed.Remaining,
		RetryAfter: retryAfter,
		Limits:     limits,
	}
}

// failOpen admits the request when the counter store misbehaves.
func (g *Gate) failOpen(err error) Decision {
	g.log.Warn().Err(err).Msg("rate-limit store unavailable, admitting request")
	return Decision{Allowed: true}
}

func (g *Gate) dailyKey(teacherID string, now time.Time) string {
	return fmt.Sprintf("rl:daily:%s:%s", teacherID, now.Format("2006-01-02"))
}

func (g *Gate) hourlyKey(classroomID string, now time.Time) string {
	return fmt.Sprintf("rl:hourly:%s:%d", classroomID, now.Unix()/int64(hourlyWindow.Seconds()))
}

func (g *Gate) burstKey(teacherID string) string {
	return "rl:burst:" + teacherID
}

// midnightAfter returns the next UTC midnight, when the daily window
// resets.
func midnightAfter(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
