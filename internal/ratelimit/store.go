// Package ratelimit enforces per-user request limits with a sliding window
// counter persisted in the database, so limits hold across server restarts
// and replicas.
package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/internal/logging"
	"github.com/driftpad/driftpad/internal/metrics"
)

// Limiter counts requests in one-minute buckets in the rate_limits table.
// The effective count blends the previous bucket weighted by how much of
// the current minute remains.
type Limiter struct {
	db *sql.DB
}

// New creates a database-backed limiter.
func New(db *sql.DB) *Limiter {
	return &Limiter{db: db}
}

// Allow records one request for the user and reports whether it fits within
// rpm requests per minute. rpm <= 0 means unlimited.
func (l *Limiter) Allow(ctx context.Context, userID, rpm int) (bool, error) {
	if rpm <= 0 {
		return true, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDBQuery("rate_limit_allow", time.Since(start)) }()

	now := time.Now().UTC()
	curWindow := now.Truncate(time.Minute)
	prevWindow := curWindow.Add(-time.Minute)

	var curCount int
	err := l.db.QueryRowContext(ctx,
		`INSERT INTO rate_limits (user_id, window_start, count) VALUES ($1, $2, 1)
		 ON CONFLICT (user_id, window_start) DO UPDATE SET count = rate_limits.count + 1
		 RETURNING count`,
		userID, curWindow).Scan(&curCount)
	if err != nil {
		return false, fmt.Errorf("increment rate limit: %w", err)
	}

	var prevCount int
	err = l.db.QueryRowContext(ctx,
		`SELECT COALESCE(count, 0) FROM rate_limits WHERE user_id = $1 AND window_start = $2`,
		userID, prevWindow).Scan(&prevCount)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("query previous window: %w", err)
	}

	weighted := WeightedCount(prevCount, curCount, now.Sub(curWindow))
	return weighted <= float64(rpm), nil
}

// RetryAfter returns how many seconds the client should wait before retrying.
func (l *Limiter) RetryAfter() int {
	return RetryAfterSeconds(time.Now().UTC())
}

// Cleanup deletes counter rows older than two windows.
func (l *Limiter) Cleanup(ctx context.Context) (int64, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("rate_limit_cleanup", time.Since(start)) }()

	cutoff := time.Now().UTC().Truncate(time.Minute).Add(-2 * time.Minute)
	result, err := l.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limits: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		logging.Debug("cleaned up rate limit rows", zap.Int64("rows", rows))
	}
	return rows, nil
}

// WeightedCount blends the previous and current minute buckets. elapsed is
// how far into the current minute the request falls; the previous bucket's
// weight fades linearly over the minute.
func WeightedCount(prevCount, curCount int, elapsed time.Duration) float64 {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > time.Minute {
		elapsed = time.Minute
	}
	weight := 1 - elapsed.Seconds()/60.0
	return float64(prevCount)*weight + float64(curCount)
}

// RetryAfterSeconds returns whole seconds until the next minute boundary.
func RetryAfterSeconds(now time.Time) int {
	next := now.Truncate(time.Minute).Add(time.Minute)
	secs := int(next.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
