package db

import "time"

const incrementCounterSQL = `INSERT INTO rate_limit_counters (key, window_start, count)
	VALUES (?, ?, 1)
	ON CONFLICT (key, window_start)
	DO UPDATE SET count = rate_limit_counters.count + 1
	RETURNING count`

// IncrementCounter atomically bumps the counter for (key, window) and
// returns the new count.
func (r *Repository) IncrementCounter(key string, windowStart time.Time) (int, error) {
	var count int
	err := r.db.Raw(incrementCounterSQL, key, windowStart).Scan(&count).Error
	return count, err
}

// DeleteCountersBefore drops windows that can no longer be hit.
func (r *Repository) DeleteCountersBefore(t time.Time) (int64, error) {
	res := r.db.Where("window_start < ?", t).Delete(&RateLimitCounter{})
	return res.RowsAffected, res.Error
}
