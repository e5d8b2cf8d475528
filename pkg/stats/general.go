package stats

import (
	"context"
	"fmt"
)

// GeneralStats summarises submission volume.
type GeneralStats struct {
	InDuration DurationTotals `json:"in_duration"`
	AllTime    *AllTimeTotals `json:"all_time,omitempty"`
}

type DurationTotals struct {
	TotalSubmissions int64 `json:"total_submissions"`
	TotalUsers       int64 `json:"total_users"`
}

// AllTimeTotals are measured from the query instant, not from the window's offset.
type AllTimeTotals struct {
	TotalSubmissions int64 `json:"total_submissions"`
	TotalUsers       int64 `json:"total_users"`
	UsersLast7Days   int64 `json:"users_last_7_days"`
	UsersLast30Days  int64 `json:"users_last_30_days"`
}

// GetGeneralStats counts submissions and distinct users inside w and, when
// allTime is set, across all history.
func (a *Aggregator) GetGeneralStats(ctx context.Context, w Window, allTime bool) (*GeneralStats, error) {
	now := a.Now()
	start, end := w.Bounds(now)
	db := a.reader()

	var out GeneralStats
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT user_id)
		FROM submissions
		WHERE timestamp >= $1 AND timestamp < $2
	`, start, end).Scan(&out.InDuration.TotalSubmissions, &out.InDuration.TotalUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions in window: %w", err)
	}

	if !allTime {
		return &out, nil
	}

	var totals AllTimeTotals
	err = db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT user_id),
			COUNT(DISTINCT CASE WHEN timestamp >= $1 THEN user_id END),
			COUNT(DISTINCT CASE WHEN timestamp >= $2 THEN user_id END)
		FROM submissions
	`, now.AddDate(0, 0, -7), now.AddDate(0, 0, -30)).Scan(
		&totals.TotalSubmissions,
		&totals.TotalUsers,
		&totals.UsersLast7Days,
		&totals.UsersLast30Days,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count all-time submissions: %w", err)
	}
	out.AllTime = &totals
	return &out, nil
}
