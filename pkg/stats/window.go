package stats

import "time"

// Window selects submissions in [now - DaysAgo - Days, now - DaysAgo).
type Window struct {
	Days    int
	DaysAgo int
}

// Bounds returns the half-open timestamp range of w relative to now, in UTC.
func (w Window) Bounds(now time.Time) (start, end time.Time) {
	end = now.UTC().AddDate(0, 0, -w.DaysAgo)
	start = end.AddDate(0, 0, -w.Days)
	return start, end
}

// representativeCTE selects, per identity, its latest submission in [$1, $2).
// Ties on timestamp resolve to the highest submission id.
const representativeCTE = `
	WITH window_latest AS (
		SELECT user_id, MAX(timestamp) AS latest
		FROM submissions
		WHERE timestamp >= $1 AND timestamp < $2
		GROUP BY user_id
	), representative AS (
		SELECT MAX(s.id) AS id
		FROM submissions s
		JOIN window_latest w ON w.user_id = s.user_id AND w.latest = s.timestamp
		GROUP BY s.user_id
	)
`
