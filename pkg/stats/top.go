package stats

import (
	"context"
	"fmt"
	"strings"
)

// ReservedPort is the statistics client's own port, excluded from rankings.
const ReservedPort = "mpstats"

// Top-packages defaults.
const (
	DefaultTopDays       = 30
	DefaultTopCount      = 1000
	DefaultTopPaginateBy = 100
)

// DefaultTopSort orders by installs, then requested installs, then name.
var DefaultTopSort = [3]string{"-total_count", "-req_count", "port"}

var topSortColumns = map[string]string{
	"port":        "port",
	"total_count": "total_count",
	"req_count":   "req_count",
}

// TopQuery selects one page of the top-packages ranking.
type TopQuery struct {
	Days       int
	Count      int
	Page       int
	PaginateBy int
	SortBy     [3]string
}

// PortCount is one ranked package.
type PortCount struct {
	Port       string `json:"port"`
	TotalCount int64  `json:"total_count"`
	ReqCount   int64  `json:"req_count"`
}

// TopPage is one page of the ranking.
type TopPage struct {
	Ports       []PortCount `json:"ports"`
	Page        int         `json:"page"`
	NumPages    int         `json:"num_pages"`
	Count       int         `json:"count"`
	PaginateBy  int         `json:"paginate_by"`
	HasNext     bool        `json:"has_next"`
	HasPrevious bool        `json:"has_previous"`
}

func orderByClause(sortBy [3]string) (string, error) {
	parts := make([]string, 0, 4)
	seen := map[string]bool{}
	for _, col := range sortBy {
		if col == "" {
			continue
		}
		dir := "ASC"
		name := col
		if strings.HasPrefix(col, "-") {
			dir, name = "DESC", col[1:]
		}
		expr, ok := topSortColumns[name]
		if !ok {
			return "", fmt.Errorf("%w: unknown sort column %q", ErrInvalidQuery, col)
		}
		if seen[name] {
			return "", fmt.Errorf("%w: sort column %q repeated", ErrInvalidQuery, name)
		}
		seen[name] = true
		parts = append(parts, expr+" "+dir)
	}
	if !seen["port"] {
		parts = append(parts, "port ASC")
	}
	return strings.Join(parts, ", "), nil
}

// GetTopPackages ranks packages by distinct installing identities over the last
// q.Days days. At most q.Count packages are ranked; they are split into pages of
// q.PaginateBy. A page past the end returns the last page and a page below one
// returns the first. A non-positive PaginateBy puts everything on one page.
func (a *Aggregator) GetTopPackages(ctx context.Context, q TopQuery) (*TopPage, error) {
	orderBy, err := orderByClause(q.SortBy)
	if err != nil {
		return nil, err
	}

	start, end := Window{Days: q.Days}.Bounds(a.Now())
	db := a.reader()

	var groups int
	err = db.QueryRowContext(ctx, representativeCTE+`
		SELECT COUNT(*) FROM (
			SELECT LOWER(i.port)
			FROM installations i
			JOIN representative r ON r.id = i.submission_id
			WHERE LOWER(i.port) <> $3
			GROUP BY LOWER(i.port)
		) ranked
	`, start, end, ReservedPort).Scan(&groups)
	if err != nil {
		return nil, fmt.Errorf("failed to count ranked ports: %w", err)
	}

	total := groups
	if q.Count >= 0 && q.Count < total {
		total = q.Count
	}

	page := &TopPage{Ports: []PortCount{}, PaginateBy: q.PaginateBy, Count: total}
	limit, offset := paginate(page, total, q.Page, q.PaginateBy)
	if limit == 0 {
		return page, nil
	}

	rows, err := db.QueryContext(ctx, representativeCTE+`
		SELECT
			LOWER(i.port) AS port,
			COUNT(DISTINCT i.submission_id) AS total_count,
			COUNT(DISTINCT CASE WHEN i.requested THEN i.submission_id END) AS req_count
		FROM installations i
		JOIN representative r ON r.id = i.submission_id
		WHERE LOWER(i.port) <> $3
		GROUP BY LOWER(i.port)
		ORDER BY `+orderBy+`
		LIMIT $4 OFFSET $5
	`, start, end, ReservedPort, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to rank ports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pc PortCount
		if err := rows.Scan(&pc.Port, &pc.TotalCount, &pc.ReqCount); err != nil {
			return nil, err
		}
		page.Ports = append(page.Ports, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

// paginate fills the page metadata for total items and returns the row window.
func paginate(page *TopPage, total, requested, perPage int) (limit, offset int) {
	if perPage <= 0 {
		perPage = total
		if perPage == 0 {
			perPage = 1
		}
	}
	numPages := (total + perPage - 1) / perPage
	if numPages < 1 {
		numPages = 1
	}

	switch {
	case requested < 1:
		requested = 1
	case requested > numPages:
		requested = numPages
	}

	page.Page = requested
	page.NumPages = numPages
	page.HasPrevious = requested > 1
	page.HasNext = requested < numPages

	offset = (requested - 1) * perPage
	limit = perPage
	if offset+limit > total {
		limit = total - offset
	}
	if limit < 0 {
		limit = 0
	}
	return limit, offset
}
