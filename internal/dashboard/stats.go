// Package dashboard computes the admin overview numbers straight from
// Postgres.
package dashboard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/scoring"
)

// openStatuses are the statuses still worked by sales.
var openStatuses = []string{string(leads.StatusNew), string(leads.StatusContacted), string(leads.StatusQualified)}

// Stats is the admin overview.
type Stats struct {
	Since      time.Time      `json:"since"`
	Total      int            `json:"total"`
	NewInRange int            `json:"new_in_range"`
	Open       int            `json:"open"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
	AvgScore   float64        `json:"avg_score"`
	FollowUps  map[string]int `json:"followups"`
}

// Service runs the dashboard queries.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Stats aggregates leads and scheduled emails. since bounds NewInRange only.
func (s *Service) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := &Stats{
		Since:      since,
		ByStatus:   make(map[string]int, len(leads.Statuses)),
		ByCategory: map[string]int{string(scoring.CategoryHot): 0, string(scoring.CategoryWarm): 0, string(scoring.CategoryCold): 0},
		FollowUps:  map[string]int{},
	}
	for _, status := range leads.Statuses {
		st.ByStatus[string(status)] = 0
	}

	var hot, warm, cold int
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $1),
		       COUNT(*) FILTER (WHERE score >= $2),
		       COUNT(*) FILTER (WHERE score >= $3 AND score < $2),
		       COUNT(*) FILTER (WHERE score < $3),
		       AVG(score)
		FROM leads`,
		since, scoring.HotCutoff, scoring.WarmCutoff,
	).Scan(&st.Total, &st.NewInRange, &hot, &warm, &cold, &avg)
	if err != nil {
		return nil, fmt.Errorf("dashboard: lead totals: %w", err)
	}
	st.ByCategory[string(scoring.CategoryHot)] = hot
	st.ByCategory[string(scoring.CategoryWarm)] = warm
	st.ByCategory[string(scoring.CategoryCold)] = cold
	if avg.Valid {
		st.AvgScore = avg.Float64
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leads WHERE status = ANY($1)`, pq.Array(openStatuses),
	).Scan(&st.Open); err != nil {
		return nil, fmt.Errorf("dashboard: open leads: %w", err)
	}

	if err := s.groupCount(ctx, `SELECT status, COUNT(*) FROM leads GROUP BY status`, st.ByStatus); err != nil {
		return nil, fmt.Errorf("dashboard: leads by status: %w", err)
	}
	if err := s.groupCount(ctx, `SELECT status, COUNT(*) FROM scheduled_emails GROUP BY status`, st.FollowUps); err != nil {
		return nil, fmt.Errorf("dashboard: followups by status: %w", err)
	}
	return st, nil
}

func (s *Service) groupCount(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}
