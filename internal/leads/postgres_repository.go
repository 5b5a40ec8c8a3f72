package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the slice of pgx the repository needs; pgxpool.Pool and pgxmock satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithDB(db DB) *PostgresRepository {
	if db == nil {
		panic("leads: db required")
	}
	return &PostgresRepository{db: db}
}

const leadColumns = `id, first_name, last_name, email, phone, company, service, budget, timeline, message, score, ip_address, user_agent, referer_url, status, created_at`

// Insert writes a new row and returns its id.
func (r *PostgresRepository) Insert(ctx context.Context, rec *LeadRecord) (string, error) {
	id := uuid.New()
	if rec.ID != "" {
		parsed, err := uuid.Parse(rec.ID)
		if err != nil {
			return "", fmt.Errorf("leads: invalid id %q: %w", rec.ID, err)
		}
		id = parsed
	}
	if rec.Status == "" {
		rec.Status = StatusNew
	}

	query := `
		INSERT INTO leads (id, first_name, last_name, email, phone, company, service, budget, timeline, message, score, ip_address, user_agent, referer_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query,
		id,
		rec.FirstName,
		rec.LastName,
		rec.Email,
		rec.Phone,
		rec.Company,
		rec.Service,
		rec.Budget,
		rec.Timeline,
		rec.Message,
		rec.Score,
		rec.IPAddress,
		rec.UserAgent,
		rec.RefererURL,
		string(rec.Status),
	).Scan(&createdAt); err != nil {
		return "", fmt.Errorf("leads: insert failed: %w", err)
	}

	rec.ID = id.String()
	rec.CreatedAt = createdAt
	return rec.ID, nil
}

// GetByID fetches a single lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*LeadRecord, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrLeadNotFound
	}
	rows, err := r.db.Query(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, parsed)
	if err != nil {
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	defer rows.Close()
	out, err := scanLeads(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrLeadNotFound
	}
	return out[0], nil
}

// List returns leads newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*LeadRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = r.db.Query(ctx, `SELECT `+leadColumns+` FROM leads
			WHERE status = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`, string(filter.Status), limit, filter.Offset)
	} else {
		rows, err = r.db.Query(ctx, `SELECT `+leadColumns+` FROM leads
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, filter.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}

func scanLeads(rows pgx.Rows) ([]*LeadRecord, error) {
	out := []*LeadRecord{}
	for rows.Next() {
		var (
			lead   LeadRecord
			id     uuid.UUID
			status string
		)
		if err := rows.Scan(
			&id,
			&lead.FirstName,
			&lead.LastName,
			&lead.Email,
			&lead.Phone,
			&lead.Company,
			&lead.Service,
			&lead.Budget,
			&lead.Timeline,
			&lead.Message,
			&lead.Score,
			&lead.IPAddress,
			&lead.UserAgent,
			&lead.RefererURL,
			&status,
			&lead.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		lead.ID = id.String()
		lead.Status = Status(status)
		out = append(out, &lead)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("leads: rows: %w", err)
	}
	return out, nil
}
