package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Repository persists audit entries and failed login attempts in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends one entry. Entries are never updated afterwards.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var details any
	if len(e.Details) > 0 {
		details = string(e.Details)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (action, user_id, username, ip_address, user_agent, method, path, status_code, details, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10)
	`, e.Action, e.UserID, e.Username, e.IPAddress, e.UserAgent, e.Method, e.Path, e.StatusCode, details, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries matching q, newest first.
func (r *Repository) List(ctx context.Context, q Query) ([]Entry, error) {
	q = q.Normalize()
	query := `SELECT id, action, user_id, username, ip_address, user_agent, method, path, status_code, details, timestamp FROM audit_logs`
	args := []any{}
	clauses := []string{}
	if q.Action != "" {
		clauses = append(clauses, "action = $"+strconv.Itoa(len(args)+1))
		args = append(args, q.Action)
	}
	if q.UserID != 0 {
		clauses = append(clauses, "user_id = $"+strconv.Itoa(len(args)+1))
		args = append(args, q.UserID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	res := []Entry{}
	for rows.Next() {
		var (
			e                                       Entry
			username, ip, ua, method, path, details sql.NullString
			status                                  sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.UserID, &username, &ip, &ua, &method, &path, &status, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Username, e.IPAddress, e.UserAgent = username.String, ip.String, ua.String
		e.Method, e.Path, e.StatusCode = method.String, path.String, int(status.Int64)
		if details.Valid {
			e.Details = json.RawMessage(details.String)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Recent returns the newest limit entries.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return r.List(ctx, Query{Limit: limit})
}

// InsertFailedLogin appends one failed attempt.
func (r *Repository) InsertFailedLogin(ctx context.Context, username, ip string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO failed_logins (username, ip_address, attempt_time) VALUES ($1, $2, $3)
	`, username, ip, at)
	if err != nil {
		return fmt.Errorf("insert failed login: %w", err)
	}
	return nil
}

// CountFailedLogins counts attempts for username or ip since the given time.
func (r *Repository) CountFailedLogins(ctx context.Context, username, ip string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM failed_logins
		WHERE (username = $1 OR ip_address = $2) AND attempt_time > $3
	`, username, ip, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed logins: %w", err)
	}
	return n, nil
}

// SecurityAlerts groups failed logins since the given time by username and address,
// keeping groups with at least minAttempts, most attempts first.
func (r *Repository) SecurityAlerts(ctx context.Context, since time.Time, minAttempts int) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(username, ''), COALESCE(ip_address, ''), COUNT(*) AS attempts, MAX(attempt_time)
		FROM failed_logins
		WHERE attempt_time > $1
		GROUP BY username, ip_address
		HAVING COUNT(*) >= $2
		ORDER BY attempts DESC, MAX(attempt_time) DESC
	`, since, minAttempts)
	if err != nil {
		return nil, fmt.Errorf("security alerts: %w", err)
	}
	defer rows.Close()

	res := []Alert{}
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.Username, &a.IPAddress, &a.Attempts, &a.LastAttempt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
