package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"streamline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness constraint rejection from the store.
	ErrConflict = errors.New("unique constraint violated")
)

// TimeLayout is fixed-width so stored timestamps compare lexically in SQL.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

const streamColumns = `id,public_id,owner_id,sponsor_id,subject,category,link,due_at,status,scope,created_at,completed_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (domain.Stream, error) {
	var s domain.Stream
	var sponsor, category, link, completedAt sql.NullString
	var dueAt, createdAt, updatedAt, status string
	if err := row.Scan(&s.ID, &s.PublicID, &s.OwnerID, &sponsor, &s.Subject, &category, &link, &dueAt, &status, &s.Scope, &createdAt, &completedAt, &updatedAt); err != nil {
		return s, err
	}
	s.Status = domain.Status(status)
	if sponsor.Valid {
		s.SponsorID = &sponsor.String
	}
	if category.Valid {
		s.Category = &category.String
	}
	if link.Valid {
		s.Link = &link.String
	}
	var err error
	if s.DueAt, err = ParseTime(dueAt); err != nil {
		return s, fmt.Errorf("stream %s due_at: %w", s.PublicID, err)
	}
	if s.CreatedAt, err = ParseTime(createdAt); err != nil {
		return s, fmt.Errorf("stream %s created_at: %w", s.PublicID, err)
	}
	if s.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return s, fmt.Errorf("stream %s updated_at: %w", s.PublicID, err)
	}
	if completedAt.Valid {
		ts, err := ParseTime(completedAt.String)
		if err != nil {
			return s, fmt.Errorf("stream %s completed_at: %w", s.PublicID, err)
		}
		s.CompletedAt = &ts
	}
	return s, nil
}

func collectStreams(rows *sql.Rows) ([]domain.Stream, error) {
	defer rows.Close()
	var res []domain.Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertStream stores a new stream and returns its surrogate key. A public id
// collision is reported as ErrConflict.
func (r Repo) InsertStream(ctx context.Context, s domain.Stream) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO streams(public_id,owner_id,sponsor_id,subject,category,link,due_at,status,scope,created_at,completed_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.PublicID, s.OwnerID, nullableStringPtr(s.SponsorID), s.Subject, nullableStringPtr(s.Category), nullableStringPtr(s.Link),
		FormatTime(s.DueAt), string(s.Status), s.Scope, FormatTime(s.CreatedAt), nullableTimePtr(s.CompletedAt), FormatTime(s.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert stream %s: %w", s.PublicID, ErrConflict)
		}
		return 0, fmt.Errorf("insert stream: %w", err)
	}
	return res.LastInsertId()
}

// GetStream looks a stream up by public id within one scope.
func (r Repo) GetStream(ctx context.Context, scope, publicID string) (domain.Stream, error) {
	s, err := scanStream(r.DB.QueryRowContext(ctx, `SELECT `+streamColumns+` FROM streams WHERE public_id=? AND scope=?`, publicID, scope))
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// LatestActiveSince returns the newest active stream for owner in scope that
// was created at or after since. An empty subject matches any subject;
// otherwise subjects compare case-insensitively.
func (r Repo) LatestActiveSince(ctx context.Context, scope, ownerID, subject string, since time.Time) (domain.Stream, error) {
	clauses := []string{"scope=?", "owner_id=?", "status='active'", "created_at>=?"}
	args := []any{scope, ownerID, FormatTime(since)}
	if subject != "" {
		clauses = append(clauses, "lower(subject)=lower(?)")
		args = append(args, subject)
	}
	query := `SELECT ` + streamColumns + ` FROM streams WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC LIMIT 1`
	s, err := scanStream(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// CompleteStream flips an active stream to completed in one statement. A row
// that is missing or already completed yields ErrNotFound.
func (r Repo) CompleteStream(ctx context.Context, id int64, at time.Time) error {
	ts := FormatTime(at)
	res, err := r.DB.ExecContext(ctx, `UPDATE streams SET status='completed', completed_at=?, updated_at=? WHERE id=? AND status='active'`, ts, ts, id)
	if err != nil {
		return fmt.Errorf("complete stream: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type StreamOrder string

const (
	OrderCreated StreamOrder = "created"
	OrderDue     StreamOrder = "due"
)

type StreamFilters struct {
	Scope   string
	Status  domain.Status
	OwnerID string
	Order   StreamOrder
	Limit   int
}

func (r Repo) ListStreams(ctx context.Context, f StreamFilters) ([]domain.Stream, error) {
	var clauses []string
	var args []any
	if f.Scope != "" {
		clauses = append(clauses, "scope=?")
		args = append(args, f.Scope)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	order := "id ASC"
	if f.Order == OrderDue {
		order = "due_at ASC, id ASC"
	}
	query := `SELECT ` + streamColumns + ` FROM streams ` + where + ` ORDER BY ` + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectStreams(rows)
}

// ListActiveDueBetween returns active streams in every scope with start <= due_at < end.
func (r Repo) ListActiveDueBetween(ctx context.Context, start, end time.Time) ([]domain.Stream, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+streamColumns+` FROM streams
WHERE status='active' AND due_at>=? AND due_at<? ORDER BY scope ASC, due_at ASC, id ASC`, FormatTime(start), FormatTime(end))
	if err != nil {
		return nil, err
	}
	return collectStreams(rows)
}

// DeleteOlderThan hard-deletes streams whose basis timestamp is before
// cutoff. basis "completed" only matches completed rows; "created" matches
// any row. An empty scope sweeps every scope.
func (r Repo) DeleteOlderThan(ctx context.Context, basis, scope string, cutoff time.Time) ([]domain.SweptStream, error) {
	var clauses []string
	switch basis {
	case "completed":
		clauses = append(clauses, "status='completed'", "completed_at IS NOT NULL", "completed_at<?")
	case "created":
		clauses = append(clauses, "created_at<?")
	default:
		return nil, fmt.Errorf("unknown retention basis %q", basis)
	}
	args := []any{FormatTime(cutoff)}
	if scope != "" {
		clauses = append(clauses, "scope=?")
		args = append(args, scope)
	}
	return r.deleteReturning(ctx, `DELETE FROM streams WHERE `+strings.Join(clauses, " AND "), args...)
}

// DeleteStream hard-deletes one stream by surrogate key.
func (r Repo) DeleteStream(ctx context.Context, id int64) ([]domain.SweptStream, error) {
	return r.deleteReturning(ctx, `DELETE FROM streams WHERE id=?`, id)
}

// DeleteScope hard-deletes every stream in scope.
func (r Repo) DeleteScope(ctx context.Context, scope string) ([]domain.SweptStream, error) {
	return r.deleteReturning(ctx, `DELETE FROM streams WHERE scope=?`, scope)
}

func (r Repo) deleteReturning(ctx context.Context, stmt string, args ...any) ([]domain.SweptStream, error) {
	rows, err := r.DB.QueryContext(ctx, stmt+` RETURNING public_id,scope,owner_id,subject`, args...)
	if err != nil {
		return nil, fmt.Errorf("delete streams: %w", err)
	}
	defer rows.Close()
	res := []domain.SweptStream{}
	for rows.Next() {
		var s domain.SweptStream
		if err := rows.Scan(&s.PublicID, &s.Scope, &s.OwnerID, &s.Subject); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountStreams(ctx context.Context, scope string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM streams WHERE scope=?`, scope).Scan(&n)
	return n, err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableTimePtr(v *time.Time) any {
	if v == nil {
		return nil
	}
	return FormatTime(*v)
}
