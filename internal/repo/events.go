package repo

import (
	"context"

	"streamline/internal/domain"
)

// LatestEvents returns the newest audit events, newest first. An empty scope
// lists every scope.
func (r Repo) LatestEvents(ctx context.Context, scope, evtType string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,type,COALESCE(scope,''),COALESCE(public_id,''),actor_id,payload_json FROM stream_events WHERE 1=1`
	var args []any
	if scope != "" {
		query += ` AND scope=?`
		args = append(args, scope)
	}
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Scope, &e.PublicID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertEvent(ctx context.Context, e domain.Event) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO stream_events(ts,type,scope,public_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		e.TS, e.Type, nullable(e.Scope), nullable(e.PublicID), e.ActorID, e.Payload)
	return err
}
