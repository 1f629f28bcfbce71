package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"streamline/internal/domain"
	"streamline/internal/repo"
)

const (
	StreamCreated   = "stream.created"
	StreamCompleted = "stream.completed"
	StreamSwept     = "stream.swept"
	StreamWiped     = "stream.wiped"
)

// Writer appends audit events. Each append is its own statement issued after
// the mutation it describes has committed.
type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, evtType, scope, publicID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	return w.Repo.InsertEvent(ctx, domain.Event{
		TS:       now().UTC().Format(time.RFC3339),
		Type:     evtType,
		Scope:    scope,
		PublicID: publicID,
		ActorID:  actorID,
		Payload:  string(data),
	})
}
