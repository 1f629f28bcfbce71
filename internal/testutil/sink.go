package testutil

import (
	"context"
	"sync"

	"streamline/internal/notify"
)

// Sent is one message captured by RecordingSink.
type Sent struct {
	Scope       string
	Destination string
	// UserID is set for direct messages.
	UserID  string
	Message notify.Message
}

// RecordingSink captures every message and can be told to fail.
//
// Thread-safe: detached sends arrive on their own goroutines.
type RecordingSink struct {
	mu   sync.Mutex
	sent []Sent

	// FailDirect makes SendDirect return DirectErr for the listed users.
	FailDirect map[string]bool
	DirectErr  error
	// DestinationErr, when set, is returned by every SendToDestination.
	DestinationErr error
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{FailDirect: map[string]bool{}}
}

func (r *RecordingSink) SendToDestination(ctx context.Context, scope, destination string, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DestinationErr != nil {
		return r.DestinationErr
	}
	r.sent = append(r.sent, Sent{Scope: scope, Destination: destination, Message: msg})
	return nil
}

func (r *RecordingSink) SendDirect(ctx context.Context, userID string, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDirect[userID] {
		if r.DirectErr != nil {
			return r.DirectErr
		}
		return notify.ErrDirectUnsupported
	}
	r.sent = append(r.sent, Sent{UserID: userID, Message: msg})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (r *RecordingSink) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// Direct returns the direct messages delivered to userID.
func (r *RecordingSink) Direct(userID string) []notify.Message {
	var out []notify.Message
	for _, s := range r.Sent() {
		if s.UserID == userID {
			out = append(out, s.Message)
		}
	}
	return out
}

// Broadcasts returns the destination messages delivered in scope.
func (r *RecordingSink) Broadcasts(scope string) []notify.Message {
	var out []notify.Message
	for _, s := range r.Sent() {
		if s.UserID == "" && s.Scope == scope {
			out = append(out, s.Message)
		}
	}
	return out
}
