// Package notify delivers stream notifications to the chat platform.
//
// Delivery is best-effort: a Sink reports failures per call and callers log
// them; nothing here retries.
package notify

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDestinationNotFound means the scope has no destination with the
	// requested name.
	ErrDestinationNotFound = errors.New("destination not found")
	// ErrDirectUnsupported is returned by sinks that cannot reach users
	// directly.
	ErrDirectUnsupported = errors.New("direct messages not supported")
)

const (
	ColorDefault = 0x9B59B6
	ColorWarning = 0xF39C12
	ColorError   = 0xE74C3C
	ColorSuccess = 0x2ECC71
)

// Message is a short templated payload.
type Message struct {
	Title string
	Body  string
	Color int
	// Mentions are user ids to ping alongside the message.
	Mentions  []string
	Footer    string
	Timestamp time.Time
}

// Sink is the chat-platform messaging capability.
type Sink interface {
	// SendToDestination posts to a named destination inside scope. An empty
	// destination means the scope's default channel.
	SendToDestination(ctx context.Context, scope, destination string, msg Message) error
	SendDirect(ctx context.Context, userID string, msg Message) error
}
