package domain

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusCompleted
}

// Badge is the presentational label derived from a stream's due date. It is
// never stored.
type Badge string

const (
	BadgeActive    Badge = "active"
	BadgeDueSoon   Badge = "dueSoon"
	BadgeOverdue   Badge = "overdue"
	BadgeCompleted Badge = "completed"
)

// Stream is a deadline-tracked work item owned by a guild member.
type Stream struct {
	ID          int64      `json:"id"`
	PublicID    string     `json:"public_id"`
	OwnerID     string     `json:"owner_id"`
	SponsorID   *string    `json:"sponsor_id,omitempty"`
	Subject     string     `json:"subject"`
	Category    *string    `json:"category,omitempty"`
	Link        *string    `json:"link,omitempty"`
	DueAt       time.Time  `json:"due_at" format:"date-time"`
	Status      Status     `json:"status" enum:"active,completed"`
	Scope       string     `json:"scope"`
	CreatedAt   time.Time  `json:"created_at" format:"date-time"`
	CompletedAt *time.Time `json:"completed_at,omitempty" format:"date-time"`
	UpdatedAt   time.Time  `json:"updated_at" format:"date-time"`
}

// StreamView is a stream plus the values derived at read time.
type StreamView struct {
	Stream
	DaysRemaining int   `json:"days_remaining"`
	Badge         Badge `json:"badge" enum:"active,dueSoon,overdue,completed"`
}

// SweptStream identifies a row removed by the retention sweep or a wipe.
type SweptStream struct {
	PublicID string `json:"public_id"`
	Scope    string `json:"scope"`
	OwnerID  string `json:"owner_id"`
	Subject  string `json:"subject"`
}

type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	Scope    string `json:"scope,omitempty"`
	PublicID string `json:"public_id,omitempty"`
	ActorID  string `json:"actor_id"`
	Payload  string `json:"payload_json"`
}
