package server

import (
	"encoding/json"
	"time"

	"streamline/internal/domain"
)

// Request payloads

type CreateStreamRequest struct {
	Subject   string  `json:"subject" minLength:"1"`
	OwnerID   *string `json:"owner_id,omitempty"`
	SponsorID *string `json:"sponsor_id,omitempty"`
	// DueInDays falls back to streams.default_due_days.
	DueInDays *int    `json:"due_in_days,omitempty"`
	Category  *string `json:"category,omitempty"`
	Link      *string `json:"link,omitempty"`
}

type SweepRequest struct {
	Scope       string `json:"scope,omitempty"`
	WindowHours *int   `json:"window_hours,omitempty" minimum:"0"`
	Basis       string `json:"basis,omitempty" enum:"completed,created"`
}

// Responses

type StreamResponse struct {
	PublicID      string     `json:"public_id"`
	OwnerID       string     `json:"owner_id"`
	SponsorID     *string    `json:"sponsor_id,omitempty"`
	Subject       string     `json:"subject"`
	Category      *string    `json:"category,omitempty"`
	Link          *string    `json:"link,omitempty"`
	Scope         string     `json:"guild_id"`
	Status        string     `json:"status" enum:"active,completed"`
	DueAt         time.Time  `json:"due_at"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DaysRemaining int        `json:"days_remaining"`
	Badge         string     `json:"badge" enum:"active,dueSoon,overdue,completed"`
}

type StreamListResponse struct {
	Items []StreamResponse `json:"items"`
}

type RemovedResponse struct {
	Count   int                  `json:"count"`
	Removed []domain.SweptStream `json:"removed"`
}

type EventResponse struct {
	ID       int64           `json:"id"`
	TS       string          `json:"ts"`
	Type     string          `json:"type"`
	Scope    string          `json:"guild_id,omitempty"`
	PublicID string          `json:"public_id,omitempty"`
	ActorID  string          `json:"actor_id"`
	Payload  json.RawMessage `json:"payload"`
}

type EventListResponse struct {
	Items []EventResponse `json:"items"`
}

func streamResponse(v domain.StreamView) StreamResponse {
	return StreamResponse{
		PublicID:      v.PublicID,
		OwnerID:       v.OwnerID,
		SponsorID:     v.SponsorID,
		Subject:       v.Subject,
		Category:      v.Category,
		Link:          v.Link,
		Scope:         v.Scope,
		Status:        string(v.Status),
		DueAt:         v.DueAt,
		CreatedAt:     v.CreatedAt,
		CompletedAt:   v.CompletedAt,
		UpdatedAt:     v.UpdatedAt,
		DaysRemaining: v.DaysRemaining,
		Badge:         string(v.Badge),
	}
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:       e.ID,
		TS:       e.TS,
		Type:     e.Type,
		Scope:    e.Scope,
		PublicID: e.PublicID,
		ActorID:  e.ActorID,
		Payload:  payload,
	}
}

func strValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
