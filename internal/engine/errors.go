package engine

import (
	"errors"
	"fmt"
	"time"

	"streamline/internal/repo"
)

var (
	// ErrNotFound is returned when no active stream matches in the scope.
	ErrNotFound = repo.ErrNotFound
	// ErrStoreConflict means public id generation collided twice in a row.
	ErrStoreConflict = errors.New("public id collision")

	ErrValidation          = errors.New("validation failed")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrForbidden           = errors.New("forbidden")
)

// ValidationError reports bad input. It is raised before the store is read.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

const (
	ReasonInFlight         = "in_flight"
	ReasonDuplicateSubject = "duplicate_subject"
	ReasonOwnerCooldown    = "owner_cooldown"
)

// DuplicateSubmissionError is raised by the create guards. ConflictPublicID
// is empty for the in-flight guard since nothing has been stored yet.
type DuplicateSubmissionError struct {
	Reason           string
	ConflictPublicID string
	Age              time.Duration
}

func (e DuplicateSubmissionError) Error() string {
	switch e.Reason {
	case ReasonInFlight:
		return "an identical request is already being processed"
	case ReasonOwnerCooldown:
		return fmt.Sprintf("stream %s was registered %s ago; wait before registering another", e.ConflictPublicID, e.Age.Round(time.Second))
	default:
		return fmt.Sprintf("stream %s with the same item was registered %s ago", e.ConflictPublicID, e.Age.Round(time.Second))
	}
}

func (e DuplicateSubmissionError) Is(target error) bool {
	return target == ErrDuplicateSubmission
}

// ForbiddenError indicates the caller neither owns the stream nor holds the
// elevated moderation capability.
type ForbiddenError struct {
	CallerID string
	Action   string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s may not %s", e.CallerID, e.Action)
}

func (e ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}
