package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"streamline/internal/config"
	"streamline/internal/domain"
	"streamline/internal/events"
	"streamline/internal/notify"
	"streamline/internal/repo"
)

// Notifier is the delivery side the engine needs. Broadcast and Direct are
// detached; the Send variants block and report errors.
type Notifier interface {
	Broadcast(scope, destination string, msg notify.Message, fields ...zap.Field)
	Direct(userID string, msg notify.Message, fields ...zap.Field)
	SendToDestination(ctx context.Context, scope, destination string, msg notify.Message) error
	SendDirect(ctx context.Context, userID string, msg notify.Message) error
}

type Engine struct {
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Notifier Notifier
	Log      *zap.Logger
	Now      func() time.Time
	// NewPublicID generates public ids; tests replace it to force collisions.
	NewPublicID func() (string, error)

	guard    *InflightGuard
	validate *validator.Validate
}

func New(db *sql.DB, cfg *config.Config, notifier Notifier, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		Repo:        r,
		Events:      events.Writer{Repo: r},
		Config:      cfg,
		Notifier:    notifier,
		Log:         log,
		Now:         time.Now,
		NewPublicID: NewPublicID,
		guard:       NewInflightGuard(cfg.Guard.InflightTTL),
		validate:    newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// CreateInput carries a create request. OwnerID defaults to CallerID.
type CreateInput struct {
	Subject   string `json:"subject" validate:"required"`
	OwnerID   string `json:"owner_id"`
	CallerID  string `json:"caller_id" validate:"required"`
	SponsorID string `json:"sponsor_id"`
	DueInDays int    `json:"due_in_days" validate:"required,gt=0"`
	Scope     string `json:"scope" validate:"required"`
	Category  string `json:"category"`
	Link      string `json:"link" validate:"omitempty,url"`
}

func (e Engine) validateCreate(in *CreateInput) error {
	in.Subject = strings.TrimSpace(in.Subject)
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.Category = strings.TrimSpace(in.Category)
	in.Link = strings.TrimSpace(in.Link)
	if in.OwnerID == "" {
		in.OwnerID = in.CallerID
	}
	v := e.validate
	if v == nil {
		v = newValidator()
	}
	if err := v.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return ValidationError{Field: verrs[0].Field(), Reason: describeTag(verrs[0].Tag())}
		}
		return err
	}
	if e.Config == nil {
		return nil
	}
	if n := e.Config.Streams.MaxSubjectLength; n > 0 && len([]rune(in.Subject)) > n {
		return ValidationError{Field: "subject", Reason: fmt.Sprintf("must be at most %d characters", n)}
	}
	if !e.Config.AllowsDueDays(in.DueInDays) {
		return ValidationError{Field: "due_in_days", Reason: fmt.Sprintf("must be one of %v", e.Config.Streams.DueDays)}
	}
	if in.Category != "" && !e.Config.AllowsCategory(in.Category) {
		return ValidationError{Field: "category", Reason: fmt.Sprintf("must be one of %v", e.Config.Streams.Categories)}
	}
	return nil
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "gt":
		return "must be positive"
	case "url":
		return "must be a URL"
	default:
		return "is invalid (" + tag + ")"
	}
}

// Create registers a new active stream after the in-flight, duplicate and
// cooldown guards pass. Notifications are detached and never fail the call.
func (e Engine) Create(ctx context.Context, in CreateInput) (domain.Stream, error) {
	if err := e.validateCreate(&in); err != nil {
		return domain.Stream{}, err
	}
	now := e.now()
	guard := e.guard
	if guard == nil {
		guard = NewInflightGuard(0)
	}
	guard.Evict(now)
	release, ok := guard.Acquire(guard.Key(in.CallerID, in.Scope, in.Subject, now), now)
	if !ok {
		return domain.Stream{}, DuplicateSubmissionError{Reason: ReasonInFlight}
	}
	defer release()

	if err := e.checkRecent(ctx, in, now); err != nil {
		return domain.Stream{}, err
	}

	s := domain.Stream{
		OwnerID:   in.OwnerID,
		SponsorID: optionalString(in.SponsorID),
		Subject:   in.Subject,
		Category:  optionalString(in.Category),
		Link:      optionalString(in.Link),
		DueAt:     now.AddDate(0, 0, in.DueInDays),
		Status:    domain.StatusActive,
		Scope:     in.Scope,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.insertWithFreshID(ctx, &s); err != nil {
		return domain.Stream{}, err
	}

	e.audit(ctx, events.StreamCreated, s.Scope, s.PublicID, in.CallerID, events.EventPayload{
		"owner_id":    s.OwnerID,
		"subject":     s.Subject,
		"due_at":      repo.FormatTime(s.DueAt),
		"due_in_days": in.DueInDays,
	})
	e.logger().Info("stream created",
		zap.String("scope", s.Scope),
		zap.String("public_id", s.PublicID),
		zap.String("owner", s.OwnerID),
		zap.Time("due_at", s.DueAt),
	)
	if e.Notifier != nil {
		fields := []zap.Field{zap.String("public_id", s.PublicID)}
		e.Notifier.Broadcast(s.Scope, e.broadcastDestination(), notify.StreamRegistered(s, in.DueInDays), fields...)
		e.Notifier.Direct(s.OwnerID, notify.StreamConfirmation(s), fields...)
	}
	return s, nil
}

func (e Engine) checkRecent(ctx context.Context, in CreateInput, now time.Time) error {
	var dupWindow, cooldown time.Duration
	if e.Config != nil {
		dupWindow = e.Config.Guard.DuplicateWindow
		cooldown = e.Config.Guard.OwnerCooldown
	}
	if dupWindow > 0 {
		prev, err := e.Repo.LatestActiveSince(ctx, in.Scope, in.OwnerID, in.Subject, now.Add(-dupWindow))
		if err == nil {
			return DuplicateSubmissionError{Reason: ReasonDuplicateSubject, ConflictPublicID: prev.PublicID, Age: now.Sub(prev.CreatedAt)}
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
	}
	if cooldown > 0 {
		prev, err := e.Repo.LatestActiveSince(ctx, in.Scope, in.OwnerID, "", now.Add(-cooldown))
		if err == nil {
			return DuplicateSubmissionError{Reason: ReasonOwnerCooldown, ConflictPublicID: prev.PublicID, Age: now.Sub(prev.CreatedAt)}
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
	}
	return nil
}

// insertWithFreshID stores s, regenerating the public id once on collision.
func (e Engine) insertWithFreshID(ctx context.Context, s *domain.Stream) error {
	gen := e.NewPublicID
	if gen == nil {
		gen = NewPublicID
	}
	for attempt := 0; attempt < 2; attempt++ {
		id, err := gen()
		if err != nil {
			return err
		}
		s.PublicID = id
		rowID, err := e.Repo.InsertStream(ctx, *s)
		if err == nil {
			s.ID = rowID
			return nil
		}
		if !errors.Is(err, repo.ErrConflict) {
			return err
		}
		e.logger().Warn("public id collision", zap.String("public_id", id), zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("insert stream: %w", ErrStoreConflict)
}

// CompleteInput carries a completion request. Elevated is the host's answer
// to whether the caller holds the moderation capability in Scope.
type CompleteInput struct {
	Scope    string
	PublicID string
	CallerID string
	Elevated bool
}

// Complete marks an active stream completed. Only the owner or an elevated
// caller may do so. The row stays until the retention sweep removes it,
// unless the retention window is zero.
func (e Engine) Complete(ctx context.Context, in CompleteInput) (domain.Stream, error) {
	id := NormalizePublicID(in.PublicID)
	if in.Scope == "" {
		return domain.Stream{}, ValidationError{Field: "scope", Reason: "is required"}
	}
	if !ValidPublicID(id) {
		return domain.Stream{}, ValidationError{Field: "public_id", Reason: "must be 8 to 10 characters from A-Z and 0-9"}
	}
	s, err := e.Repo.GetStream(ctx, in.Scope, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Stream{}, fmt.Errorf("stream %s: %w", id, ErrNotFound)
		}
		return domain.Stream{}, err
	}
	if s.Status != domain.StatusActive {
		return domain.Stream{}, fmt.Errorf("active stream %s: %w", id, ErrNotFound)
	}
	if in.CallerID != s.OwnerID && !in.Elevated {
		return domain.Stream{}, ForbiddenError{CallerID: in.CallerID, Action: "complete stream " + id}
	}
	now := e.now()
	if err := e.Repo.CompleteStream(ctx, s.ID, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Stream{}, fmt.Errorf("active stream %s: %w", id, ErrNotFound)
		}
		return domain.Stream{}, err
	}
	s.Status = domain.StatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now

	e.audit(ctx, events.StreamCompleted, s.Scope, s.PublicID, in.CallerID, events.EventPayload{
		"owner_id": s.OwnerID,
		"elevated": in.Elevated && in.CallerID != s.OwnerID,
	})
	e.logger().Info("stream completed",
		zap.String("scope", s.Scope),
		zap.String("public_id", s.PublicID),
		zap.String("by", in.CallerID),
	)
	if e.Notifier != nil {
		e.Notifier.Broadcast(s.Scope, e.broadcastDestination(), notify.StreamCompleted(s, in.CallerID), zap.String("public_id", s.PublicID))
	}
	if e.Config != nil && e.Config.Retention.Window == 0 && e.Config.Retention.Basis == config.BasisCompleted {
		if _, err := e.Repo.DeleteStream(ctx, s.ID); err != nil {
			e.logger().Warn("immediate removal failed", zap.String("public_id", s.PublicID), zap.Error(err))
		}
	}
	return s, nil
}

// Get returns one stream of scope with its derived fields. Completed
// streams that have not been swept yet are included.
func (e Engine) Get(ctx context.Context, scope, publicID string) (domain.StreamView, error) {
	id := NormalizePublicID(publicID)
	s, err := e.Repo.GetStream(ctx, scope, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.StreamView{}, fmt.Errorf("stream %s: %w", id, ErrNotFound)
		}
		return domain.StreamView{}, err
	}
	return View(s, e.now()), nil
}

type ListFilter struct {
	Scope   string
	Status  domain.Status
	OwnerID string
	// OrderByDue sorts by due date instead of insertion order.
	OrderByDue bool
	Limit      int
}

// List is a pure read scoped by Scope.
func (e Engine) List(ctx context.Context, f ListFilter) ([]domain.StreamView, error) {
	if f.Scope == "" {
		return nil, ValidationError{Field: "scope", Reason: "is required"}
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, ValidationError{Field: "status", Reason: "must be active or completed"}
	}
	if f.Limit < 0 {
		return nil, ValidationError{Field: "limit", Reason: "must not be negative"}
	}
	order := repo.OrderCreated
	if f.OrderByDue {
		order = repo.OrderDue
	}
	streams, err := e.Repo.ListStreams(ctx, repo.StreamFilters{
		Scope:   f.Scope,
		Status:  f.Status,
		OwnerID: f.OwnerID,
		Order:   order,
		Limit:   f.Limit,
	})
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]domain.StreamView, 0, len(streams))
	for _, s := range streams {
		out = append(out, View(s, now))
	}
	return out, nil
}

// DueBetween lists active streams in every scope with start <= dueAt < end.
func (e Engine) DueBetween(ctx context.Context, start, end time.Time) ([]domain.Stream, error) {
	if !end.After(start) {
		return nil, ValidationError{Field: "end", Reason: "must be after start"}
	}
	return e.Repo.ListActiveDueBetween(ctx, start, end)
}

// ListEvents returns recent audit events of scope, newest first.
func (e Engine) ListEvents(ctx context.Context, scope, evtType string, limit int) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, scope, evtType, limit)
}

// InFlight reports how many creates currently hold an in-flight marker.
func (e Engine) InFlight() int {
	if e.guard == nil {
		return 0
	}
	return e.guard.Len()
}

// EvictGuard drops expired in-flight markers.
func (e Engine) EvictGuard() int {
	if e.guard == nil {
		return 0
	}
	return e.guard.Evict(e.now())
}

func (e Engine) broadcastDestination() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Notify.BroadcastDestination
}

// audit appends an event after the mutation has committed. A failure is
// logged and does not undo the mutation.
func (e Engine) audit(ctx context.Context, evtType, scope, publicID, actorID string, payload events.EventPayload) {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	if err := w.Append(ctx, evtType, scope, publicID, actorID, payload); err != nil {
		e.logger().Warn("audit append failed", zap.String("type", evtType), zap.String("public_id", publicID), zap.Error(err))
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
