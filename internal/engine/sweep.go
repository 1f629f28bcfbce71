package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"streamline/internal/config"
	"streamline/internal/domain"
	"streamline/internal/events"
)

type SweepOptions struct {
	// Scope limits the sweep to one scope; empty sweeps every scope.
	Scope string
	// Window overrides the configured retention window when non-nil.
	Window *time.Duration
	// Basis overrides the configured basis ("completed" or "created").
	Basis string
	// ActorID is recorded on the audit event; empty means the scheduler.
	ActorID string
}

type SweepResult struct {
	Cutoff  time.Time            `json:"cutoff"`
	Basis   string               `json:"basis"`
	Count   int                  `json:"count"`
	Removed []domain.SweptStream `json:"removed"`
}

// RetentionSweep hard-deletes streams older than the retention window in a
// single statement. Running it again with no new data removes nothing.
func (e Engine) RetentionSweep(ctx context.Context, opts SweepOptions) (SweepResult, error) {
	window := 7 * day
	basis := config.BasisCompleted
	if e.Config != nil {
		window = e.Config.Retention.Window
		basis = e.Config.Retention.Basis
	}
	if opts.Window != nil {
		window = *opts.Window
	}
	if opts.Basis != "" {
		basis = opts.Basis
	}
	if window < 0 {
		return SweepResult{}, ValidationError{Field: "window", Reason: "must not be negative"}
	}
	switch basis {
	case config.BasisCompleted, config.BasisCreated:
	default:
		return SweepResult{}, ValidationError{Field: "basis", Reason: "must be completed or created"}
	}
	cutoff := e.now().Add(-window)
	removed, err := e.Repo.DeleteOlderThan(ctx, basis, opts.Scope, cutoff)
	if err != nil {
		return SweepResult{}, err
	}
	res := SweepResult{Cutoff: cutoff, Basis: basis, Count: len(removed), Removed: removed}
	for _, s := range removed {
		e.audit(ctx, events.StreamSwept, s.Scope, s.PublicID, opts.ActorID, events.EventPayload{
			"owner_id": s.OwnerID,
			"basis":    basis,
			"cutoff":   cutoff.Format(time.RFC3339),
		})
	}
	e.logger().Info("retention sweep",
		zap.String("scope", opts.Scope),
		zap.String("basis", basis),
		zap.Time("cutoff", cutoff),
		zap.Int("removed", res.Count),
	)
	return res, nil
}

type WipeInput struct {
	Scope    string
	CallerID string
	Elevated bool
}

// Wipe hard-deletes every stream of a scope regardless of status. It needs
// the elevated capability.
func (e Engine) Wipe(ctx context.Context, in WipeInput) ([]domain.SweptStream, error) {
	if in.Scope == "" {
		return nil, ValidationError{Field: "scope", Reason: "is required"}
	}
	if !in.Elevated {
		return nil, ForbiddenError{CallerID: in.CallerID, Action: "wipe streams"}
	}
	removed, err := e.Repo.DeleteScope(ctx, in.Scope)
	if err != nil {
		return nil, err
	}
	e.audit(ctx, events.StreamWiped, in.Scope, "", in.CallerID, events.EventPayload{"count": len(removed)})
	e.logger().Warn("streams wiped", zap.String("scope", in.Scope), zap.String("by", in.CallerID), zap.Int("removed", len(removed)))
	return removed, nil
}
