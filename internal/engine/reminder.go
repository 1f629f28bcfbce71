package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"streamline/internal/domain"
	"streamline/internal/notify"
)

type ReminderReport struct {
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	Scopes       int       `json:"scopes"`
	Items        int       `json:"items"`
	BatchesSent  int       `json:"batches_sent"`
	DirectSent   int       `json:"direct_sent"`
	DirectFailed int       `json:"direct_failed"`
}

// TomorrowWindow returns [start of tomorrow, start of the day after) in loc,
// expressed in UTC.
func TomorrowWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day()+2, 0, 0, 0, 0, loc)
	return start.UTC(), end.UTC()
}

// RemindDueTomorrow notifies about every active stream due tomorrow. Each
// scope gets one batched notice when its reminder destination exists, and
// every owner gets a direct reminder. Failures are logged per send and never
// stop the loop. No rows are changed.
func (e Engine) RemindDueTomorrow(ctx context.Context) (ReminderReport, error) {
	loc := time.UTC
	destination := ""
	if e.Config != nil {
		l, err := e.Config.Location()
		if err != nil {
			return ReminderReport{}, err
		}
		loc = l
		destination = e.Config.Notify.ReminderDestination
	}
	now := e.now()
	start, end := TomorrowWindow(now, loc)
	report := ReminderReport{WindowStart: start, WindowEnd: end}

	due, err := e.Repo.ListActiveDueBetween(ctx, start, end)
	if err != nil {
		return report, err
	}
	report.Items = len(due)
	if len(due) == 0 || e.Notifier == nil {
		return report, nil
	}

	log := e.logger()
	var scopes []string
	byScope := map[string][]domain.Stream{}
	for _, s := range due {
		if _, ok := byScope[s.Scope]; !ok {
			scopes = append(scopes, s.Scope)
		}
		byScope[s.Scope] = append(byScope[s.Scope], s)
	}
	report.Scopes = len(scopes)

	for _, scope := range scopes {
		items := byScope[scope]
		err := e.Notifier.SendToDestination(ctx, scope, destination, notify.ReminderBatch(scope, items, now))
		switch {
		case err == nil:
			report.BatchesSent++
		case errors.Is(err, notify.ErrDestinationNotFound):
			log.Info("no reminder destination", zap.String("scope", scope), zap.String("destination", destination))
		default:
			log.Warn("reminder batch failed", zap.String("scope", scope), zap.Error(err))
		}
		for _, s := range items {
			if err := e.Notifier.SendDirect(ctx, s.OwnerID, notify.ReminderDirect(s, now)); err != nil {
				report.DirectFailed++
				log.Warn("reminder dm failed",
					zap.String("scope", scope),
					zap.String("public_id", s.PublicID),
					zap.String("owner", s.OwnerID),
					zap.Error(err),
				)
				continue
			}
			report.DirectSent++
		}
	}
	log.Info("reminder scan",
		zap.Time("window_start", start),
		zap.Time("window_end", end),
		zap.Int("items", report.Items),
		zap.Int("direct_failed", report.DirectFailed),
	)
	return report, nil
}
