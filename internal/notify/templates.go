package notify

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"streamline/internal/domain"
)

var mottos = []string{
	"Order transforms creativity into legacy.",
	"Every completion adds to the constellation.",
	"Accountability refines elegance.",
	"Completion marks the measure of discipline.",
	"Order fosters reliability.",
	"Structure reveals beauty in purpose.",
	"Discipline creates lasting artistry.",
}

// Motto picks a footer line. The same seed always yields the same motto.
func Motto(seed string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return mottos[int(h.Sum32()%uint32(len(mottos)))]
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func stamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:F>", t.Unix())
}

func itemLine(s domain.Stream) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Stream ID:** `%s`\n**Item:** %s\n", s.PublicID, s.Subject)
	if s.Category != nil {
		fmt.Fprintf(&b, "**Category:** %s\n", *s.Category)
	}
	if s.Link != nil {
		fmt.Fprintf(&b, "**Link:** %s\n", *s.Link)
	}
	fmt.Fprintf(&b, "**Due:** %s", stamp(s.DueAt))
	return b.String()
}

// StreamRegistered is the broadcast sent to the scope when a stream is created.
func StreamRegistered(s domain.Stream, days int) Message {
	mentions := []string{s.OwnerID}
	body := fmt.Sprintf("%s, a new stream has been registered:\n\n%s\n**Days Remaining:** %d", mention(s.OwnerID), itemLine(s), days)
	if s.SponsorID != nil && *s.SponsorID != "" && *s.SponsorID != s.OwnerID {
		mentions = append(mentions, *s.SponsorID)
		body += fmt.Sprintf("\n\n%s, a new stream awaits your guidance.", mention(*s.SponsorID))
	}
	return Message{
		Title:     "Stream Registered",
		Body:      body + "\n\nYour commitment has been recorded with ceremonial precision.",
		Color:     ColorDefault,
		Mentions:  mentions,
		Footer:    Motto(s.PublicID),
		Timestamp: s.CreatedAt,
	}
}

// StreamConfirmation is the direct acknowledgment sent to the owner.
func StreamConfirmation(s domain.Stream) Message {
	return Message{
		Title:     "Stream Confirmation",
		Body:      "Your stream has been registered:\n\n" + itemLine(s) + "\n\nKeep this ID to complete the stream later.",
		Color:     ColorDefault,
		Footer:    Motto(s.PublicID + "dm"),
		Timestamp: s.CreatedAt,
	}
}

// StreamCompleted announces a completion in the scope.
func StreamCompleted(s domain.Stream, completedBy string) Message {
	ts := s.UpdatedAt
	if s.CompletedAt != nil {
		ts = *s.CompletedAt
	}
	return Message{
		Title: "Stream Completed",
		Body: fmt.Sprintf("**%s** has been marked complete.\n\n**Stream ID:** `%s`\n**Completed by:** %s",
			s.Subject, s.PublicID, mention(completedBy)),
		Color:     ColorSuccess,
		Footer:    Motto(s.PublicID + "done"),
		Timestamp: ts,
	}
}

// ReminderBatch lists every stream of one scope that is due tomorrow.
func ReminderBatch(scope string, streams []domain.Stream, at time.Time) Message {
	var b strings.Builder
	b.WriteString("These streams approach their destined completion:\n")
	seen := map[string]bool{}
	var mentions []string
	for _, s := range streams {
		fmt.Fprintf(&b, "\n%s `%s` - %s (due %s)", mention(s.OwnerID), s.PublicID, s.Subject, stamp(s.DueAt))
		if !seen[s.OwnerID] {
			seen[s.OwnerID] = true
			mentions = append(mentions, s.OwnerID)
		}
	}
	return Message{
		Title:     "Gentle Reminder",
		Body:      b.String(),
		Color:     ColorWarning,
		Mentions:  mentions,
		Footer:    Motto(scope),
		Timestamp: at,
	}
}

// ReminderDirect is the per-owner reminder.
func ReminderDirect(s domain.Stream, at time.Time) Message {
	return Message{
		Title:     "Gentle Reminder",
		Body:      "Your stream approaches its destined completion:\n\n" + itemLine(s) + "\n\nMay you find grace in timely completion.",
		Color:     ColorWarning,
		Footer:    Motto(s.PublicID + "remind"),
		Timestamp: at,
	}
}
