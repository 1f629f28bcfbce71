package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"streamline/internal/domain"
)

func TestStreamRegisteredMentionsSponsor(t *testing.T) {
	sponsor := "U2"
	s := domain.Stream{PublicID: "AB12CD34", OwnerID: "U1", SponsorID: &sponsor, Subject: "Gown A",
		DueAt: time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)}

	msg := StreamRegistered(s, 3)
	assert.Equal(t, []string{"U1", "U2"}, msg.Mentions)
	assert.Contains(t, msg.Body, "`AB12CD34`")
	assert.Contains(t, msg.Body, "<t:1741089600:F>")
	assert.Contains(t, msg.Body, "**Days Remaining:** 3")
	assert.Equal(t, Motto("AB12CD34"), msg.Footer)
}

func TestReminderBatchDedupesMentions(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	streams := []domain.Stream{
		{PublicID: "A1", OwnerID: "U1", Subject: "one"},
		{PublicID: "A2", OwnerID: "U1", Subject: "two"},
		{PublicID: "A3", OwnerID: "U3", Subject: "three"},
	}
	msg := ReminderBatch("G1", streams, at)
	assert.Equal(t, []string{"U1", "U3"}, msg.Mentions)
	assert.Contains(t, msg.Body, "`A2` - two")
	assert.Equal(t, ColorWarning, msg.Color)
}
