package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestDeadlineByPriority(t *testing.T) {
	cases := map[domain.TicketPriority]time.Duration{
		domain.TicketPriorityLow:    72 * time.Hour,
		domain.TicketPriorityMedium: 48 * time.Hour,
		domain.TicketPriorityHigh:   24 * time.Hour,
		domain.TicketPriorityUrgent: 4 * time.Hour,
	}
	for priority, window := range cases {
		assert.Equal(t, t0.Add(window), Deadline(priority, t0), string(priority))
	}
}

func TestDeadlineUnknownPriorityUsesMedium(t *testing.T) {
	assert.Equal(t, t0.Add(48*time.Hour), Deadline("whenever", t0))
	_, ok := Window("whenever")
	assert.False(t, ok)
}

func TestIsBreached(t *testing.T) {
	ticket := &domain.Ticket{
		Status:      domain.TicketStatusOpen,
		SLADeadline: Deadline(domain.TicketPriorityUrgent, t0),
	}

	assert.False(t, IsBreached(ticket, t0.Add(4*time.Hour)), "deadline itself is not a breach")
	assert.True(t, IsBreached(ticket, t0.Add(5*time.Hour)))

	ticket.Status = domain.TicketStatusInProgress
	assert.True(t, IsBreached(ticket, t0.Add(5*time.Hour)))

	for _, status := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed} {
		ticket.Status = status
		assert.False(t, IsBreached(ticket, t0.Add(500*time.Hour)), string(status))
	}
}

func TestIsBreachedWithoutDeadline(t *testing.T) {
	assert.False(t, IsBreached(&domain.Ticket{Status: domain.TicketStatusOpen}, t0))
	assert.False(t, IsBreached(nil, t0))
}

func TestNeedsWriteBack(t *testing.T) {
	ticket := &domain.Ticket{
		Status:      domain.TicketStatusOpen,
		SLADeadline: t0,
	}
	assert.True(t, NeedsWriteBack(ticket, t0.Add(time.Minute)))

	ticket.SLABreached = true
	assert.False(t, NeedsWriteBack(ticket, t0.Add(time.Minute)), "already flagged")
}
