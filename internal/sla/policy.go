package sla

import (
	"time"

	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
)

var windows = map[domain.TicketPriority]time.Duration{
	domain.TicketPriorityLow:    72 * time.Hour,
	domain.TicketPriorityMedium: 48 * time.Hour,
	domain.TicketPriorityHigh:   24 * time.Hour,
	domain.TicketPriorityUrgent: 4 * time.Hour,
}

// Window returns the resolution window for a priority.
func Window(priority domain.TicketPriority) (time.Duration, bool) {
	w, ok := windows[priority]
	return w, ok
}

// Deadline returns the SLA deadline for a ticket of the given priority
// raised at now. Unknown priorities fall back to the medium window.
func Deadline(priority domain.TicketPriority, now time.Time) time.Time {
	w, ok := windows[priority]
	if !ok {
		w = windows[domain.TicketPriorityMedium]
	}
	return now.Add(w)
}

// IsBreached reports whether the ticket is past its deadline while still
// active. Resolved and closed tickets are never in breach.
func IsBreached(ticket *domain.Ticket, now time.Time) bool {
	if ticket == nil || ticket.SLADeadline.IsZero() {
		return false
	}
	return now.After(ticket.SLADeadline) && !ticket.Status.Terminal()
}

// NeedsWriteBack reports whether a read at now should persist the breach flag.
func NeedsWriteBack(ticket *domain.Ticket, now time.Time) bool {
	return ticket != nil && !ticket.SLABreached && IsBreached(ticket, now)
}
