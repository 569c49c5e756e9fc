package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is one of the enumerated statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// Terminal reports whether the ticket no longer counts against its SLA.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is one of the enumerated priorities.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. Comments are owned by the
// ticket and kept in insertion order.
type Ticket struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Priority    TicketPriority `json:"priority"`
	Status      TicketStatus   `json:"status"`
	RequesterID string         `json:"requester_id"`
	AssigneeID  *string        `json:"assignee_id,omitempty"`
	Tags        []string       `json:"tags"`
	Comments    []Comment      `json:"comments"`
	SLADeadline time.Time      `json:"sla_deadline"`
	SLABreached bool           `json:"sla_breached"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	Version     int64          `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	if t.AssigneeID != nil {
		assignee := *t.AssigneeID
		out.AssigneeID = &assignee
	}
	if t.ResolvedAt != nil {
		resolved := *t.ResolvedAt
		out.ResolvedAt = &resolved
	}
	out.Tags = append(make([]string, 0, len(t.Tags)), t.Tags...)
	out.Comments = append(make([]Comment, 0, len(t.Comments)), t.Comments...)
	return &out
}

// TicketDraft is the validated input for ticket creation.
type TicketDraft struct {
	Title       string
	Description string
	Priority    TicketPriority
	Category    string
	Tags        []string
}
