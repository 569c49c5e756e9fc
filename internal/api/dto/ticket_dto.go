package dto

import (
	"time"

	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	Category    string                `json:"category"`
	Tags        []string              `json:"tags"`
}

// Draft converts the request to a ticket draft.
func (r CreateTicketRequest) Draft() domain.TicketDraft {
	return domain.TicketDraft{
		Title:       r.Title,
		Description: r.Description,
		Priority:    r.Priority,
		Category:    r.Category,
		Tags:        r.Tags,
	}
}

// UpdateTicketRequest is a partial update. Version, when present, must match
// the stored version.
type UpdateTicketRequest struct {
	Status   *domain.TicketStatus   `json:"status"`
	Assignee *string                `json:"assignee"`
	Priority *domain.TicketPriority `json:"priority"`
	Version  *int64                 `json:"version"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"isInternal"`
}

// CommentResponse represents a thread entry.
type CommentResponse struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketResponse provides full ticket info.
type TicketResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    string                `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Status      domain.TicketStatus   `json:"status"`
	RequesterID string                `json:"requester_id"`
	AssigneeID  *string               `json:"assignee_id"`
	Tags        []string              `json:"tags"`
	Comments    []CommentResponse     `json:"comments"`
	SLADeadline time.Time             `json:"sla_deadline"`
	SLABreached bool                  `json:"sla_breached"`
	ResolvedAt  *time.Time            `json:"resolved_at"`
	Version     int64                 `json:"version"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketEnvelope wraps a ticket with an optional message.
type TicketEnvelope struct {
	Message string         `json:"message,omitempty"`
	Ticket  TicketResponse `json:"ticket"`
}

// CommentEnvelope wraps a created comment.
type CommentEnvelope struct {
	Message string          `json:"message"`
	Comment CommentResponse `json:"comment"`
}

// TicketListResponse is one page of tickets.
type TicketListResponse struct {
	Items      []TicketResponse `json:"items"`
	Total      int              `json:"total"`
	NextOffset *int             `json:"next_offset"`
	HasMore    bool             `json:"has_more"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	comments := make([]CommentResponse, 0, len(t.Comments))
	for _, c := range t.Comments {
		comments = append(comments, NewCommentResponse(c))
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return TicketResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		Priority:    t.Priority,
		Status:      t.Status,
		RequesterID: t.RequesterID,
		AssigneeID:  t.AssigneeID,
		Tags:        tags,
		Comments:    comments,
		SLADeadline: t.SLADeadline,
		SLABreached: t.SLABreached,
		ResolvedAt:  t.ResolvedAt,
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewCommentResponse maps a domain comment.
func NewCommentResponse(c domain.Comment) CommentResponse {
	return CommentResponse{
		ID:         c.ID,
		AuthorID:   c.AuthorID,
		Content:    c.Content,
		IsInternal: c.IsInternal,
		CreatedAt:  c.CreatedAt,
	}
}
