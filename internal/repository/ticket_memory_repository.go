package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
	"github.com/helpdesk-labs/helpdesk-service/internal/sla"
)

// MemoryTicketRepository keeps tickets in process memory. All mutations
// happen under a single write lock, which makes the version compare and
// increment atomic.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]*domain.Ticket
	order   []string
}

// NewMemoryTicketRepository builds an empty in-memory store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	_ = ctx

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Tags == nil {
		ticket.Tags = []string{}
	}
	if ticket.Comments == nil {
		ticket.Comments = []domain.Comment{}
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	ticket.Version = 0

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = ticket.Clone()
	r.order = append(r.order, ticket.ID)
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) Update(ctx context.Context, id string, expectedVersion *int64, patch TicketPatch) (*domain.Ticket, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	if expectedVersion != nil && *expectedVersion != ticket.Version {
		return nil, ErrVersionConflict
	}

	if patch.Status != nil {
		ticket.Status = *patch.Status
	}
	if patch.AssigneeID != nil {
		if *patch.AssigneeID == "" {
			ticket.AssigneeID = nil
		} else {
			assignee := *patch.AssigneeID
			ticket.AssigneeID = &assignee
		}
	}
	if patch.Priority != nil {
		ticket.Priority = *patch.Priority
	}
	if patch.SLADeadline != nil {
		ticket.SLADeadline = *patch.SLADeadline
	}
	if patch.SLABreached != nil {
		ticket.SLABreached = *patch.SLABreached
	}
	if patch.ResolvedAt != nil && ticket.ResolvedAt == nil {
		resolved := *patch.ResolvedAt
		ticket.ResolvedAt = &resolved
	}
	ticket.Version++
	ticket.UpdatedAt = patch.UpdatedAt
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = time.Now().UTC()
	}
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) AppendComment(ctx context.Context, id string, comment domain.Comment) (*domain.Ticket, error) {
	_ = ctx

	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	ticket.Comments = append(ticket.Comments, comment)
	ticket.Version++
	ticket.UpdatedAt = comment.CreatedAt
	return ticket.Clone(), nil
}

func (r *MemoryTicketRepository) MarkSLABreached(ctx context.Context, id string, now time.Time) (*domain.Ticket, bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, false, ErrTicketNotFound
	}
	if ticket.SLABreached || ticket.Status.Terminal() || !ticket.SLADeadline.Before(now) {
		return ticket.Clone(), false, nil
	}
	ticket.SLABreached = true
	return ticket.Clone(), true, nil
}

func (r *MemoryTicketRepository) Query(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	_ = ctx

	limit, offset := NormalizePage(filter.Limit, filter.Offset)
	search := ""
	if filter.SearchTerm != nil {
		search = strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	items := []domain.Ticket{}
	total := 0
	for i := len(r.order) - 1; i >= 0; i-- {
		ticket := r.tickets[r.order[i]]
		if !matches(ticket, filter, search) {
			continue
		}
		if total >= offset && len(items) < limit {
			items = append(items, *ticket.Clone())
		}
		total++
	}
	return items, total, nil
}

func matches(ticket *domain.Ticket, filter TicketFilter, search string) bool {
	if filter.Status != nil && ticket.Status != *filter.Status {
		return false
	}
	if filter.Priority != nil && ticket.Priority != *filter.Priority {
		return false
	}
	if filter.Category != nil && ticket.Category != *filter.Category {
		return false
	}
	if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
		return false
	}
	if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
		return false
	}
	if filter.SLABreached != nil {
		breached := ticket.SLABreached || sla.IsBreached(ticket, filter.Now)
		if breached != *filter.SLABreached {
			return false
		}
	}
	if search != "" && !containsText(ticket, search, filter.SearchInternal) {
		return false
	}
	return true
}

func containsText(ticket *domain.Ticket, needle string, includeInternal bool) bool {
	if strings.Contains(strings.ToLower(ticket.Title), needle) ||
		strings.Contains(strings.ToLower(ticket.Description), needle) {
		return true
	}
	for _, c := range ticket.Comments {
		if c.IsInternal && !includeInternal {
			continue
		}
		if strings.Contains(strings.ToLower(c.Content), needle) {
			return true
		}
	}
	return false
}
