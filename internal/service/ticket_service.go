package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/helpdesk-service/internal/access"
	"github.com/helpdesk-labs/helpdesk-service/internal/clock"
	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
	"github.com/helpdesk-labs/helpdesk-service/internal/events"
	"github.com/helpdesk-labs/helpdesk-service/internal/idempotency"
	"github.com/helpdesk-labs/helpdesk-service/internal/observability"
	"github.com/helpdesk-labs/helpdesk-service/internal/repository"
	"github.com/helpdesk-labs/helpdesk-service/internal/sla"
	apperrors "github.com/helpdesk-labs/helpdesk-service/pkg/util"
)

// maxUpdateAttempts bounds how often an unversioned update re-reads the
// ticket after losing a race with another writer.
const maxUpdateAttempts = 3

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	guard      *idempotency.Guard
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics
	validate   *validator.Validate
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Guard      *idempotency.Guard
	Dispatcher events.Dispatcher
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// TicketUpdate is a partial update. Nil fields are left untouched; an empty
// AssigneeID unassigns.
type TicketUpdate struct {
	Status     *domain.TicketStatus
	AssigneeID *string
	Priority   *domain.TicketPriority
}

// Empty reports whether no field was supplied.
func (u TicketUpdate) Empty() bool {
	return u.Status == nil && u.AssigneeID == nil && u.Priority == nil
}

// TicketListFilter describes listing parameters accepted from any actor.
type TicketListFilter struct {
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	Category    *string
	AssigneeID  *string
	RequesterID *string
	SLABreached *bool
	SearchTerm  *string
	Limit       int
	Offset      int
}

// TicketPage is one page of a listing.
type TicketPage struct {
	Items      []domain.Ticket
	Total      int
	NextOffset *int
	HasMore    bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	guard := deps.Guard
	if guard == nil {
		guard = idempotency.NewGuard(idempotency.NewMemoryStore(), clk, idempotency.DefaultRetention, logger)
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		guard:      guard,
		dispatcher: deps.Dispatcher,
		clock:      clk,
		logger:     logger,
		metrics:    deps.Metrics,
		validate:   newDraftValidator(),
	}
}

// CreateTicket opens a ticket for actor. A repeated key within the retention
// window returns the first result without creating anything; replayed
// reports whether that happened.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, draft domain.TicketDraft, idempotencyKey string) (*domain.Ticket, bool, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return nil, false, apperrors.NewIdempotencyKeyRequired()
	}

	// Keys are scoped per actor so one client's key never replays another
	// client's ticket.
	scopedKey := actor.ID + ":" + idempotencyKey
	payload, replayed, err := s.guard.Do(ctx, scopedKey, func(ctx context.Context) ([]byte, error) {
		ticket, err := s.createTicket(ctx, actor, draft)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ticket)
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrKeyRequired) {
			return nil, false, apperrors.NewIdempotencyKeyRequired()
		}
		return nil, false, apperrors.MapError(err)
	}

	var ticket domain.Ticket
	if err := json.Unmarshal(payload, &ticket); err != nil {
		return nil, false, apperrors.NewInternalError(fmt.Errorf("decode cached ticket: %w", err))
	}
	if replayed {
		s.metrics.IdempotencyReplayed()
		s.logger.Info("ticket creation replayed",
			zap.String("ticket_id", ticket.ID),
			zap.String("actor_id", actor.ID))
	}
	return &ticket, replayed, nil
}

func (s *TicketService) createTicket(ctx context.Context, actor domain.Actor, draft domain.TicketDraft) (*domain.Ticket, error) {
	draft = normalizeDraft(draft)
	if err := s.validateDraft(draft); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		Title:       draft.Title,
		Description: draft.Description,
		Category:    draft.Category,
		Priority:    draft.Priority,
		Status:      domain.TicketStatusOpen,
		RequesterID: actor.ID,
		Tags:        draft.Tags,
		Comments:    []domain.Comment{},
		SLADeadline: sla.Deadline(draft.Priority, now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Version:  ticket.Version,
		Actor:    eventActor(actor),
		Payload: events.TicketCreatedPayload{
			RequesterID: ticket.RequesterID,
			Category:    ticket.Category,
			Priority:    ticket.Priority,
			Title:       ticket.Title,
			SLADeadline: ticket.SLADeadline,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket for actor. Reading evaluates the SLA and
// persists a newly detected breach before returning.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, s.storeError(ticketID, err)
	}
	if !access.CanRead(actor, ticket) {
		return nil, apperrors.NewAccessDenied("you do not have access to this ticket")
	}
	ticket = s.refreshBreach(ctx, actor, ticket)
	return s.present(actor, ticket), nil
}

// ListTickets returns a page of tickets visible to actor. Requesters only
// ever see their own tickets, whatever filter they send.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) (*TicketPage, error) {
	limit, offset := repository.NormalizePage(filter.Limit, filter.Offset)
	repoFilter := repository.TicketFilter{
		Status:         filter.Status,
		Priority:       filter.Priority,
		Category:       filter.Category,
		AssigneeID:     filter.AssigneeID,
		RequesterID:    filter.RequesterID,
		SLABreached:    filter.SLABreached,
		SearchTerm:     filter.SearchTerm,
		SearchInternal: access.CanViewInternal(actor),
		Now:            s.clock.Now(),
		Limit:          limit,
		Offset:         offset,
	}
	if requesterID, restricted := access.ListScope(actor); restricted {
		repoFilter.RequesterID = &requesterID
	}

	tickets, total, err := s.tickets.Query(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	items := make([]domain.Ticket, 0, len(tickets))
	for i := range tickets {
		ticket := s.refreshBreach(ctx, actor, &tickets[i])
		items = append(items, *s.present(actor, ticket))
	}

	page := &TicketPage{Items: items, Total: total}
	if offset+limit < total {
		next := offset + limit
		page.NextOffset = &next
		page.HasMore = true
	}
	return page, nil
}

// UpdateTicket applies a partial update. When expectedVersion is set, the
// update only applies against that version and fails with STALE_DATA
// otherwise. Without it, the service retries against fresh reads up to
// maxUpdateAttempts times, re-checking access and transition legality on
// each read. If every attempt loses the race the caller still gets
// STALE_DATA, even though it never sent a version.
func (s *TicketService) UpdateTicket(ctx context.Context, actor domain.Actor, ticketID string, update TicketUpdate, expectedVersion *int64) (*domain.Ticket, error) {
	if update.Empty() {
		return nil, apperrors.NewValidationError("no updatable fields supplied", map[string]any{
			"fields": []string{"status", "assignee", "priority"},
		})
	}
	if update.Status != nil && !update.Status.Valid() {
		return nil, apperrors.NewInvalidStatus(fmt.Sprintf("unknown status %q", *update.Status), map[string]any{
			"status":  *update.Status,
			"allowed": []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed},
		})
	}
	if update.Priority != nil && !update.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{
			"priority": "must be one of low, medium, high, urgent",
		})
	}

	attempts := maxUpdateAttempts
	if expectedVersion != nil {
		attempts = 1
	}

	var lastVersion int64
	for attempt := 0; attempt < attempts; attempt++ {
		current, err := s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return nil, s.storeError(ticketID, err)
		}
		if !access.CanMutate(actor, current) {
			return nil, apperrors.NewAccessDenied("you do not have access to this ticket")
		}
		if expectedVersion != nil && current.Version != *expectedVersion {
			s.metrics.TicketConflict()
			return nil, apperrors.NewStaleData(ticketID, *expectedVersion, current.Version)
		}
		lastVersion = current.Version

		now := s.clock.Now()
		patch, changes, err := planUpdate(actor, current, update, now)
		if err != nil {
			return nil, err
		}

		updated, err := s.tickets.Update(ctx, ticketID, &current.Version, patch)
		if errors.Is(err, repository.ErrVersionConflict) {
			if expectedVersion != nil {
				s.metrics.TicketConflict()
				return nil, apperrors.NewStaleData(ticketID, *expectedVersion, -1)
			}
			s.logger.Debug("ticket update lost race, retrying",
				zap.String("ticket_id", ticketID),
				zap.Int64("version", current.Version),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, s.storeError(ticketID, err)
		}

		s.publishChanges(ctx, actor, updated, changes)
		return s.present(actor, updated), nil
	}

	s.metrics.TicketConflict()
	return nil, apperrors.NewStaleData(ticketID, lastVersion, -1)
}

// AddComment appends a comment. Requesters cannot post internal comments;
// such requests are rejected rather than downgraded.
func (s *TicketService) AddComment(ctx context.Context, actor domain.Actor, ticketID, content string, internal bool) (*domain.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("comment content is required", map[string]any{
			"content": "is required",
		})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, s.storeError(ticketID, err)
	}
	if !access.CanComment(actor, ticket) {
		return nil, apperrors.NewAccessDenied("you do not have access to this ticket")
	}
	if internal && !access.CanWriteInternal(actor, ticket) {
		return nil, apperrors.NewAccessDenied("only agents and admins can post internal comments")
	}

	comment := domain.Comment{
		ID:         uuid.NewString(),
		AuthorID:   actor.ID,
		Content:    content,
		IsInternal: internal,
		CreatedAt:  s.clock.Now(),
	}
	updated, err := s.tickets.AppendComment(ctx, ticketID, comment)
	if err != nil {
		return nil, s.storeError(ticketID, err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticketID,
		Version:  updated.Version,
		Actor:    eventActor(actor),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			AuthorID:    comment.AuthorID,
			IsInternal:  comment.IsInternal,
			BodyPreview: stringPreview(comment.Content, 120),
		},
	})
	return &comment, nil
}

// refreshBreach persists a breach detected at read time. The store rechecks
// the deadline it holds, so a priority change that lands after the read wins.
// Only the call that flips the flag announces the breach. A failed write-back
// is logged and the derived flag is still reported.
func (s *TicketService) refreshBreach(ctx context.Context, actor domain.Actor, ticket *domain.Ticket) *domain.Ticket {
	now := s.clock.Now()
	if !sla.NeedsWriteBack(ticket, now) {
		return ticket
	}
	marked, changed, err := s.tickets.MarkSLABreached(ctx, ticket.ID, now)
	if err != nil {
		s.logger.Warn("sla breach write-back failed",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
		out := ticket.Clone()
		out.SLABreached = true
		return out
	}
	if changed {
		s.metrics.SLABreached()
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketSLABreached,
			TicketID: marked.ID,
			Version:  marked.Version,
			Actor:    eventActor(actor),
			Payload: events.TicketSLABreachedPayload{
				SLADeadline: marked.SLADeadline,
				Status:      marked.Status,
			},
		})
	}
	return marked
}

// present strips what actor may not see.
func (s *TicketService) present(actor domain.Actor, ticket *domain.Ticket) *domain.Ticket {
	out := ticket.Clone()
	if !access.CanViewInternal(actor) {
		out.Comments = domain.PublicComments(out.Comments)
	}
	return out
}

func (s *TicketService) storeError(ticketID string, err error) error {
	switch {
	case errors.Is(err, repository.ErrTicketNotFound):
		return apperrors.NewTicketNotFound(ticketID)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewStaleData(ticketID, -1, -1)
	default:
		return apperrors.MapError(err)
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func eventActor(actor domain.Actor) events.Actor {
	return events.Actor{ID: actor.ID, Role: actor.Role}
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
