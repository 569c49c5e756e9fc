package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-labs/helpdesk-service/internal/api/dto"
	"github.com/helpdesk-labs/helpdesk-service/internal/auth"
	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
	"github.com/helpdesk-labs/helpdesk-service/internal/service"
	apperrors "github.com/helpdesk-labs/helpdesk-service/pkg/util"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// TicketsHandler serves the ticket endpoints for every role.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	key := strings.TrimSpace(c.Get(headerIdempotencyKey))
	if key == "" {
		return apperrors.NewIdempotencyKeyRequired()
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, replayed, err := h.service.CreateTicket(c.UserContext(), actor, req.Draft(), key)
	if err != nil {
		return err
	}
	if replayed {
		c.Set(headerReplayed, "true")
	}
	return c.Status(http.StatusCreated).JSON(dto.TicketEnvelope{
		Message: "Ticket created successfully",
		Ticket:  dto.NewTicketResponse(ticket),
	})
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListTickets(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewTicketResponse(&page.Items[i]))
	}
	return c.JSON(dto.TicketListResponse{
		Items:      items,
		Total:      page.Total,
		NextOffset: page.NextOffset,
		HasMore:    page.HasMore,
	})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketEnvelope{Ticket: dto.NewTicketResponse(ticket)})
}

// UpdateTicket PATCH /api/tickets/:id. A body without "version" is retried
// server-side against concurrent writers but can still answer 409 STALE_DATA
// when every retry loses; clients should re-read and resend.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	update := service.TicketUpdate{
		Status:     req.Status,
		AssigneeID: req.Assignee,
		Priority:   req.Priority,
	}
	ticket, err := h.service.UpdateTicket(c.UserContext(), actor, c.Params("id"), update, req.Version)
	if err != nil {
		return err
	}
	return c.JSON(dto.TicketEnvelope{
		Message: "Ticket updated successfully",
		Ticket:  dto.NewTicketResponse(ticket),
	})
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.service.AddComment(c.UserContext(), actor, c.Params("id"), req.Content, req.IsInternal)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.CommentEnvelope{
		Message: "Comment added successfully",
		Comment: dto.NewCommentResponse(*comment),
	})
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{
		Limit:  parseInt(c.Query("limit"), 0),
		Offset: parseInt(c.Query("offset"), 0),
	}
	if statusStr := strings.TrimSpace(c.Query("status")); statusStr != "" {
		status := domain.TicketStatus(strings.ToLower(statusStr))
		if !status.Valid() {
			return filter, apperrors.NewInvalidStatus("unknown status filter", map[string]any{"status": statusStr})
		}
		filter.Status = &status
	}
	if priorityStr := strings.TrimSpace(c.Query("priority")); priorityStr != "" {
		priority := domain.TicketPriority(strings.ToLower(priorityStr))
		if !priority.Valid() {
			return filter, apperrors.NewValidationError("invalid query", map[string]any{
				"priority": "must be one of low, medium, high, urgent",
			})
		}
		filter.Priority = &priority
	}
	filter.Category = optionalQuery(c, "category")
	filter.AssigneeID = optionalQuery(c, "assignee")
	filter.RequesterID = optionalQuery(c, "requester")
	filter.SearchTerm = optionalQuery(c, "q")
	if raw := strings.TrimSpace(c.Query("slaBreached")); raw != "" {
		if breached, err := strconv.ParseBool(raw); err == nil {
			filter.SLABreached = &breached
		}
	}
	return filter, nil
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return nil
	}
	return &val
}

// parseInt falls back to def for missing, malformed or negative values.
func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
