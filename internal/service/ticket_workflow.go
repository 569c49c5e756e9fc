package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/helpdesk-labs/helpdesk-service/internal/access"
	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
	"github.com/helpdesk-labs/helpdesk-service/internal/events"
	"github.com/helpdesk-labs/helpdesk-service/internal/repository"
	"github.com/helpdesk-labs/helpdesk-service/internal/sla"
	apperrors "github.com/helpdesk-labs/helpdesk-service/pkg/util"
)

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:       {domain.TicketStatusInProgress},
	domain.TicketStatusInProgress: {domain.TicketStatusResolved, domain.TicketStatusOpen},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed, domain.TicketStatusOpen},
	domain.TicketStatusClosed:     {domain.TicketStatusOpen},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ticketChanges records what an update actually changed, for events.
type ticketChanges struct {
	statusChanged bool
	oldStatus     domain.TicketStatus
	newStatus     domain.TicketStatus

	priorityChanged bool
	oldPriority     domain.TicketPriority
	newPriority     domain.TicketPriority

	assigneeChanged bool
	oldAssignee     *string
	newAssignee     *string
}

// planUpdate checks update against current and turns it into a store patch.
// It performs no I/O, so it can be re-run after a lost race.
func planUpdate(actor domain.Actor, current *domain.Ticket, update TicketUpdate, now time.Time) (repository.TicketPatch, ticketChanges, error) {
	patch := repository.TicketPatch{UpdatedAt: now}
	var changes ticketChanges
	projected := current.Clone()

	if update.Status != nil && *update.Status != current.Status {
		next := *update.Status
		if !access.CanTransition(actor, current, next) {
			return patch, changes, apperrors.NewAccessDenied(fmt.Sprintf("you are not allowed to move this ticket to %s", next))
		}
		if !isValidTransition(current.Status, next) {
			return patch, changes, apperrors.NewInvalidStatus(
				fmt.Sprintf("cannot transition ticket from %s to %s", current.Status, next),
				map[string]any{"from": current.Status, "to": next, "allowed": allowedTransitions[current.Status]},
			)
		}
		patch.Status = &next
		if next == domain.TicketStatusResolved {
			resolvedAt := now
			patch.ResolvedAt = &resolvedAt
		}
		projected.Status = next
		changes.statusChanged = true
		changes.oldStatus = current.Status
		changes.newStatus = next
	}

	if update.AssigneeID != nil {
		if !access.CanAssign(actor, current) {
			return patch, changes, apperrors.NewAccessDenied("only agents and admins can assign tickets")
		}
		assignee := strings.TrimSpace(*update.AssigneeID)
		patch.AssigneeID = &assignee
		if !sameAssignee(current.AssigneeID, assignee) {
			changes.assigneeChanged = true
			changes.oldAssignee = current.AssigneeID
			if assignee != "" {
				changes.newAssignee = &assignee
			}
		}
	}

	if update.Priority != nil && *update.Priority != current.Priority {
		if !access.CanChangePriority(actor, current) {
			return patch, changes, apperrors.NewAccessDenied("you are not allowed to change the priority of this ticket")
		}
		priority := *update.Priority
		deadline := sla.Deadline(priority, now)
		patch.Priority = &priority
		patch.SLADeadline = &deadline
		projected.Priority = priority
		projected.SLADeadline = deadline
		changes.priorityChanged = true
		changes.oldPriority = current.Priority
		changes.newPriority = priority
	}

	// A new deadline or a reopen re-derives the flag from scratch; otherwise
	// the flag is only ever raised.
	reopened := changes.statusChanged && changes.newStatus == domain.TicketStatusOpen
	switch {
	case reopened || changes.priorityChanged:
		breached := sla.IsBreached(projected, now)
		patch.SLABreached = &breached
	case sla.NeedsWriteBack(projected, now):
		breached := true
		patch.SLABreached = &breached
	}

	return patch, changes, nil
}

func sameAssignee(current *string, next string) bool {
	if current == nil {
		return next == ""
	}
	return *current == next
}

func (s *TicketService) publishChanges(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, changes ticketChanges) {
	if changes.statusChanged {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Version:  ticket.Version,
			Actor:    eventActor(actor),
			Payload: events.TicketStatusChangedPayload{
				OldStatus: changes.oldStatus,
				NewStatus: changes.newStatus,
			},
		})
	}
	if changes.priorityChanged {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketPriorityChanged,
			TicketID: ticket.ID,
			Version:  ticket.Version,
			Actor:    eventActor(actor),
			Payload: events.TicketPriorityChangedPayload{
				OldPriority: changes.oldPriority,
				NewPriority: changes.newPriority,
				SLADeadline: ticket.SLADeadline,
			},
		})
	}
	if changes.assigneeChanged {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Version:  ticket.Version,
			Actor:    eventActor(actor),
			Payload: events.TicketAssignedPayload{
				OldAssigneeID: changes.oldAssignee,
				AssigneeID:    changes.newAssignee,
			},
		})
	}
}
