// Package access decides what an actor may do with a ticket. Every operation
// is looked up in a role capability table; there are no per-ticket ACLs.
package access

import "github.com/helpdesk-labs/helpdesk-service/internal/domain"

// Capability names an operation guarded by the policy.
type Capability string

const (
	CapRead           Capability = "read"
	CapMutate         Capability = "mutate"
	CapComment        Capability = "comment"
	CapChangeStatus   Capability = "change_status"
	CapCloseResolved  Capability = "close_resolved"
	CapAssign         Capability = "assign"
	CapWriteInternal  Capability = "write_internal"
	CapViewInternal   Capability = "view_internal"
	CapListAll        Capability = "list_all"
	CapChangePriority Capability = "change_priority"
)

// scope restricts a granted capability.
type scope int

const (
	scopeNone scope = iota
	scopeOwn
	scopeAny
)

var capabilities = map[domain.Role]map[Capability]scope{
	domain.RoleUser: {
		CapRead:           scopeOwn,
		CapMutate:         scopeOwn,
		CapComment:        scopeOwn,
		CapCloseResolved:  scopeOwn,
		CapChangePriority: scopeOwn,
	},
	domain.RoleAgent: {
		CapRead:           scopeAny,
		CapMutate:         scopeAny,
		CapComment:        scopeAny,
		CapChangeStatus:   scopeAny,
		CapCloseResolved:  scopeAny,
		CapAssign:         scopeAny,
		CapWriteInternal:  scopeAny,
		CapViewInternal:   scopeAny,
		CapListAll:        scopeAny,
		CapChangePriority: scopeAny,
	},
	domain.RoleAdmin: {
		CapRead:           scopeAny,
		CapMutate:         scopeAny,
		CapComment:        scopeAny,
		CapChangeStatus:   scopeAny,
		CapCloseResolved:  scopeAny,
		CapAssign:         scopeAny,
		CapWriteInternal:  scopeAny,
		CapViewInternal:   scopeAny,
		CapListAll:        scopeAny,
		CapChangePriority: scopeAny,
	},
}

// Allowed reports whether actor holds capability on ticket. A nil ticket
// checks the capability independent of ownership.
func Allowed(actor domain.Actor, capability Capability, ticket *domain.Ticket) bool {
	switch capabilities[actor.Role][capability] {
	case scopeAny:
		return true
	case scopeOwn:
		if ticket == nil {
			return true
		}
		return actor.ID != "" && ticket.RequesterID == actor.ID
	default:
		return false
	}
}

// CanRead reports whether actor may fetch ticket.
func CanRead(actor domain.Actor, ticket *domain.Ticket) bool {
	return Allowed(actor, CapRead, ticket)
}

// CanMutate reports whether actor may patch ticket.
func CanMutate(actor domain.Actor, ticket *domain.Ticket) bool {
	return Allowed(actor, CapMutate, ticket)
}

// CanComment reports whether actor may append a comment to ticket.
func CanComment(actor domain.Actor, ticket *domain.Ticket) bool {
	return Allowed(actor, CapComment, ticket)
}

// CanAssign reports whether actor may change the assignee.
func CanAssign(actor domain.Actor, ticket *domain.Ticket) bool {
	return Allowed(actor, CapAssign, ticket)
}

// CanWriteInternal reports whether actor may post internal comments.
func CanWriteInternal(actor domain.Actor, ticket *domain.Ticket) bool {
	return Allowed(actor, CapWriteInternal, ticket)
}

// CanViewInternal reports whether actor sees internal comments.
func CanViewInternal(actor domain.Actor) bool {
	return Allowed(actor, CapViewInternal, nil)
}

// CanTransition reports whether actor may move ticket from its current
// status to next. Requesters may only close their own resolved tickets.
func CanTransition(actor domain.Actor, ticket *domain.Ticket, next domain.TicketStatus) bool {
	if Allowed(actor, CapChangeStatus, ticket) {
		return true
	}
	return ticket != nil &&
		ticket.Status == domain.TicketStatusResolved &&
		next == domain.TicketStatusClosed &&
		Allowed(actor, CapCloseResolved, ticket)
}

// CanChangePriority reports whether actor may set ticket priority.
func CanChangePriority(actor domain.Actor, ticket *domain.Ticket) bool {
	return Allowed(actor, CapChangePriority, ticket)
}

// ListScope returns the requester id a listing must be pinned to, or ""
// when the actor may list every ticket.
func ListScope(actor domain.Actor) (requesterID string, restricted bool) {
	if Allowed(actor, CapListAll, nil) {
		return "", false
	}
	return actor.ID, true
}
