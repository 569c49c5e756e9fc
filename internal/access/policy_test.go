package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
)

var (
	owner    = domain.Actor{ID: "u-1", Role: domain.RoleUser}
	stranger = domain.Actor{ID: "u-2", Role: domain.RoleUser}
	agent    = domain.Actor{ID: "a-1", Role: domain.RoleAgent}
	admin    = domain.Actor{ID: "x-1", Role: domain.RoleAdmin}
)

func ownedTicket(status domain.TicketStatus) *domain.Ticket {
	return &domain.Ticket{ID: "t-1", RequesterID: owner.ID, Status: status}
}

func TestRequesterOwnsTheirTickets(t *testing.T) {
	ticket := ownedTicket(domain.TicketStatusOpen)

	assert.True(t, CanRead(owner, ticket))
	assert.True(t, CanMutate(owner, ticket))
	assert.True(t, CanComment(owner, ticket))
	assert.True(t, CanChangePriority(owner, ticket))

	assert.False(t, CanRead(stranger, ticket))
	assert.False(t, CanMutate(stranger, ticket))
	assert.False(t, CanComment(stranger, ticket))
}

func TestStaffIsUnrestricted(t *testing.T) {
	ticket := ownedTicket(domain.TicketStatusOpen)
	for _, actor := range []domain.Actor{agent, admin} {
		assert.True(t, CanRead(actor, ticket))
		assert.True(t, CanMutate(actor, ticket))
		assert.True(t, CanComment(actor, ticket))
		assert.True(t, CanAssign(actor, ticket))
		assert.True(t, CanWriteInternal(actor, ticket))
		assert.True(t, CanViewInternal(actor))
	}
}

func TestRequesterCannotUseStaffCapabilities(t *testing.T) {
	ticket := ownedTicket(domain.TicketStatusOpen)
	assert.False(t, CanAssign(owner, ticket))
	assert.False(t, CanWriteInternal(owner, ticket))
	assert.False(t, CanViewInternal(owner))
}

func TestUnknownRoleHasNoCapabilities(t *testing.T) {
	ghost := domain.Actor{ID: owner.ID, Role: "guest"}
	ticket := ownedTicket(domain.TicketStatusOpen)
	assert.False(t, CanRead(ghost, ticket))
	assert.False(t, CanMutate(ghost, ticket))
}

func TestCanTransition(t *testing.T) {
	resolved := ownedTicket(domain.TicketStatusResolved)
	assert.True(t, CanTransition(owner, resolved, domain.TicketStatusClosed))
	assert.False(t, CanTransition(owner, resolved, domain.TicketStatusOpen))
	assert.False(t, CanTransition(stranger, resolved, domain.TicketStatusClosed))

	open := ownedTicket(domain.TicketStatusOpen)
	assert.False(t, CanTransition(owner, open, domain.TicketStatusInProgress))
	assert.False(t, CanTransition(owner, open, domain.TicketStatusClosed))

	assert.True(t, CanTransition(agent, open, domain.TicketStatusInProgress))
	assert.True(t, CanTransition(admin, resolved, domain.TicketStatusOpen))
}

func TestListScope(t *testing.T) {
	requesterID, restricted := ListScope(owner)
	assert.True(t, restricted)
	assert.Equal(t, owner.ID, requesterID)

	requesterID, restricted = ListScope(agent)
	assert.False(t, restricted)
	assert.Empty(t, requesterID)
}
