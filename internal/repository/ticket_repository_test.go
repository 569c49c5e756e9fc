package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
)

// newPostgresRepo connects to TEST_POSTGRES_DSN. The tickets table must
// already exist (see migrations/).
func newPostgresRepo(t *testing.T) TicketRepository {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, `TRUNCATE tickets`)
	require.NoError(t, err)
	return NewTicketRepository(pool)
}

func TestPostgresUpdateVersionGate(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()
	ticket := seedTicket(t, repo, "u-1", nil)

	updated, err := repo.Update(ctx, ticket.ID, ptr(int64(0)), TicketPatch{Status: ptr(domain.TicketStatusInProgress)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)

	_, err = repo.Update(ctx, ticket.ID, ptr(int64(0)), TicketPatch{Status: ptr(domain.TicketStatusResolved)})
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = repo.Update(ctx, "missing", ptr(int64(0)), TicketPatch{Status: ptr(domain.TicketStatusResolved)})
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestPostgresConcurrentUpdatesSameVersion(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()
	ticket := seedTicket(t, repo, "u-1", nil)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, ticket.ID, ptr(int64(0)), TicketPatch{Priority: ptr(domain.TicketPriorityUrgent)})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	stored, err := repo.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestPostgresCommentsAndBreach(t *testing.T) {
	repo := newPostgresRepo(t)
	ctx := context.Background()
	ticket := seedTicket(t, repo, "u-1", nil)

	updated, err := repo.AppendComment(ctx, ticket.ID, domain.Comment{AuthorID: "a-1", Content: "internal note", IsInternal: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)
	require.Len(t, updated.Comments, 1)
	assert.True(t, updated.Comments[0].IsInternal)

	marked, changed, err := repo.MarkSLABreached(ctx, ticket.ID, ticket.SLADeadline.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, marked.SLABreached)

	marked, changed, err = repo.MarkSLABreached(ctx, ticket.ID, ticket.SLADeadline.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, marked.SLABreached)
	assert.Equal(t, int64(1), marked.Version)

	_, changed, err = repo.MarkSLABreached(ctx, ticket.ID, ticket.SLADeadline.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	_, total, err := repo.Query(ctx, TicketFilter{SearchTerm: ptr("internal note")})
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	_, total, err = repo.Query(ctx, TicketFilter{SearchTerm: ptr("internal note"), SearchInternal: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
