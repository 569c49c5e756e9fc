package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-labs/helpdesk-service/internal/domain"
)

var (
	// ErrTicketNotFound is returned when the referenced ticket does not exist.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrVersionConflict is returned when the stored version differs from the
	// version the caller observed. Nothing is written.
	ErrVersionConflict = errors.New("ticket version conflict")
)

// TicketFilter captures list parameters. Nil fields do not constrain.
type TicketFilter struct {
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	Category    *string
	AssigneeID  *string
	RequesterID *string
	SLABreached *bool
	SearchTerm  *string
	// SearchInternal includes internal comment content in text search.
	SearchInternal bool
	// Now is the instant the derived breach predicate is evaluated at.
	Now    time.Time
	Limit  int
	Offset int
}

// TicketPatch describes a mutation applied by Update. Nil fields are left
// untouched.
type TicketPatch struct {
	Status *domain.TicketStatus
	// AssigneeID set to "" clears the assignee.
	AssigneeID  *string
	Priority    *domain.TicketPriority
	SLADeadline *time.Time
	SLABreached *bool
	// ResolvedAt is only applied when the ticket has never been resolved.
	ResolvedAt *time.Time
	UpdatedAt  time.Time
}

// TicketRepository is the authoritative ticket store. Update and
// AppendComment bump the version by exactly one; MarkSLABreached does not.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// Update applies patch when expectedVersion is nil or equals the stored
	// version. The compare and the increment are a single atomic step.
	Update(ctx context.Context, id string, expectedVersion *int64, patch TicketPatch) (*domain.Ticket, error)
	AppendComment(ctx context.Context, id string, comment domain.Comment) (*domain.Ticket, error)
	// MarkSLABreached sets the breach flag only while the stored deadline is
	// before now, the flag is unset and the ticket is not resolved or closed.
	// It returns the stored ticket either way; changed reports whether this
	// call wrote the flag.
	MarkSLABreached(ctx context.Context, id string, now time.Time) (ticket *domain.Ticket, changed bool, err error)
	Query(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
}

const ticketColumns = `id, title, description, category, priority, status, requester_id, assignee_id,
               tags, comments, sla_deadline, sla_breached, resolved_at, version, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.Tags == nil {
		ticket.Tags = []string{}
	}
	comments, err := json.Marshal(nonNilComments(ticket.Comments))
	if err != nil {
		return fmt.Errorf("encode comments: %w", err)
	}
	const query = `
        INSERT INTO tickets (id, title, description, category, priority, status, requester_id, assignee_id,
                             tags, comments, sla_deadline, sla_breached, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,0,$13,$14)`
	_, err = r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		string(ticket.Priority),
		string(ticket.Status),
		ticket.RequesterID,
		ticket.AssigneeID,
		ticket.Tags,
		string(comments),
		ticket.SLADeadline,
		ticket.SLABreached,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	if err != nil {
		return err
	}
	ticket.Version = 0
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return ticket, err
}

func (r *ticketRepository) Update(ctx context.Context, id string, expectedVersion *int64, patch TicketPatch) (*domain.Ticket, error) {
	var status, priority *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	if patch.Priority != nil {
		p := string(*patch.Priority)
		priority = &p
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = time.Now().UTC()
	}
	setAssignee := patch.AssigneeID != nil
	assignee := ""
	if setAssignee {
		assignee = *patch.AssigneeID
	}

	query := `
        UPDATE tickets SET
            status = COALESCE($3::text, status),
            assignee_id = CASE WHEN $4::boolean THEN NULLIF($5::text, '') ELSE assignee_id END,
            priority = COALESCE($6::text, priority),
            sla_deadline = COALESCE($7::timestamptz, sla_deadline),
            sla_breached = COALESCE($8::boolean, sla_breached),
            resolved_at = COALESCE(resolved_at, $9::timestamptz),
            version = version + 1,
            updated_at = $10
        WHERE id=$1 AND ($2::bigint IS NULL OR version=$2)
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query,
		id,
		expectedVersion,
		status,
		setAssignee,
		assignee,
		priority,
		patch.SLADeadline,
		patch.SLABreached,
		patch.ResolvedAt,
		patch.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, id)
	}
	return ticket, err
}

func (r *ticketRepository) AppendComment(ctx context.Context, id string, comment domain.Comment) (*domain.Ticket, error) {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal([]domain.Comment{comment})
	if err != nil {
		return nil, fmt.Errorf("encode comment: %w", err)
	}
	query := `
        UPDATE tickets SET comments = comments || $2::jsonb, version = version + 1, updated_at = $3
        WHERE id=$1
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id, string(payload), comment.CreatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return ticket, err
}

func (r *ticketRepository) MarkSLABreached(ctx context.Context, id string, now time.Time) (*domain.Ticket, bool, error) {
	query := `
        UPDATE tickets SET sla_breached = TRUE
        WHERE id=$1 AND sla_breached = FALSE AND sla_deadline < $2
          AND status NOT IN ('resolved','closed')
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id, now))
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := r.GetByID(ctx, id)
		return current, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return ticket, true, nil
}

func (r *ticketRepository) Query(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.SLABreached != nil {
		args = append(args, filter.Now)
		breached := fmt.Sprintf("(sla_breached OR (sla_deadline < $%d AND status NOT IN ('resolved','closed')))", len(args))
		if *filter.SLABreached {
			clauses = append(clauses, breached)
		} else {
			clauses = append(clauses, "NOT "+breached)
		}
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		args = append(args, filter.SearchInternal)
		internal := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(`(LOWER(title) LIKE %[1]s OR LOWER(description) LIKE %[1]s OR EXISTS (
            SELECT 1 FROM jsonb_array_elements(comments) c
            WHERE LOWER(c->>'content') LIKE %[1]s AND (%[2]s::boolean OR NOT COALESCE((c->>'is_internal')::boolean, FALSE))))`,
			placeholder, internal))
	}

	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := NormalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY seq DESC LIMIT %d OFFSET %d`,
		ticketColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (r *ticketRepository) missOrConflict(ctx context.Context, id string) error {
	var version int64
	err := r.pool.QueryRow(ctx, `SELECT version FROM tickets WHERE id=$1`, id).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTicketNotFound
	}
	if err != nil {
		return err
	}
	return ErrVersionConflict
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		priority string
		status   string
		comments []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&priority,
		&status,
		&ticket.RequesterID,
		&ticket.AssigneeID,
		&ticket.Tags,
		&comments,
		&ticket.SLADeadline,
		&ticket.SLABreached,
		&ticket.ResolvedAt,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Priority = domain.TicketPriority(priority)
	ticket.Status = domain.TicketStatus(status)
	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &ticket.Comments); err != nil {
			return nil, fmt.Errorf("decode comments: %w", err)
		}
	}
	if ticket.Comments == nil {
		ticket.Comments = []domain.Comment{}
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func nonNilComments(comments []domain.Comment) []domain.Comment {
	if comments == nil {
		return []domain.Comment{}
	}
	return comments
}

// NormalizePage applies the default page size and clamps offsets.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)
