package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketRepository reads helpdesk tickets with their conversation.
type TicketRepository struct {
	db dbtx
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{db: pool}
}

func NewTicketRepositoryWithTx(tx pgx.Tx) *TicketRepository {
	return &TicketRepository{db: tx}
}

// Create inserts a ticket and any messages it carries. Used by the helpdesk
// sync and by tests; replygate itself never creates tickets.
func (r *TicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO tickets (id, subject, customer_name, customer_email, priority, status, conversation_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			t.ID, t.Subject, t.CustomerName, t.CustomerEmail, t.Priority, t.Status, nullableString(t.ConversationID), t.CreatedAt,
		)
		if err != nil {
			return err
		}
		for i := range t.Messages {
			m := t.Messages[i]
			m.TicketID = t.ID
			if err := insertMessage(ctx, tx, &m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var t domain.Ticket
	var conversationID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, subject, customer_name, customer_email, priority, status, conversation_id, created_at
		 FROM tickets WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Subject, &t.CustomerName, &t.CustomerEmail, &t.Priority, &t.Status, &conversationID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	t.ConversationID = derefString(conversationID)

	rows, err := r.db.Query(ctx,
		`SELECT id, ticket_id, direction, author, body, created_at
		 FROM ticket_messages WHERE ticket_id = $1 ORDER BY created_at ASC, id ASC`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.TicketMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Direction, &m.Author, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		t.Messages = append(t.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &t, nil
}

// AppendMessage adds a message to an existing ticket's conversation.
func (r *TicketRepository) AppendMessage(ctx context.Context, m *domain.TicketMessage) error {
	err := insertMessage(ctx, r.db, m)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return domain.ErrTicketNotFound
	}
	return err
}

func insertMessage(ctx context.Context, db dbtx, m *domain.TicketMessage) error {
	_, err := db.Exec(ctx,
		`INSERT INTO ticket_messages (id, ticket_id, direction, author, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.TicketID, m.Direction, m.Author, m.Body, m.CreatedAt,
	)
	return err
}
