package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/pagination"
	"github.com/cloo-solutions/replygate/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ResponseRepository struct {
	db dbtx
}

func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{db: pool}
}

func NewResponseRepositoryWithTx(tx pgx.Tx) *ResponseRepository {
	return &ResponseRepository{db: tx}
}

const responseColumns = `id, ticket_id, conversation_id, generation_params, model_used, prompt_tokens,
	completion_tokens, tokens_used, cost, confidence_score, confidence_source, knowledge_sources,
	response_text, status, created_at, updated_at`

func (r *ResponseRepository) Create(ctx context.Context, resp *domain.AIResponse) error {
	sources := resp.KnowledgeSources
	if sources == nil {
		sources = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_responses (`+responseColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		resp.ID, resp.TicketID, nullableString(resp.ConversationID), resp.Params, resp.ModelUsed, resp.PromptTokens,
		resp.CompletionTokens, resp.TokensUsed, resp.Cost, resp.Confidence, resp.ConfidenceSource, sources,
		resp.ResponseText, resp.Status, resp.CreatedAt, resp.UpdatedAt,
	)
	return err
}

func (r *ResponseRepository) GetByID(ctx context.Context, id string) (*domain.AIResponse, error) {
	resp, err := scanResponse(r.db.QueryRow(ctx,
		`SELECT `+responseColumns+` FROM ai_responses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrResponseNotFound
		}
		return nil, err
	}
	return resp, nil
}

// ListByTicket returns every response generated for a ticket, newest first.
func (r *ResponseRepository) ListByTicket(ctx context.Context, ticketID string) ([]*domain.AIResponse, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+responseColumns+` FROM ai_responses WHERE ticket_id = $1 ORDER BY created_at DESC, id DESC`,
		ticketID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResponseRows(rows)
}

// ListPendingReview pages through pending_review responses oldest first using
// (created_at, id) keyset pagination.
func (r *ResponseRepository) ListPendingReview(ctx context.Context, f service.PendingFilter, cursor *pagination.Cursor, limit int) (*service.ResponsePageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var where []string
	args := []any{domain.ResponseStatusPendingReview}
	where = append(where, "r.status = $1")
	if f.MinConfidence != nil {
		args = append(args, *f.MinConfidence)
		where = append(where, fmt.Sprintf("COALESCE(r.confidence_score, -1) >= $%d", len(args)))
	}
	if f.MaxConfidence != nil {
		args = append(args, *f.MaxConfidence)
		where = append(where, fmt.Sprintf("COALESCE(r.confidence_score, -1) <= $%d", len(args)))
	}
	if f.TicketPriority != "" {
		args = append(args, f.TicketPriority)
		where = append(where, fmt.Sprintf("t.priority = $%d", len(args)))
	}
	if cursor != nil {
		args = append(args, cursor.CreatedAt, cursor.ID)
		where = append(where, fmt.Sprintf("(r.created_at, r.id) > ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, limit+1)

	query := `SELECT ` + prefixColumns("r.", responseColumns) + `
		FROM ai_responses r
		JOIN tickets t ON t.id = r.ticket_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY r.created_at ASC, r.id ASC
		LIMIT $` + fmt.Sprint(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanResponseRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.ResponsePageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// CompareAndSetStatus updates status (and text when non-nil) only if the row
// is still in status from.
func (r *ResponseRepository) CompareAndSetStatus(ctx context.Context, id string, from, to domain.ResponseStatus, text *string, at time.Time) (*domain.AIResponse, error) {
	resp, err := scanResponse(r.db.QueryRow(ctx,
		`UPDATE ai_responses
		 SET status = $1,
		     response_text = COALESCE($2, response_text),
		     updated_at = $3
		 WHERE id = $4 AND status = $5
		 RETURNING `+responseColumns,
		to, text, at, id, from,
	))
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ai_responses WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrResponseNotFound
	}
	return nil, domain.ErrStatusConflict
}

func scanResponse(row pgx.Row) (*domain.AIResponse, error) {
	var resp domain.AIResponse
	var conversationID *string
	if err := row.Scan(&resp.ID, &resp.TicketID, &conversationID, &resp.Params, &resp.ModelUsed, &resp.PromptTokens,
		&resp.CompletionTokens, &resp.TokensUsed, &resp.Cost, &resp.Confidence, &resp.ConfidenceSource, &resp.KnowledgeSources,
		&resp.ResponseText, &resp.Status, &resp.CreatedAt, &resp.UpdatedAt); err != nil {
		return nil, err
	}
	resp.ConversationID = derefString(conversationID)
	return &resp, nil
}

func scanResponseRows(rows pgx.Rows) ([]*domain.AIResponse, error) {
	results := make([]*domain.AIResponse, 0)
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, resp)
	}
	return results, rows.Err()
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
