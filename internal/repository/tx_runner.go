package repository

import (
	"context"

	"github.com/cloo-solutions/replygate/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner provides transactional repositories using a pgx pool.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	repos := &txRepos{tx: tx}
	if err := fn(repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Responses() service.ResponseRepository {
	return NewResponseRepositoryWithTx(r.tx)
}

func (r *txRepos) Reviews() service.ReviewRepository {
	return NewReviewRepositoryWithTx(r.tx)
}

func (r *txRepos) Tickets() service.TicketRepository {
	return NewTicketRepositoryWithTx(r.tx)
}
