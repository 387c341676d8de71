package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"memes/internal/domain"
	"memes/internal/repository"
)

var (
	_ repository.CatalogRepository = (*Repository)(nil)
	_ repository.Transactor        = (*Repository)(nil)
)

type txKey struct{}

type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(ctx context.Context, connString string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Repository{pool: pool, now: time.Now}, nil
}

func (r *Repository) Close() { r.pool.Close() }

func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// SaveCatalog replaces the stored catalog with memes, keeping their order.
func (r *Repository) SaveCatalog(ctx context.Context, memes []domain.Meme) error {
	fetchedAt := r.now().UTC()
	return r.RunInTx(ctx, func(ctx context.Context) error {
		q := r.getQuerier(ctx)
		if _, err := q.Exec(ctx, `DELETE FROM catalog_items`); err != nil {
			return r.handleError(err)
		}
		if len(memes) == 0 {
			return nil
		}
		_, err := q.CopyFrom(ctx,
			pgx.Identifier{"catalog_items"},
			[]string{"item_id", "position", "name", "url", "width", "height", "box_count", "fetched_at"},
			pgx.CopyFromSlice(len(memes), func(i int) ([]any, error) {
				m := memes[i]
				return []any{m.ID, i, m.Name, m.URL, m.Width, m.Height, m.BoxCount, fetchedAt}, nil
			}),
		)
		return r.handleError(err)
	})
}

func (r *Repository) LatestCatalog(ctx context.Context) (domain.Catalog, error) {
	q := `SELECT item_id, name, url, width, height, box_count, fetched_at FROM catalog_items ORDER BY position`
	rows, err := r.getQuerier(ctx).Query(ctx, q)
	if err != nil {
		return domain.Catalog{}, r.handleError(err)
	}
	defer rows.Close()

	var c domain.Catalog
	for rows.Next() {
		var m domain.Meme
		var fetchedAt time.Time
		if err := rows.Scan(&m.ID, &m.Name, &m.URL, &m.Width, &m.Height, &m.BoxCount, &fetchedAt); err != nil {
			return domain.Catalog{}, r.handleError(err)
		}
		c.Memes = append(c.Memes, m)
		if fetchedAt.After(c.FetchedAt) {
			c.FetchedAt = fetchedAt
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Catalog{}, r.handleError(err)
	}
	if len(c.Memes) == 0 {
		return domain.Catalog{}, domain.ErrNotFound
	}
	return c, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

func (r *Repository) getQuerier(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

func (r *Repository) handleError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Detail)
		case pgerrcode.UndefinedTable:
			return fmt.Errorf("catalog schema missing, run migrations: %w", err)
		}
	}
	return err
}
