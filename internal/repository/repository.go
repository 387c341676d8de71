package repository

import (
	"context"

	"memes/internal/domain"
)

// CatalogRepository keeps the last catalog fetched from the meme source so it
// can be served while the source is down.
type CatalogRepository interface {
	SaveCatalog(ctx context.Context, memes []domain.Meme) error
	LatestCatalog(ctx context.Context) (domain.Catalog, error)
}

type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
