package postgres

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"memes/migrations"
)

// Setup starts a throwaway Postgres with the catalog schema applied.
func Setup(ctx context.Context) (connString string, cleanup func(), err error) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("memes-test"),
		postgres.WithUsername("memes"),
		postgres.WithPassword("memes"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start pg container: %w", err)
	}

	teardown := func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			log.Printf("terminate pg container: %s", err)
		}
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		teardown()
		return "", nil, fmt.Errorf("get connection string: %w", err)
	}

	if _, err := migrations.Run(ctx, connStr); err != nil {
		teardown()
		return "", nil, fmt.Errorf("run migrations: %w", err)
	}

	return connStr, teardown, nil
}
