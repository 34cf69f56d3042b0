package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Connect opens a pool and waits until the database answers a ping,
// retrying a few times while the database container is still starting.
func Connect(ctx context.Context, log zerolog.Logger, dsn string) (*pgxpool.Pool, error) {
	const attempts = 5

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg pool: %w", err)
	}

	for i := 1; ; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return pool, nil
		}
		if i == attempts {
			pool.Close()
			return nil, fmt.Errorf("pg ping: %w", err)
		}
		log.Warn().Err(err).Int("attempt", i).Msg("postgres not ready, retrying")
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(i) * time.Second):
		}
	}
}
