package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/walletauth/adapters/accountstest"
	"github.com/layer-3/walletauth/ports"
	"github.com/stretchr/testify/require"
)

func TestAccounts(t *testing.T) {
	dsn := os.Getenv("WALLETAUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping postgres test. Set WALLETAUTH_TEST_DATABASE_URL to run.")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, Migrate(pool))

	accountstest.Run(t, func(t *testing.T) ports.AccountRepository {
		_, err := pool.Exec(ctx, `TRUNCATE connected_wallets, users`)
		require.NoError(t, err)
		return NewAccounts(pool)
	})
}
