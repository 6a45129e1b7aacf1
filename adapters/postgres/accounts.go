// Package postgres stores users and connected wallets in PostgreSQL.
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
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// Accounts implements ports.AccountRepository on a pgx pool
type Accounts struct {
	pool *pgxpool.Pool
}

// NewAccounts creates a repository backed by pool
func NewAccounts(pool *pgxpool.Pool) *Accounts {
	return &Accounts{pool: pool}
}

var _ ports.AccountRepository = (*Accounts)(nil)

const userColumns = `id::text, COALESCE(username, ''), full_name, profile_completed, terms_accepted_at, privacy_accepted_at, created_at`

const walletColumns = `id::text, user_id::text, address, chain, provider, label, is_primary, is_verified, verified_at, created_at`

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func scanUser(row pgx.Row) (*core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.ProfileCompleted, &u.TermsAcceptedAt, &u.PrivacyAcceptedAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanWallet(row pgx.Row) (*core.ConnectedWallet, error) {
	var (
		w        core.ConnectedWallet
		chain    string
		provider string
	)
	err := row.Scan(&w.ID, &w.UserID, &w.Address, &chain, &provider, &w.Label, &w.IsPrimary, &w.IsVerified, &w.VerifiedAt, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	w.Chain = core.ChainID(chain)
	w.Provider = core.ProviderID(provider)
	return &w, nil
}

func insertWallet(ctx context.Context, tx pgx.Tx, w *core.ConnectedWallet) error {
	_, err := tx.Exec(ctx, `INSERT INTO connected_wallets
		(id, user_id, family, address, chain, provider, label, is_primary, is_verified, verified_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.ID, w.UserID, string(w.Chain.Family()), w.Address, string(w.Chain), string(w.Provider),
		w.Label, w.IsPrimary, w.IsVerified, w.VerifiedAt, w.CreatedAt)
	if isUniqueViolation(err, "connected_wallets_family_address_key") {
		return core.ErrWalletLinkedElsewhere
	}
	if err != nil {
		return fmt.Errorf("failed to insert wallet: %w", err)
	}
	return nil
}

func (a *Accounts) CreateUserWithWallet(ctx context.Context, user *core.User, wallet *core.ConnectedWallet) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO users (id, full_name, profile_completed, created_at) VALUES ($1, $2, $3, $4)`,
			user.ID, user.FullName, user.ProfileCompleted, user.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		w := *wallet
		w.UserID = user.ID
		w.IsPrimary = true
		return insertWallet(ctx, tx, &w)
	})
}

func (a *Accounts) GetUser(ctx context.Context, userID string) (*core.User, error) {
	return scanUser(a.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (a *Accounts) CompleteProfile(ctx context.Context, userID string, update core.ProfileUpdate, at time.Time) (*core.User, error) {
	var user *core.User
	err := pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		current, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
		if err != nil {
			return err
		}
		if current.ProfileCompleted {
			return core.ErrProfileAlreadyComplete
		}

		user, err = scanUser(tx.QueryRow(ctx, `UPDATE users
			SET username = $2, full_name = $3, profile_completed = TRUE, terms_accepted_at = $4, privacy_accepted_at = $4
			WHERE id = $1
			RETURNING `+userColumns, userID, update.Username, update.FullName, at))
		if isUniqueViolation(err, "users_username_key") {
			return core.ErrUsernameTaken
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (a *Accounts) FindWallet(ctx context.Context, family core.Family, address string) (*core.ConnectedWallet, error) {
	return scanWallet(a.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM connected_wallets WHERE family = $1 AND address = $2`,
		string(family), address))
}

func (a *Accounts) ListWallets(ctx context.Context, userID string) ([]*core.ConnectedWallet, error) {
	rows, err := a.pool.Query(ctx, `SELECT `+walletColumns+` FROM connected_wallets WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	out := make([]*core.ConnectedWallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (a *Accounts) AddWallet(ctx context.Context, wallet *core.ConnectedWallet) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		// Serializes wallet changes per user
		var exists bool
		err := tx.QueryRow(ctx, `SELECT TRUE FROM users WHERE id = $1 FOR UPDATE`, wallet.UserID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM connected_wallets WHERE user_id = $1`, wallet.UserID).Scan(&count); err != nil {
			return err
		}

		w := *wallet
		if count == 0 {
			w.IsPrimary = true
		}
		if w.IsPrimary {
			if _, err := tx.Exec(ctx, `UPDATE connected_wallets SET is_primary = FALSE WHERE user_id = $1`, w.UserID); err != nil {
				return err
			}
		}
		return insertWallet(ctx, tx, &w)
	})
}

func (a *Accounts) TouchWallet(ctx context.Context, walletID string, chain core.ChainID, provider core.ProviderID, at time.Time) error {
	tag, err := a.pool.Exec(ctx, `UPDATE connected_wallets SET chain = $2, provider = $3, is_verified = TRUE, verified_at = $4 WHERE id = $1`,
		walletID, string(chain), string(provider), at)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrWalletNotFound
	}
	return nil
}

func (a *Accounts) SetPrimary(ctx context.Context, userID, walletID string) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		if _, err := lockWallet(ctx, tx, userID, walletID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE connected_wallets SET is_primary = FALSE WHERE user_id = $1`, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE connected_wallets SET is_primary = TRUE WHERE id = $1`, walletID)
		return err
	})
}

func lockWallet(ctx context.Context, tx pgx.Tx, userID, walletID string) (*core.ConnectedWallet, error) {
	if _, err := tx.Exec(ctx, `SELECT 1 FROM users WHERE id::text = $1 FOR UPDATE`, userID); err != nil {
		return nil, err
	}
	return scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM connected_wallets WHERE id::text = $1 AND user_id::text = $2`,
		walletID, userID))
}

func (a *Accounts) RemoveWallet(ctx context.Context, userID, walletID string) error {
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		w, err := lockWallet(ctx, tx, userID, walletID)
		if err != nil {
			return err
		}

		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM connected_wallets WHERE user_id = $1`, w.UserID).Scan(&count); err != nil {
			return err
		}
		if count <= 1 {
			return core.ErrLastWallet
		}

		if _, err := tx.Exec(ctx, `DELETE FROM connected_wallets WHERE id = $1`, w.ID); err != nil {
			return fmt.Errorf("failed to delete wallet: %w", err)
		}

		if w.IsPrimary {
			_, err = tx.Exec(ctx, `UPDATE connected_wallets SET is_primary = TRUE
				WHERE id = (SELECT id FROM connected_wallets WHERE user_id = $1 ORDER BY created_at, id LIMIT 1)`, w.UserID)
			return err
		}
		return nil
	})
}
