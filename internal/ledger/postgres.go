package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCustody keeps asset ownership in the assets table. Custody is
// modelled as ownership by the marketplace's own account plus a held flag,
// so a held asset can never be taken again until it is returned.
type PostgresCustody struct {
	pool      *pgxpool.Pool
	custodian string // marketplace account that owns held assets
}

func NewPostgresCustody(pool *pgxpool.Pool, custodian string) *PostgresCustody {
	return &PostgresCustody{pool: pool, custodian: custodian}
}

func (c *PostgresCustody) Take(ctx context.Context, assetID, owner string) (Asset, error) {
	res, err := c.pool.Exec(ctx,
		`UPDATE assets SET owner_id = $1, held = TRUE, updated_at = NOW()
		 WHERE id = $2 AND owner_id = $3 AND held = FALSE`,
		c.custodian, assetID, owner,
	)
	if err != nil {
		return Asset{}, fmt.Errorf("take asset: %w", err)
	}
	if res.RowsAffected() == 0 {
		var exists bool
		if err := c.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM assets WHERE id = $1)`, assetID,
		).Scan(&exists); err == nil && !exists {
			return Asset{}, fmt.Errorf("take %q: %w", assetID, ErrAssetNotFound)
		}
		return Asset{}, fmt.Errorf("take %q: %w", assetID, ErrNotOwner)
	}
	return Asset{id: assetID}, nil
}

func (c *PostgresCustody) Return(ctx context.Context, asset Asset, to string) error {
	res, err := c.pool.Exec(ctx,
		`UPDATE assets SET owner_id = $1, held = FALSE, updated_at = NOW()
		 WHERE id = $2 AND owner_id = $3 AND held = TRUE`,
		to, asset.id, c.custodian,
	)
	if err != nil {
		return fmt.Errorf("return asset: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("return %q: not in custody", asset.id)
	}
	return nil
}

func (c *PostgresCustody) RoyaltyPolicy(ctx context.Context, assetID string) (RoyaltyPolicy, error) {
	var p RoyaltyPolicy
	err := c.pool.QueryRow(ctx,
		`SELECT COALESCE(royalty_payee, ''), royalty_num, royalty_den
		 FROM assets WHERE id = $1`, assetID,
	).Scan(&p.Payee, &p.Numerator, &p.Denominator)
	if err == pgx.ErrNoRows {
		return RoyaltyPolicy{}, fmt.Errorf("royalty %q: %w", assetID, ErrAssetNotFound)
	}
	if err != nil {
		return RoyaltyPolicy{}, fmt.Errorf("royalty lookup: %w", err)
	}
	return p, nil
}

// PostgresLedger keeps balances in the wallets table. A debit moves value
// from the balance column into the escrow column of the same row; refunds
// and releases drain the escrow column. Every money move also appends a
// transactions audit row.
type PostgresLedger struct {
	pool     *pgxpool.Pool
	currency string
}

func NewPostgresLedger(pool *pgxpool.Pool, currency string) *PostgresLedger {
	return &PostgresLedger{pool: pool, currency: currency}
}

func (l *PostgresLedger) Currency() string { return l.currency }

func (l *PostgresLedger) Debit(ctx context.Context, account string, amount int64) (LockedFunds, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return LockedFunds{}, fmt.Errorf("debit: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $1, escrow = escrow + $1
		 WHERE user_id = $2 AND currency = $3 AND balance >= $1`,
		amount, account, l.currency,
	)
	if err != nil {
		return LockedFunds{}, fmt.Errorf("debit: %w", err)
	}
	if res.RowsAffected() == 0 {
		return LockedFunds{}, l.classify(ctx, account, ErrInsufficientBalance)
	}
	if err := l.audit(ctx, tx, account, amount, "debit", "escrow_hold", ""); err != nil {
		return LockedFunds{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return LockedFunds{}, fmt.Errorf("debit: commit: %w", err)
	}
	return LockedFunds{owner: account, amount: amount}, nil
}

func (l *PostgresLedger) Credit(ctx context.Context, account string, funds LockedFunds) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("credit: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`UPDATE wallets SET escrow = escrow - $1
		 WHERE user_id = $2 AND currency = $3 AND escrow >= $1`,
		funds.amount, funds.owner, l.currency,
	)
	if err != nil {
		return fmt.Errorf("credit: drain escrow: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("credit: escrow underflow for %s", funds.owner)
	}
	credited, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance + $1
		 WHERE user_id = $2 AND currency = $3`,
		funds.amount, account, l.currency,
	)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	if credited.RowsAffected() == 0 {
		return fmt.Errorf("credit %s: %w", account, ErrWalletNotFound)
	}
	if err := l.audit(ctx, tx, account, funds.amount, "credit", "refund", ""); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("credit: commit: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	return l.PayOut(ctx, from, []Leg{{To: to, Amount: amount}})
}

func (l *PostgresLedger) PayOut(ctx context.Context, from string, legs []Leg) error {
	var total int64
	for _, leg := range legs {
		total += leg.Amount
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payout: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance - $1
		 WHERE user_id = $2 AND currency = $3 AND balance >= $1`,
		total, from, l.currency,
	)
	if err != nil {
		return fmt.Errorf("payout: %w", err)
	}
	if res.RowsAffected() == 0 {
		return l.classify(ctx, from, ErrInsufficientBalance)
	}
	if err := l.audit(ctx, tx, from, total, "debit", "settlement", ""); err != nil {
		return err
	}
	if err := l.creditLegs(ctx, tx, legs); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("payout: commit: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Release(ctx context.Context, funds LockedFunds, legs []Leg) error {
	var total int64
	for _, leg := range legs {
		total += leg.Amount
	}
	if total != funds.amount {
		return fmt.Errorf("release: legs sum %d != locked %d", total, funds.amount)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("release: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`UPDATE wallets SET escrow = escrow - $1
		 WHERE user_id = $2 AND currency = $3 AND escrow >= $1`,
		funds.amount, funds.owner, l.currency,
	)
	if err != nil {
		return fmt.Errorf("release: drain escrow: %w", err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("release: escrow underflow for %s", funds.owner)
	}
	if err := l.audit(ctx, tx, funds.owner, funds.amount, "debit", "escrow_release", ""); err != nil {
		return err
	}
	if err := l.creditLegs(ctx, tx, legs); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("release: commit: %w", err)
	}
	return nil
}

func (l *PostgresLedger) creditLegs(ctx context.Context, tx pgx.Tx, legs []Leg) error {
	for _, leg := range legs {
		if leg.Amount == 0 {
			continue
		}
		res, err := tx.Exec(ctx,
			`UPDATE wallets SET balance = balance + $1
			 WHERE user_id = $2 AND currency = $3`,
			leg.Amount, leg.To, l.currency,
		)
		if err != nil {
			return fmt.Errorf("credit leg to %s: %w", leg.To, err)
		}
		// A leg that lands on no wallet row would silently destroy
		// currency; abort the whole transaction instead.
		if res.RowsAffected() == 0 {
			return fmt.Errorf("credit leg to %s: %w", leg.To, ErrWalletNotFound)
		}
		if err := l.audit(ctx, tx, leg.To, leg.Amount, "credit", "settlement", ""); err != nil {
			return err
		}
	}
	return nil
}

func (l *PostgresLedger) audit(ctx context.Context, tx pgx.Tx, account string, amount int64, typ, status, ref string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (user_id, currency, amount, type, status, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account, l.currency, amount, typ, status, ref, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

// classify distinguishes a missing wallet from a genuine shortfall.
func (l *PostgresLedger) classify(ctx context.Context, account string, fallback error) error {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM wallets WHERE user_id = $1 AND currency = $2)`,
		account, l.currency,
	).Scan(&exists)
	if err == nil && !exists {
		return fmt.Errorf("account %s: %w", account, ErrWalletNotFound)
	}
	return fmt.Errorf("account %s: %w", account, fallback)
}
