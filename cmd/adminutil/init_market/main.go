package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/relicmarket/internal/config"
	"github.com/sudo-init-do/relicmarket/internal/db"
)

// custodianAccount mirrors the server's custody identity; it needs a users
// row so the assets table's owner foreign key holds while assets are listed.
const custodianAccount = "marketplace-custody"

func main() {
	email := flag.String("email", "", "Email of the account that will operate the marketplace")
	feeBps := flag.Int64("fee-bps", 0, "Operator fee in basis points (0-10000)")
	flag.Parse()

	if *email == "" {
		log.Fatalf("usage: init_market -email operator@example.com -fee-bps 200")
	}
	if *feeBps < 0 || *feeBps > 10000 {
		log.Fatalf("fee-bps must be within [0, 10000], got %d", *feeBps)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	if err := db.Init(ctx, cfg.DSN()); err != nil {
		log.Fatalf("database: %v", err)
	}

	// Refuse to re-provision: the fee rate is fixed for the deployment's lifetime.
	if operator, fee, ok, err := db.LoadMarketConfig(ctx); err != nil {
		log.Fatalf("load market config: %v", err)
	} else if ok {
		fmt.Printf("Market already provisioned: operator=%s fee_bps=%d. Nothing to do.\n", operator, fee)
		return
	}

	var operatorID string
	err = db.Conn.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, *email).Scan(&operatorID)
	if err == pgx.ErrNoRows {
		log.Fatalf("no user found with email %s; sign the operator up first", *email)
	}
	if err != nil {
		log.Fatalf("lookup operator: %v", err)
	}

	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)

	// The operator doubles as an admin for the audit routes.
	if _, err := tx.Exec(ctx, `UPDATE users SET role = 'admin' WHERE id = $1`, operatorID); err != nil {
		log.Fatalf("promote operator: %v", err)
	}

	// System account that holds listed assets while they are in custody.
	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, name, email, password, role)
		VALUES ($1, 'Marketplace Custody', $2, '', 'system')
		ON CONFLICT (id) DO NOTHING
	`, custodianAccount, custodianAccount+"@system.local"); err != nil {
		log.Fatalf("create custodian account: %v", err)
	}

	// Operator wallet must exist before fees can be credited to it.
	if _, err := tx.Exec(ctx, `
		INSERT INTO wallets (user_id, currency, balance, escrow, created_at)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (user_id, currency) DO NOTHING
	`, operatorID, cfg.Currency, time.Now()); err != nil {
		log.Fatalf("create operator wallet: %v", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO market_config (singleton, operator_id, fee_bps)
		VALUES (TRUE, $1, $2)
	`, operatorID, *feeBps); err != nil {
		log.Fatalf("write market config: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit: %v", err)
	}

	fmt.Printf("Market provisioned: operator=%s (%s) fee_bps=%d currency=%s\n",
		*email, operatorID, *feeBps, cfg.Currency)
}
