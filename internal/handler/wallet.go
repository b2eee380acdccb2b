package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/relicmarket/internal/db"
)

// WalletHandler serves balance and top-up routes for the marketplace's
// currency. Settlement itself goes through the ledger adapter; these routes
// only read balances and seed dev funds.
type WalletHandler struct {
	Currency string
}

// =========================
// Balance - live and escrowed funds
// =========================
func (h *WalletHandler) Balance(c echo.Context) error {
	userID, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var balance, escrow int64
	err := db.Conn.QueryRow(context.Background(),
		`SELECT balance, escrow FROM wallets WHERE user_id = $1 AND currency = $2`,
		userID, h.Currency).Scan(&balance, &escrow)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "wallet not found"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user_id":  userID,
		"currency": h.Currency,
		"balance":  balance,
		"escrow":   escrow,
	})
}

// =========================
// Topup - credit the caller's wallet
// =========================
func (h *WalletHandler) Topup(c echo.Context) error {
	userID, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.Bind(&req); err != nil || req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid amount"})
	}

	ctx := context.Background()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transaction start failed"})
	}
	defer tx.Rollback(ctx)

	res, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = balance + $1 WHERE user_id = $2 AND currency = $3`,
		req.Amount, userID, h.Currency)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to credit wallet"})
	}
	if res.RowsAffected() == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "wallet not found"})
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (user_id, currency, amount, type, status, reference, created_at)
		 VALUES ($1, $2, $3, 'credit', 'topup', '', $4)`,
		userID, h.Currency, req.Amount, time.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record topup"})
	}
	if err := tx.Commit(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "commit failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "wallet credited", "amount": req.Amount})
}

// =========================
// Transactions - caller's audit trail
// =========================
func (h *WalletHandler) Transactions(c echo.Context) error {
	userID, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	rows, err := db.Conn.Query(context.Background(),
		`SELECT id, amount, type, status, reference, created_at
		 FROM transactions WHERE user_id = $1 AND currency = $2
		 ORDER BY created_at DESC LIMIT 100`,
		userID, h.Currency)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch transactions"})
	}
	defer rows.Close()

	type txn struct {
		ID        int64     `json:"id"`
		Amount    int64     `json:"amount"`
		Type      string    `json:"type"`
		Status    string    `json:"status"`
		Reference string    `json:"reference"`
		CreatedAt time.Time `json:"created_at"`
	}
	var out []txn
	for rows.Next() {
		var t txn
		if err := rows.Scan(&t.ID, &t.Amount, &t.Type, &t.Status, &t.Reference, &t.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse record"})
		}
		out = append(out, t)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": out})
}
