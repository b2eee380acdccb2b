package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/relicmarket/internal/db"
)

// =========================
// AdminListWallets - all wallets with held escrow
// =========================
func AdminListWallets(c echo.Context) error {
	rows, err := db.Conn.Query(context.Background(),
		`SELECT w.user_id, u.email, w.currency, w.balance, w.escrow
		 FROM wallets w JOIN users u ON u.id = w.user_id
		 ORDER BY w.balance DESC`)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch wallets"})
	}
	defer rows.Close()

	type wallet struct {
		UserID   string `json:"user_id"`
		Email    string `json:"email"`
		Currency string `json:"currency"`
		Balance  int64  `json:"balance"`
		Escrow   int64  `json:"escrow"`
	}
	var out []wallet
	for rows.Next() {
		var w wallet
		if err := rows.Scan(&w.UserID, &w.Email, &w.Currency, &w.Balance, &w.Escrow); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse record"})
		}
		out = append(out, w)
	}
	return c.JSON(http.StatusOK, echo.Map{"wallets": out})
}

// =========================
// AdminListTransactions - full audit trail, newest first
// =========================
func AdminListTransactions(c echo.Context) error {
	rows, err := db.Conn.Query(context.Background(),
		`SELECT id, user_id, currency, amount, type, status, reference, created_at
		 FROM transactions ORDER BY created_at DESC LIMIT 500`)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch transactions"})
	}
	defer rows.Close()

	type txn struct {
		ID        int64     `json:"id"`
		UserID    string    `json:"user_id"`
		Currency  string    `json:"currency"`
		Amount    int64     `json:"amount"`
		Type      string    `json:"type"`
		Status    string    `json:"status"`
		Reference string    `json:"reference"`
		CreatedAt time.Time `json:"created_at"`
	}
	var out []txn
	for rows.Next() {
		var t txn
		if err := rows.Scan(&t.ID, &t.UserID, &t.Currency, &t.Amount, &t.Type, &t.Status, &t.Reference, &t.CreatedAt); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse record"})
		}
		out = append(out, t)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": out})
}
