package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/relicmarket/internal/db"
)

// =========================
// MintAsset - register a new asset owned by the caller
// =========================
func MintAsset(c echo.Context) error {
	userID, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req struct {
		Name         string `json:"name"`
		RoyaltyPayee string `json:"royalty_payee,omitempty"`
		RoyaltyNum   int64  `json:"royalty_num,omitempty"`
		RoyaltyDen   int64  `json:"royalty_den,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.RoyaltyDen < 0 || req.RoyaltyNum < 0 || req.RoyaltyNum > req.RoyaltyDen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid royalty fraction"})
	}
	if req.RoyaltyDen > 0 && req.RoyaltyPayee == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "royalty requires a payee"})
	}
	if req.RoyaltyDen > 0 {
		// The payee must be able to receive settlement legs.
		var exists bool
		err := db.Conn.QueryRow(context.Background(),
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, req.RoyaltyPayee).Scan(&exists)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to verify payee"})
		}
		if !exists {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "royalty payee does not exist"})
		}
	}

	assetID := uuid.New().String()
	_, err := db.Conn.Exec(context.Background(),
		`INSERT INTO assets (id, name, owner_id, held, royalty_payee, royalty_num, royalty_den, created_at, updated_at)
		 VALUES ($1, $2, $3, FALSE, $4, $5, $6, $7, $7)`,
		assetID, req.Name, userID, nullable(req.RoyaltyPayee), req.RoyaltyNum, req.RoyaltyDen, time.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to mint asset"})
	}

	return c.JSON(http.StatusCreated, echo.Map{"asset_id": assetID, "owner": userID})
}

// =========================
// GetAsset - public asset lookup
// =========================
func GetAsset(c echo.Context) error {
	assetID := c.Param("id")

	var (
		name, owner  string
		held         bool
		royaltyPayee *string
		num, den     int64
	)
	err := db.Conn.QueryRow(context.Background(),
		`SELECT name, owner_id, held, royalty_payee, royalty_num, royalty_den
		 FROM assets WHERE id = $1`, assetID).
		Scan(&name, &owner, &held, &royaltyPayee, &num, &den)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "asset not found"})
	}

	payee := ""
	if royaltyPayee != nil {
		payee = *royaltyPayee
	}
	return c.JSON(http.StatusOK, echo.Map{
		"asset_id":      assetID,
		"name":          name,
		"owner":         owner,
		"held":          held,
		"royalty_payee": payee,
		"royalty_num":   num,
		"royalty_den":   den,
	})
}

// =========================
// MyAssets - caller's holdings
// =========================
func MyAssets(c echo.Context) error {
	userID, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	rows, err := db.Conn.Query(context.Background(),
		`SELECT id, name, held FROM assets WHERE owner_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch assets"})
	}
	defer rows.Close()

	type asset struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Held bool   `json:"held"`
	}
	var out []asset
	for rows.Next() {
		var a asset
		if err := rows.Scan(&a.ID, &a.Name, &a.Held); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to parse record"})
		}
		out = append(out, a)
	}
	return c.JSON(http.StatusOK, echo.Map{"assets": out})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
