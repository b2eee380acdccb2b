package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/relicmarket/internal/market"
)

// Handler serves the marketplace routes over one lifecycle engine.
type Handler struct {
	Engine *market.Engine
}

func New(engine *market.Engine) *Handler {
	return &Handler{Engine: engine}
}

type createListingRequest struct {
	AssetID       string `json:"asset_id"`
	StartingPrice int64  `json:"starting_price"`
	DurationSecs  int64  `json:"duration_secs"`
	StartedAt     string `json:"started_at,omitempty"` // RFC3339; defaults to now
	IsAuction     bool   `json:"is_auction"`
}

// =========================
// CreateListing - Seller lists an asset
// =========================
func (h *Handler) CreateListing(c echo.Context) error {
	caller, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	req := new(createListingRequest)
	if err := c.Bind(req); err != nil || req.AssetID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.StartingPrice < 0 || req.DurationSecs < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price and duration must be non-negative"})
	}

	startedAt := time.Now()
	if req.StartedAt != "" {
		t, err := time.Parse(time.RFC3339, req.StartedAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid started_at"})
		}
		startedAt = t
	}

	v, err := h.Engine.CreateListing(c.Request().Context(), caller, req.AssetID,
		req.StartingPrice, time.Duration(req.DurationSecs)*time.Second, startedAt, req.IsAuction)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// =========================
// GetListings / GetListing - Public browse
// =========================
func (h *Handler) GetListings(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"listings": h.Engine.Listings()})
}

func (h *Handler) GetListing(c echo.Context) error {
	v, err := h.Engine.GetListing(c.Param("asset_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// =========================
// CancelListing - Seller takes the asset back
// =========================
func (h *Handler) CancelListing(c echo.Context) error {
	caller, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Engine.CancelListing(c.Request().Context(), caller, c.Param("asset_id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "listing cancelled"})
}

// =========================
// SetPrice - Seller re-prices a fixed-price listing
// =========================
func (h *Handler) SetPrice(c echo.Context) error {
	caller, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		NewPrice int64 `json:"new_price"`
	}
	if err := c.Bind(&req); err != nil || req.NewPrice < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid new_price"})
	}
	if err := h.Engine.SetPrice(c.Request().Context(), caller, c.Param("asset_id"), req.NewPrice); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "price updated"})
}

// =========================
// PlaceBid - Bidder locks funds as the new highest bid
// =========================
func (h *Handler) PlaceBid(c echo.Context) error {
	caller, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.Bind(&req); err != nil || req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid amount"})
	}
	if err := h.Engine.PlaceBid(c.Request().Context(), caller, c.Param("asset_id"), req.Amount); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "bid placed"})
}

// =========================
// BuyFixedPrice - Buyer settles at the listed price
// =========================
func (h *Handler) BuyFixedPrice(c echo.Context) error {
	caller, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Engine.BuyFixedPrice(c.Request().Context(), caller, c.Param("asset_id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "purchase complete"})
}

// =========================
// SettleAuction - Winner claims asset and triggers payout
// =========================
func (h *Handler) SettleAuction(c echo.Context) error {
	caller, ok := callerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Engine.SettleAuction(c.Request().Context(), caller, c.Param("asset_id")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "auction settled"})
}

// =========================
// MarketInfo - Provisioned operator and fee rate
// =========================
func (h *Handler) MarketInfo(c echo.Context) error {
	reg := h.Engine.Registry()
	if !reg.Initialized() {
		return writeError(c, market.ErrNotInitialized)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"operator": reg.Operator(),
		"fee_bps":  reg.FeeBps(),
	})
}
