package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/relicmarket/internal/ledger"
	"github.com/sudo-init-do/relicmarket/internal/market"
)

// writeError maps engine and ledger errors onto HTTP responses. The engine
// returns typed errors instead of writing HTTP itself, so the mapping lives
// in one place.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrAlreadyClaimed),
		errors.Is(err, ledger.ErrAssetNotFound),
		errors.Is(err, ledger.ErrWalletNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrNotAuthorized),
		errors.Is(err, market.ErrNotClaimable),
		errors.Is(err, ledger.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrAlreadyListed):
		status = http.StatusConflict
	case errors.Is(err, market.ErrInvalidBuyer),
		errors.Is(err, market.ErrInsufficientBid),
		errors.Is(err, market.ErrAuctionInactive),
		errors.Is(err, market.ErrAuctionNotComplete),
		errors.Is(err, market.ErrItemNotAuction),
		errors.Is(err, market.ErrItemIsAuction),
		errors.Is(err, ledger.ErrInsufficientBalance):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// callerID pulls the verified identity set by the JWT middleware.
func callerID(c echo.Context) (string, bool) {
	id, ok := c.Get("user_id").(string)
	return id, ok && id != ""
}
