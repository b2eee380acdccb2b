package market

import "errors"

// Precondition failures surfaced by the lifecycle engine. Every one of these
// aborts the attempted transition with no change to listings, escrow,
// balances or custody.
var (
	// ErrNotInitialized: no operator/fee configuration has been provisioned yet.
	ErrNotInitialized = errors.New("market not initialized")
	// ErrAlreadyInitialized: init_market was already run for this deployment.
	ErrAlreadyInitialized = errors.New("market already initialized")
	// ErrAlreadyListed: an active listing already exists for the asset.
	ErrAlreadyListed = errors.New("asset already listed")
	// ErrAlreadyClaimed: the listing no longer exists (sold, settled or cancelled).
	ErrAlreadyClaimed = errors.New("listing no longer exists")
	// ErrNotAuthorized: caller is not the seller for a seller-only operation.
	ErrNotAuthorized = errors.New("caller is not the seller")
	// ErrInvalidBuyer: the seller tried to buy or bid on their own listing.
	ErrInvalidBuyer = errors.New("seller cannot buy own listing")
	// ErrItemNotAuction: auction-only operation on a fixed-price listing.
	ErrItemNotAuction = errors.New("listing is not an auction")
	// ErrItemIsAuction: fixed-price operation on an auction listing.
	ErrItemIsAuction = errors.New("listing is an auction")
	// ErrInsufficientBid: bid not strictly greater than the current high bid.
	ErrInsufficientBid = errors.New("bid must exceed current highest bid")
	// ErrAuctionInactive: bid placed outside the auction window.
	ErrAuctionInactive = errors.New("auction is not active")
	// ErrAuctionNotComplete: settlement attempted before the window closed.
	ErrAuctionNotComplete = errors.New("auction has not completed")
	// ErrNotClaimable: settlement caller is not the escrowed highest bidder.
	ErrNotClaimable = errors.New("caller cannot claim this auction")
)
