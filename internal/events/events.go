// Package events defines the marketplace's append-only event stream and the
// sinks it can be published to. Events are a side channel: they are emitted
// after a state transition commits and are never allowed to fail the
// operation that produced them.
package events

import (
	"time"

	"github.com/sudo-init-do/relicmarket/internal/ledger"
)

// Event is one append-only marketplace log entry. ListingID correlates the
// entries of a single listing's lifetime across event kinds.
type Event interface {
	Kind() string
	Correlation() uint64
}

// Listed is emitted when a listing is created. It snapshots the asset's
// royalty policy at listing time.
type Listed struct {
	ListingID     uint64               `json:"listing_id"`
	AssetID       string               `json:"asset_id"`
	Seller        string               `json:"seller"`
	StartingPrice int64                `json:"starting_price"`
	DurationSecs  int64                `json:"duration_secs"`
	StartedAt     time.Time            `json:"started_at"`
	IsAuction     bool                 `json:"is_auction"`
	Royalty       ledger.RoyaltyPolicy `json:"royalty"`
}

// Delisted is emitted when a seller cancels a listing.
type Delisted struct {
	ListingID uint64 `json:"listing_id"`
	AssetID   string `json:"asset_id"`
	Seller    string `json:"seller"`
}

// Bought is emitted on a fixed-price purchase. Amount is the seller's net
// proceeds, not the gross price.
type Bought struct {
	ListingID uint64 `json:"listing_id"`
	AssetID   string `json:"asset_id"`
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer"`
	Amount    int64  `json:"amount"`
}

// PriceChanged is emitted when a seller re-prices a fixed-price listing.
type PriceChanged struct {
	ListingID uint64 `json:"listing_id"`
	AssetID   string `json:"asset_id"`
	NewPrice  int64  `json:"new_price"`
}

// BidPlaced is emitted when a bid becomes the new highest bid.
type BidPlaced struct {
	ListingID uint64 `json:"listing_id"`
	AssetID   string `json:"asset_id"`
	Bidder    string `json:"bidder"`
	Amount    int64  `json:"amount"`
}

// TokenClaimed is emitted when the auction winner takes custody of the asset.
type TokenClaimed struct {
	ListingID uint64 `json:"listing_id"`
	AssetID   string `json:"asset_id"`
	Winner    string `json:"winner"`
}

// CoinsClaimed is emitted when the winning bid is disbursed to seller,
// operator and royalty payee.
type CoinsClaimed struct {
	ListingID      uint64 `json:"listing_id"`
	AssetID        string `json:"asset_id"`
	Seller         string `json:"seller"`
	SellerProceeds int64  `json:"seller_proceeds"`
	ListingFee     int64  `json:"listing_fee"`
	RoyaltyFee     int64  `json:"royalty_fee"`
}

func (e Listed) Kind() string       { return "listed" }
func (e Delisted) Kind() string     { return "delisted" }
func (e Bought) Kind() string       { return "bought" }
func (e PriceChanged) Kind() string { return "price_changed" }
func (e BidPlaced) Kind() string    { return "bid_placed" }
func (e TokenClaimed) Kind() string { return "token_claimed" }
func (e CoinsClaimed) Kind() string { return "coins_claimed" }

func (e Listed) Correlation() uint64       { return e.ListingID }
func (e Delisted) Correlation() uint64     { return e.ListingID }
func (e Bought) Correlation() uint64       { return e.ListingID }
func (e PriceChanged) Correlation() uint64 { return e.ListingID }
func (e BidPlaced) Correlation() uint64    { return e.ListingID }
func (e TokenClaimed) Correlation() uint64 { return e.ListingID }
func (e CoinsClaimed) Correlation() uint64 { return e.ListingID }
