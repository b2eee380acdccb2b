package market

import (
	"time"

	"github.com/sudo-init-do/relicmarket/internal/ledger"
)

// Listing is one active sale or auction, keyed by asset id. The held asset
// handle is present for exactly as long as the listing exists: the operation
// that removes a listing from the store is the same operation that releases
// the asset to its recipient.
type Listing struct {
	ListingID     uint64
	AssetID       string
	Seller        string
	StartingPrice int64
	Duration      time.Duration
	StartedAt     time.Time
	IsAuction     bool

	// Auction state. Fixed-price listings never populate these.
	HighestBidder string
	HighestPrice  int64

	held ledger.Asset
}

// View is the read-only projection of a listing served to API clients.
type View struct {
	ListingID     uint64    `json:"listing_id"`
	AssetID       string    `json:"asset_id"`
	Seller        string    `json:"seller"`
	StartingPrice int64     `json:"starting_price"`
	DurationSecs  int64     `json:"duration_secs"`
	StartedAt     time.Time `json:"started_at"`
	EndsAt        time.Time `json:"ends_at"`
	IsAuction     bool      `json:"is_auction"`
	HighestBidder string    `json:"highest_bidder,omitempty"`
	HighestPrice  int64     `json:"highest_price"`
}

func (l *Listing) view() View {
	return View{
		ListingID:     l.ListingID,
		AssetID:       l.AssetID,
		Seller:        l.Seller,
		StartingPrice: l.StartingPrice,
		DurationSecs:  int64(l.Duration / time.Second),
		StartedAt:     l.StartedAt,
		EndsAt:        l.StartedAt.Add(l.Duration),
		IsAuction:     l.IsAuction,
		HighestBidder: l.HighestBidder,
		HighestPrice:  l.HighestPrice,
	}
}

// endsAt is the inclusive end of the auction window.
func (l *Listing) endsAt() time.Time { return l.StartedAt.Add(l.Duration) }

// activeAt reports whether bids are accepted at time t.
// The window is inclusive on both ends: a bid at exactly endsAt is valid.
func (l *Listing) activeAt(t time.Time) bool {
	return !t.Before(l.StartedAt) && !t.After(l.endsAt())
}

// completeAt reports whether the auction can be settled at time t.
// Strictly after the window: settlement at exactly endsAt is not yet allowed.
func (l *Listing) completeAt(t time.Time) bool {
	return t.After(l.endsAt())
}
