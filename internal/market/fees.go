package market

import (
	"fmt"
	"math"

	"github.com/sudo-init-do/relicmarket/internal/ledger"
)

// split is the three-way division of a settlement price.
// RoyaltyFee + ListingFee + SellerProceeds always equals the gross price.
type split struct {
	RoyaltyFee     int64
	RoyaltyPayee   string
	ListingFee     int64
	SellerProceeds int64
}

// computeSplit divides price between royalty payee, operator and seller.
// Royalty: floor(n * price / d), zero when the denominator is zero.
// Listing fee: floor(price * feeBps / 10000). Seller takes the remainder.
func computeSplit(price, feeBps int64, royalty ledger.RoyaltyPolicy) (split, error) {
	if price < 0 {
		return split{}, fmt.Errorf("split: negative price %d", price)
	}
	var royaltyFee int64
	if royalty.Denominator != 0 && royalty.Numerator != 0 {
		if price > math.MaxInt64/royalty.Numerator {
			return split{}, fmt.Errorf("split: royalty %d/%d overflows at price %d",
				royalty.Numerator, royalty.Denominator, price)
		}
		royaltyFee = royalty.Numerator * price / royalty.Denominator
	}
	listingFee := price * feeBps / MaxFeeBps
	proceeds := price - listingFee - royaltyFee
	if proceeds < 0 {
		return split{}, fmt.Errorf("split: fees %d+%d exceed price %d", listingFee, royaltyFee, price)
	}
	return split{
		RoyaltyFee:     royaltyFee,
		RoyaltyPayee:   royalty.Payee,
		ListingFee:     listingFee,
		SellerProceeds: proceeds,
	}, nil
}

// legs lays the split out as ledger legs, skipping zero amounts.
func (s split) legs(operator, seller string) []ledger.Leg {
	out := make([]ledger.Leg, 0, 3)
	if s.RoyaltyFee > 0 {
		out = append(out, ledger.Leg{To: s.RoyaltyPayee, Amount: s.RoyaltyFee})
	}
	if s.ListingFee > 0 {
		out = append(out, ledger.Leg{To: operator, Amount: s.ListingFee})
	}
	out = append(out, ledger.Leg{To: seller, Amount: s.SellerProceeds})
	return out
}
