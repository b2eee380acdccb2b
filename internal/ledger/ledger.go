// Package ledger defines the custody boundaries the marketplace core depends
// on: an asset-ownership ledger that can move a unique asset unit between
// owners, and a currency ledger that can debit, credit and transfer fungible
// balances. The core never touches balances or ownership directly; it only
// calls through these interfaces.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrNotOwner is returned by Take when the claimed owner does not hold the asset.
	ErrNotOwner = errors.New("caller does not own asset")
	// ErrAssetNotFound is returned when no asset exists for the given id.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrInsufficientBalance is returned when an account cannot cover a debit or transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrWalletNotFound is returned when an account has no wallet for the currency.
	ErrWalletNotFound = errors.New("wallet not found")
)

// Asset is a custody handle for one indivisible asset unit. It is produced
// only by AssetCustody.Take and must be consumed exactly once by Return.
// Holding an Asset value means the marketplace currently has custody.
type Asset struct {
	id string
}

// ID reports which asset this handle holds.
func (a Asset) ID() string { return a.id }

// RoyaltyPolicy routes a fraction of every settlement to a fixed payee.
// A zero Denominator means the asset carries no royalty.
type RoyaltyPolicy struct {
	Payee       string `json:"payee"`
	Numerator   int64  `json:"numerator"`
	Denominator int64  `json:"denominator"`
}

// AssetCustody moves unique assets in and out of marketplace custody.
type AssetCustody interface {
	// Take debits the asset from owner into marketplace custody.
	// Fails with ErrNotOwner if owner does not currently hold it.
	Take(ctx context.Context, assetID, owner string) (Asset, error)
	// Return releases a held asset to the given recipient, consuming the handle.
	Return(ctx context.Context, asset Asset, to string) error
	// RoyaltyPolicy looks up the asset's royalty terms.
	RoyaltyPolicy(ctx context.Context, assetID string) (RoyaltyPolicy, error)
}

// LockedFunds is currency debited from an account and held by the
// marketplace, pending refund or settlement. Produced only by Debit and
// consumed exactly once by Credit or Release.
type LockedFunds struct {
	owner  string
	amount int64
}

// Amount reports the locked amount in minor units.
func (f LockedFunds) Amount() int64 { return f.amount }

// Owner reports the account the funds were debited from.
func (f LockedFunds) Owner() string { return f.owner }

// Leg is one recipient of a multi-party settlement.
type Leg struct {
	To     string
	Amount int64
}

// CurrencyLedger mutates fungible balances for a single currency.
//
// PayOut and Release exist so a settlement that pays several parties commits
// as one unit: either every leg lands or none does. Individual Transfer calls
// could leave a half-paid settlement behind on failure, which the lifecycle
// engine is not allowed to produce.
type CurrencyLedger interface {
	// Currency reports the currency tag this ledger is bound to.
	Currency() string
	// Debit moves amount out of account into marketplace escrow.
	Debit(ctx context.Context, account string, amount int64) (LockedFunds, error)
	// Credit releases locked funds into the given account.
	Credit(ctx context.Context, account string, funds LockedFunds) error
	// Transfer moves amount between two live balances.
	Transfer(ctx context.Context, from, to string, amount int64) error
	// PayOut atomically transfers the sum of legs out of from's live balance.
	PayOut(ctx context.Context, from string, legs []Leg) error
	// Release atomically pays locked funds out to the given legs.
	// The legs must sum to exactly funds.Amount().
	Release(ctx context.Context, funds LockedFunds, legs []Leg) error
}
