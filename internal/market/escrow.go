package market

import (
	"fmt"

	"github.com/sudo-init-do/relicmarket/internal/ledger"
)

// escrowEntry is one bidder's locked deposit against one asset.
type escrowEntry struct {
	bidder string
	funds  ledger.LockedFunds
}

// escrowTable tracks locked bid deposits, at most one live entry per asset
// id. An entry is removed in the same step that hands its funds out, so no
// deposit can ever be read twice.
//
// Not safe for concurrent use on its own; the engine serializes access.
type escrowTable struct {
	byAsset map[string]escrowEntry
}

func newEscrowTable() *escrowTable {
	return &escrowTable{byAsset: make(map[string]escrowEntry)}
}

// lock records a deposit for the asset. The previous high bidder's entry
// must already have been taken out; a leftover entry means the engine
// skipped a refund, which is never recoverable silently.
func (t *escrowTable) lock(bidder, assetID string, funds ledger.LockedFunds) error {
	if prev, ok := t.byAsset[assetID]; ok {
		return fmt.Errorf("escrow: asset %q already holds a deposit for %s", assetID, prev.bidder)
	}
	t.byAsset[assetID] = escrowEntry{bidder: bidder, funds: funds}
	return nil
}

// take removes and returns the entry for the asset, if any.
func (t *escrowTable) take(assetID string) (escrowEntry, bool) {
	e, ok := t.byAsset[assetID]
	if ok {
		delete(t.byAsset, assetID)
	}
	return e, ok
}

// peek reports the entry without removing it.
func (t *escrowTable) peek(assetID string) (escrowEntry, bool) {
	e, ok := t.byAsset[assetID]
	return e, ok
}
