// Package market implements the listing/auction/escrow state machine: the
// lifecycle of a listing from creation through bidding, cancellation,
// fixed-price purchase or auction settlement, plus the escrow mechanics that
// hold bid deposits and listed assets in custody.
//
// All shared state (listing store, escrow table, registry) lives behind the
// Engine, and every public operation runs under a single mutex. Operations
// either complete fully or fail with balances and custody untouched; custody
// and balance movement itself is delegated to the ledger adapters.
package market
