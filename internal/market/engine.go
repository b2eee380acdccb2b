package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sudo-init-do/relicmarket/internal/events"
	"github.com/sudo-init-do/relicmarket/internal/ledger"
)

// IDSource issues listing ids. Ids must be unique and monotonically
// non-decreasing over the marketplace's lifetime; they are correlation
// tokens, nothing orders on them.
type IDSource func(ctx context.Context) (uint64, error)

// Engine drives the listing lifecycle: create, bid, re-price, cancel,
// fixed-price purchase and auction settlement. Every public method executes
// under one mutex, so no two operations ever interleave and a failed
// precondition can never leave a half-applied transition behind.
type Engine struct {
	mu sync.Mutex

	registry *Registry
	store    *listingStore
	escrow   *escrowTable
	custody  ledger.AssetCustody
	coins    ledger.CurrencyLedger
	sink     events.Sink
	log      *zap.Logger

	now    func() time.Time
	nextID IDSource
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Tests use this to walk auction windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDSource overrides listing id issuance. The server wires a database
// sequence here so ids stay monotonic across restarts.
func WithIDSource(src IDSource) Option {
	return func(e *Engine) { e.nextID = src }
}

// WithLogger sets the engine's logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(registry *Registry, custody ledger.AssetCustody, coins ledger.CurrencyLedger, sink events.Sink, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		store:    newListingStore(),
		escrow:   newEscrowTable(),
		custody:  custody,
		coins:    coins,
		sink:     sink,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	var counter uint64
	e.nextID = func(context.Context) (uint64, error) {
		counter++
		return counter, nil
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the provisioned market configuration.
func (e *Engine) Registry() *Registry { return e.registry }

// CreateListing takes the asset from the caller into marketplace custody and
// records a new listing for it. Fails if the caller does not own the asset
// or the asset is already listed.
func (e *Engine) CreateListing(ctx context.Context, caller, assetID string, startingPrice int64, duration time.Duration, startedAt time.Time, isAuction bool) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Initialized() {
		return View{}, ErrNotInitialized
	}
	if startingPrice < 0 {
		return View{}, fmt.Errorf("create listing: negative price %d", startingPrice)
	}
	if duration < 0 {
		return View{}, fmt.Errorf("create listing: negative duration %s", duration)
	}
	if e.store.contains(assetID) {
		return View{}, fmt.Errorf("asset %q: %w", assetID, ErrAlreadyListed)
	}

	royalty, err := e.custody.RoyaltyPolicy(ctx, assetID)
	if err != nil {
		return View{}, err
	}
	asset, err := e.custody.Take(ctx, assetID, caller)
	if err != nil {
		return View{}, err
	}
	id, err := e.nextID(ctx)
	if err != nil {
		// Undo the custody move so the asset stays with the seller.
		if rerr := e.custody.Return(ctx, asset, caller); rerr != nil {
			e.log.Error("listing id issue failed and asset return failed",
				zap.String("asset_id", assetID), zap.Error(rerr))
		}
		return View{}, fmt.Errorf("issue listing id: %w", err)
	}

	l := &Listing{
		ListingID:     id,
		AssetID:       assetID,
		Seller:        caller,
		StartingPrice: startingPrice,
		Duration:      duration,
		StartedAt:     startedAt,
		IsAuction:     isAuction,
		held:          asset,
	}
	if err := e.store.insert(l); err != nil {
		// contains() was checked above; insert cannot race under the mutex.
		return View{}, err
	}

	e.sink.Append(ctx, events.Listed{
		ListingID:     id,
		AssetID:       assetID,
		Seller:        caller,
		StartingPrice: startingPrice,
		DurationSecs:  int64(duration / time.Second),
		StartedAt:     startedAt,
		IsAuction:     isAuction,
		Royalty:       royalty,
	})
	return l.view(), nil
}

// CancelListing returns the asset to the seller and removes the listing.
// Only the seller may cancel. If an auction bid is escrowed, the deposit is
// refunded to the bidder before the listing goes away.
func (e *Engine) CancelListing(ctx context.Context, caller, assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Initialized() {
		return ErrNotInitialized
	}
	l, err := e.store.get(assetID)
	if err != nil {
		return err
	}
	if caller != l.Seller {
		return fmt.Errorf("cancel %q: %w", assetID, ErrNotAuthorized)
	}

	if entry, ok := e.escrow.take(assetID); ok {
		if err := e.coins.Credit(ctx, entry.bidder, entry.funds); err != nil {
			// Put the deposit back so it stays claimable.
			_ = e.escrow.lock(entry.bidder, assetID, entry.funds)
			return fmt.Errorf("cancel %q: refund bidder: %w", assetID, err)
		}
	}
	if err := e.custody.Return(ctx, l.held, l.Seller); err != nil {
		return fmt.Errorf("cancel %q: %w", assetID, err)
	}
	if _, err := e.store.remove(assetID); err != nil {
		return err
	}

	e.sink.Append(ctx, events.Delisted{
		ListingID: l.ListingID,
		AssetID:   assetID,
		Seller:    l.Seller,
	})
	return nil
}

// PlaceBid locks the caller's amount in escrow as the new highest bid,
// refunding the previous highest bidder in the same step. Bids are accepted
// while startedAt <= now <= startedAt+duration, inclusive on both ends, and
// must strictly exceed the current highest bid.
func (e *Engine) PlaceBid(ctx context.Context, caller, assetID string, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Initialized() {
		return ErrNotInitialized
	}
	l, err := e.store.get(assetID)
	if err != nil {
		return err
	}
	if !l.IsAuction {
		return fmt.Errorf("bid on %q: %w", assetID, ErrItemNotAuction)
	}
	if caller == l.Seller {
		return fmt.Errorf("bid on %q: %w", assetID, ErrInvalidBuyer)
	}
	if !l.activeAt(e.now()) {
		return fmt.Errorf("bid on %q: %w", assetID, ErrAuctionInactive)
	}
	if amount <= l.HighestPrice {
		return fmt.Errorf("bid %d on %q (highest %d): %w", amount, assetID, l.HighestPrice, ErrInsufficientBid)
	}

	funds, err := e.coins.Debit(ctx, caller, amount)
	if err != nil {
		return err
	}
	if prev, ok := e.escrow.take(assetID); ok {
		if err := e.coins.Credit(ctx, prev.bidder, prev.funds); err != nil {
			// Restore the old deposit and give the new bidder their money back.
			_ = e.escrow.lock(prev.bidder, assetID, prev.funds)
			if cerr := e.coins.Credit(ctx, caller, funds); cerr != nil {
				e.log.Error("bid unwind failed, caller funds stuck in escrow",
					zap.String("asset_id", assetID), zap.String("bidder", caller), zap.Error(cerr))
			}
			return fmt.Errorf("bid on %q: refund outbid bidder: %w", assetID, err)
		}
	}
	if err := e.escrow.lock(caller, assetID, funds); err != nil {
		return err
	}
	l.HighestBidder = caller
	l.HighestPrice = amount

	e.sink.Append(ctx, events.BidPlaced{
		ListingID: l.ListingID,
		AssetID:   assetID,
		Bidder:    caller,
		Amount:    amount,
	})
	return nil
}

// SetPrice re-prices a fixed-price listing. Seller only.
func (e *Engine) SetPrice(ctx context.Context, caller, assetID string, newPrice int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Initialized() {
		return ErrNotInitialized
	}
	l, err := e.store.get(assetID)
	if err != nil {
		return err
	}
	if l.IsAuction {
		return fmt.Errorf("set price on %q: %w", assetID, ErrItemIsAuction)
	}
	if caller != l.Seller {
		return fmt.Errorf("set price on %q: %w", assetID, ErrNotAuthorized)
	}
	if newPrice < 0 {
		return fmt.Errorf("set price on %q: negative price %d", assetID, newPrice)
	}
	l.StartingPrice = newPrice

	e.sink.Append(ctx, events.PriceChanged{
		ListingID: l.ListingID,
		AssetID:   assetID,
		NewPrice:  newPrice,
	})
	return nil
}

// BuyFixedPrice settles a fixed-price listing at its current price: the
// caller pays royalty, operator fee and seller proceeds in one atomic
// disbursement and receives the asset. There is no client-supplied expected
// price; the caller always pays the price on the listing at call time.
func (e *Engine) BuyFixedPrice(ctx context.Context, caller, assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Initialized() {
		return ErrNotInitialized
	}
	l, err := e.store.get(assetID)
	if err != nil {
		return err
	}
	if l.IsAuction {
		return fmt.Errorf("buy %q: %w", assetID, ErrItemIsAuction)
	}
	if caller == l.Seller {
		return fmt.Errorf("buy %q: %w", assetID, ErrInvalidBuyer)
	}

	royalty, err := e.custody.RoyaltyPolicy(ctx, assetID)
	if err != nil {
		return err
	}
	sp, err := computeSplit(l.StartingPrice, e.registry.FeeBps(), royalty)
	if err != nil {
		return err
	}
	legs := sp.legs(e.registry.Operator(), l.Seller)
	if err := e.coins.PayOut(ctx, caller, legs); err != nil {
		return err
	}
	if err := e.custody.Return(ctx, l.held, caller); err != nil {
		// Reverse every leg so the buyer is not charged for an asset
		// they never received; the listing stays live for a retry.
		for _, leg := range legs {
			if terr := e.coins.Transfer(ctx, leg.To, caller, leg.Amount); terr != nil {
				e.log.Error("purchase unwind failed, leg not returned to buyer",
					zap.String("asset_id", assetID), zap.String("from", leg.To),
					zap.Int64("amount", leg.Amount), zap.Error(terr))
			}
		}
		return fmt.Errorf("buy %q: hand over asset: %w", assetID, err)
	}
	if _, err := e.store.remove(assetID); err != nil {
		return err
	}

	e.sink.Append(ctx, events.Bought{
		ListingID: l.ListingID,
		AssetID:   assetID,
		Seller:    l.Seller,
		Buyer:     caller,
		Amount:    sp.SellerProceeds,
	})
	return nil
}

// SettleAuction lets the recorded highest bidder claim a finished auction:
// the asset moves to the winner and the escrowed winning bid is split among
// royalty payee, operator and seller. Claimable only strictly after the
// window closes.
func (e *Engine) SettleAuction(ctx context.Context, caller, assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Initialized() {
		return ErrNotInitialized
	}
	l, err := e.store.get(assetID)
	if err != nil {
		return err
	}
	if !l.IsAuction {
		return fmt.Errorf("settle %q: %w", assetID, ErrItemNotAuction)
	}
	if !l.completeAt(e.now()) {
		return fmt.Errorf("settle %q: %w", assetID, ErrAuctionNotComplete)
	}
	if l.HighestBidder == "" || caller != l.HighestBidder {
		return fmt.Errorf("settle %q: %w", assetID, ErrNotClaimable)
	}
	entry, ok := e.escrow.peek(assetID)
	if !ok || entry.bidder != caller {
		return fmt.Errorf("settle %q: escrow missing: %w", assetID, ErrNotClaimable)
	}

	royalty, err := e.custody.RoyaltyPolicy(ctx, assetID)
	if err != nil {
		return err
	}
	// The split is computed from the escrowed winning bid, not the ask.
	sp, err := computeSplit(entry.funds.Amount(), e.registry.FeeBps(), royalty)
	if err != nil {
		return err
	}

	// Disburse before consuming anything: a failed release leaves the
	// deposit locked, the listing in the store and the asset in custody,
	// so the winner can simply retry.
	if err := e.coins.Release(ctx, entry.funds, sp.legs(e.registry.Operator(), l.Seller)); err != nil {
		return fmt.Errorf("settle %q: disburse: %w", assetID, err)
	}
	e.escrow.take(assetID)
	if err := e.custody.Return(ctx, l.held, caller); err != nil {
		e.log.Error("asset hand-over failed after disbursement",
			zap.String("asset_id", assetID), zap.String("winner", caller), zap.Error(err))
		return fmt.Errorf("settle %q: hand over asset: %w", assetID, err)
	}
	if _, err := e.store.remove(assetID); err != nil {
		return err
	}

	e.sink.Append(ctx, events.TokenClaimed{
		ListingID: l.ListingID,
		AssetID:   assetID,
		Winner:    caller,
	})
	e.sink.Append(ctx, events.CoinsClaimed{
		ListingID:      l.ListingID,
		AssetID:        assetID,
		Seller:         l.Seller,
		SellerProceeds: sp.SellerProceeds,
		ListingFee:     sp.ListingFee,
		RoyaltyFee:     sp.RoyaltyFee,
	})
	return nil
}

// GetListing returns the listing for an asset, if one is active.
func (e *Engine) GetListing(assetID string) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.store.get(assetID)
	if err != nil {
		return View{}, err
	}
	return l.view(), nil
}

// Listings returns all active listings ordered by listing id.
func (e *Engine) Listings() []View {
	e.mu.Lock()
	defer e.mu.Unlock()
	ls := e.store.all()
	sort.Slice(ls, func(i, j int) bool { return ls[i].ListingID < ls[j].ListingID })
	out := make([]View, len(ls))
	for i, l := range ls {
		out[i] = l.view()
	}
	return out
}
