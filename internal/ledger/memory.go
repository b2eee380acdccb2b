package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryCustody is an in-process asset ledger. It backs the engine tests and
// the dev-mode server when no database is configured.
type MemoryCustody struct {
	mu      sync.Mutex
	owners  map[string]string // asset id -> owner account
	royalty map[string]RoyaltyPolicy
	held    map[string]bool // asset ids currently in marketplace custody
}

func NewMemoryCustody() *MemoryCustody {
	return &MemoryCustody{
		owners:  make(map[string]string),
		royalty: make(map[string]RoyaltyPolicy),
		held:    make(map[string]bool),
	}
}

// Mint registers a new asset owned by the given account.
func (c *MemoryCustody) Mint(assetID, owner string, policy RoyaltyPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[assetID] = owner
	c.royalty[assetID] = policy
}

// Held reports whether the asset is currently in marketplace custody.
func (c *MemoryCustody) Held(assetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held[assetID]
}

// OwnerOf reports the current owner, for assertions in tests.
func (c *MemoryCustody) OwnerOf(assetID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.owners[assetID]
	return o, ok
}

func (c *MemoryCustody) Take(ctx context.Context, assetID, owner string) (Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.owners[assetID]
	if !ok {
		return Asset{}, fmt.Errorf("take %q: %w", assetID, ErrAssetNotFound)
	}
	if cur != owner || c.held[assetID] {
		return Asset{}, fmt.Errorf("take %q: %w", assetID, ErrNotOwner)
	}
	c.held[assetID] = true
	return Asset{id: assetID}, nil
}

func (c *MemoryCustody) Return(ctx context.Context, asset Asset, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.held[asset.id] {
		return fmt.Errorf("return %q: not in custody", asset.id)
	}
	delete(c.held, asset.id)
	c.owners[asset.id] = to
	return nil
}

func (c *MemoryCustody) RoyaltyPolicy(ctx context.Context, assetID string) (RoyaltyPolicy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owners[assetID]; !ok {
		return RoyaltyPolicy{}, fmt.Errorf("royalty %q: %w", assetID, ErrAssetNotFound)
	}
	return c.royalty[assetID], nil
}

// MemoryLedger is an in-process currency ledger for one currency.
type MemoryLedger struct {
	currency string

	mu       sync.Mutex
	balances map[string]int64
	escrowed map[string]int64 // account -> total currently locked
}

func NewMemoryLedger(currency string) *MemoryLedger {
	return &MemoryLedger{
		currency: currency,
		balances: make(map[string]int64),
		escrowed: make(map[string]int64),
	}
}

// Deposit credits an account out of thin air. Test and dev seeding only.
func (l *MemoryLedger) Deposit(account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Balance reports an account's live balance.
func (l *MemoryLedger) Balance(account string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// Escrowed reports how much of an account's currency is locked.
func (l *MemoryLedger) Escrowed(account string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.escrowed[account]
}

func (l *MemoryLedger) Currency() string { return l.currency }

func (l *MemoryLedger) Debit(ctx context.Context, account string, amount int64) (LockedFunds, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[account] < amount {
		return LockedFunds{}, fmt.Errorf("debit %d from %s: %w", amount, account, ErrInsufficientBalance)
	}
	l.balances[account] -= amount
	l.escrowed[account] += amount
	return LockedFunds{owner: account, amount: amount}, nil
}

func (l *MemoryLedger) Credit(ctx context.Context, account string, funds LockedFunds) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.escrowed[funds.owner] -= funds.amount
	l.balances[account] += funds.amount
	return nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, ErrInsufficientBalance)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

func (l *MemoryLedger) PayOut(ctx context.Context, from string, legs []Leg) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, leg := range legs {
		total += leg.Amount
	}
	if l.balances[from] < total {
		return fmt.Errorf("payout %d from %s: %w", total, from, ErrInsufficientBalance)
	}
	l.balances[from] -= total
	for _, leg := range legs {
		l.balances[leg.To] += leg.Amount
	}
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, funds LockedFunds, legs []Leg) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, leg := range legs {
		total += leg.Amount
	}
	if total != funds.amount {
		return fmt.Errorf("release: legs sum %d != locked %d", total, funds.amount)
	}
	l.escrowed[funds.owner] -= funds.amount
	for _, leg := range legs {
		l.balances[leg.To] += leg.Amount
	}
	return nil
}
