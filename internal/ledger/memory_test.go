package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryLedger_DebitCredit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger("credits")
	l.Deposit("bob", 500)

	funds, err := l.Debit(ctx, "bob", 300)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if funds.Amount() != 300 || funds.Owner() != "bob" {
		t.Errorf("funds = %s/%d, want bob/300", funds.Owner(), funds.Amount())
	}
	if got := l.Balance("bob"); got != 200 {
		t.Errorf("balance = %d, want 200", got)
	}
	if got := l.Escrowed("bob"); got != 300 {
		t.Errorf("escrowed = %d, want 300", got)
	}

	if err := l.Credit(ctx, "bob", funds); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if got := l.Balance("bob"); got != 500 {
		t.Errorf("balance after refund = %d, want 500", got)
	}
	if got := l.Escrowed("bob"); got != 0 {
		t.Errorf("escrowed after refund = %d, want 0", got)
	}
}

func TestMemoryLedger_DebitInsufficient(t *testing.T) {
	l := NewMemoryLedger("credits")
	l.Deposit("bob", 100)
	_, err := l.Debit(context.Background(), "bob", 101)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := l.Balance("bob"); got != 100 {
		t.Errorf("balance = %d, want 100 untouched", got)
	}
}

func TestMemoryLedger_PayOut(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger("credits")
	l.Deposit("buyer", 1000)

	legs := []Leg{
		{To: "artist", Amount: 100},
		{To: "operator", Amount: 20},
		{To: "seller", Amount: 880},
	}
	if err := l.PayOut(ctx, "buyer", legs); err != nil {
		t.Fatalf("PayOut: %v", err)
	}
	if got := l.Balance("buyer"); got != 0 {
		t.Errorf("buyer = %d, want 0", got)
	}
	for _, leg := range legs {
		if got := l.Balance(leg.To); got != leg.Amount {
			t.Errorf("%s = %d, want %d", leg.To, got, leg.Amount)
		}
	}

	// All-or-nothing on shortfall.
	l.Deposit("poor", 50)
	err := l.PayOut(ctx, "poor", []Leg{{To: "a", Amount: 30}, {To: "b", Amount: 30}})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := l.Balance("poor"); got != 50 {
		t.Errorf("poor = %d, want 50 untouched", got)
	}
	if got := l.Balance("a"); got != 0 {
		t.Errorf("a = %d, want 0", got)
	}
}

func TestMemoryLedger_Release(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger("credits")
	l.Deposit("bidder", 1000)
	funds, err := l.Debit(ctx, "bidder", 1000)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}

	// Legs must account for every locked unit.
	if err := l.Release(ctx, funds, []Leg{{To: "seller", Amount: 999}}); err == nil {
		t.Fatal("short release should fail")
	}

	legs := []Leg{
		{To: "artist", Amount: 100},
		{To: "operator", Amount: 20},
		{To: "seller", Amount: 880},
	}
	if err := l.Release(ctx, funds, legs); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := l.Escrowed("bidder"); got != 0 {
		t.Errorf("escrowed = %d, want 0", got)
	}
	if got := l.Balance("seller"); got != 880 {
		t.Errorf("seller = %d, want 880", got)
	}
}

func TestMemoryCustody_TakeReturn(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCustody()
	c.Mint("relic-1", "alice", RoyaltyPolicy{Payee: "artist", Numerator: 1, Denominator: 20})

	if _, err := c.Take(ctx, "relic-1", "bob"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("take by non-owner = %v, want ErrNotOwner", err)
	}
	if _, err := c.Take(ctx, "missing", "alice"); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("take missing = %v, want ErrAssetNotFound", err)
	}

	asset, err := c.Take(ctx, "relic-1", "alice")
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if asset.ID() != "relic-1" {
		t.Errorf("asset id = %q, want relic-1", asset.ID())
	}
	// Held assets cannot be taken again, even by the owner of record.
	if _, err := c.Take(ctx, "relic-1", "alice"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("take while held = %v, want ErrNotOwner", err)
	}

	if err := c.Return(ctx, asset, "bob"); err != nil {
		t.Fatalf("Return: %v", err)
	}
	if owner, _ := c.OwnerOf("relic-1"); owner != "bob" {
		t.Errorf("owner = %q, want bob", owner)
	}
	// The handle is consumed; returning it twice fails.
	if err := c.Return(ctx, asset, "carol"); err == nil {
		t.Error("double return should fail")
	}

	p, err := c.RoyaltyPolicy(ctx, "relic-1")
	if err != nil {
		t.Fatalf("RoyaltyPolicy: %v", err)
	}
	if p.Payee != "artist" || p.Numerator != 1 || p.Denominator != 20 {
		t.Errorf("policy = %+v", p)
	}
}
