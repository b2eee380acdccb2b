package market

import (
	"context"
	"testing"

	"github.com/sudo-init-do/relicmarket/internal/ledger"
)

func lockedFunds(t *testing.T, l *ledger.MemoryLedger, account string, amount int64) ledger.LockedFunds {
	t.Helper()
	l.Deposit(account, amount)
	funds, err := l.Debit(context.Background(), account, amount)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	return funds
}

func TestEscrowTable_SingleEntryPerAsset(t *testing.T) {
	coins := ledger.NewMemoryLedger("credits")
	tab := newEscrowTable()

	if err := tab.lock("bob", "relic-1", lockedFunds(t, coins, "bob", 100)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	// A second deposit for the same asset without taking the first out is an
	// invariant violation, not an overwrite.
	if err := tab.lock("carol", "relic-1", lockedFunds(t, coins, "carol", 200)); err == nil {
		t.Fatal("second lock on same asset should fail")
	}

	entry, ok := tab.peek("relic-1")
	if !ok {
		t.Fatal("entry should exist")
	}
	if entry.bidder != "bob" || entry.funds.Amount() != 100 {
		t.Errorf("entry = %s/%d, want bob/100", entry.bidder, entry.funds.Amount())
	}
}

func TestEscrowTable_TakeRemoves(t *testing.T) {
	coins := ledger.NewMemoryLedger("credits")
	tab := newEscrowTable()

	if err := tab.lock("bob", "relic-1", lockedFunds(t, coins, "bob", 100)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	entry, ok := tab.take("relic-1")
	if !ok {
		t.Fatal("take should find the entry")
	}
	if entry.bidder != "bob" {
		t.Errorf("bidder = %q, want bob", entry.bidder)
	}
	// use-once: a second take finds nothing
	if _, ok := tab.take("relic-1"); ok {
		t.Error("second take should find nothing")
	}
	if _, ok := tab.peek("relic-1"); ok {
		t.Error("peek after take should find nothing")
	}
}
