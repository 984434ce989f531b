package security

import (
	"testing"
	"time"
)

func TestBudgetCheckAndCharge(t *testing.T) {
	b := NewBudget(100, 0)

	if status := b.CheckAndCharge(60); status != Within {
		t.Fatalf("first charge: got %v, want Within", status)
	}
	if status := b.CheckAndCharge(30); status != Within {
		t.Fatalf("second charge: got %v, want Within", status)
	}
	if got := b.DailyUsed(); got != 90 {
		t.Fatalf("DailyUsed() = %d, want 90", got)
	}
	// Charging 20 more would cross the 100 limit: rejected, nothing charged.
	if status := b.CheckAndCharge(20); status != Exceeded {
		t.Fatalf("over-limit charge: got %v, want Exceeded", status)
	}
	if got := b.DailyUsed(); got != 90 {
		t.Fatalf("DailyUsed() after rejected charge = %d, want unchanged 90", got)
	}
	// Exactly at the limit is allowed.
	if status := b.CheckAndCharge(10); status != Within {
		t.Fatalf("exact-limit charge: got %v, want Within", status)
	}
}

func TestBudgetUnlimited(t *testing.T) {
	b := NewBudget(0, 0)
	if status := b.CheckAndCharge(1_000_000); status != Within {
		t.Fatalf("unlimited charge: got %v, want Within", status)
	}
}

func TestBudgetDailyResetAtUTCBoundary(t *testing.T) {
	b := NewBudget(100, 0)
	day1 := time.Date(2026, 7, 30, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 31, 0, 0, 1, 0, time.UTC)

	if status := b.checkAndChargeAt(90, day1); status != Within {
		t.Fatalf("day1 charge: got %v", status)
	}
	// Same day, would exceed.
	if status := b.checkAndChargeAt(20, day1); status != Exceeded {
		t.Fatalf("day1 over-limit: got %v, want Exceeded", status)
	}
	// Next day: counter resets to 0 on first access.
	if status := b.checkAndChargeAt(50, day2); status != Within {
		t.Fatalf("day2 charge after reset: got %v, want Within", status)
	}
}

func TestBudgetSetDailyLimitHotReload(t *testing.T) {
	b := NewBudget(10, 0)
	b.CheckAndCharge(10)
	if status := b.CheckAndCharge(1); status != Exceeded {
		t.Fatalf("expected Exceeded before reload")
	}
	b.SetDailyLimit(0) // now unlimited
	if status := b.CheckAndCharge(1_000); status != Within {
		t.Fatalf("expected Within after raising to unlimited")
	}
}

func TestBudgetBumpTurn(t *testing.T) {
	b := NewBudget(0, 2)
	if status := b.BumpTurn("s1"); status != Within {
		t.Fatalf("turn 1: got %v", status)
	}
	if status := b.BumpTurn("s1"); status != Within {
		t.Fatalf("turn 2: got %v", status)
	}
	if status := b.BumpTurn("s1"); status != Exceeded {
		t.Fatalf("turn 3: got %v, want Exceeded", status)
	}
	// A different session has its own independent counter.
	if status := b.BumpTurn("s2"); status != Within {
		t.Fatalf("other session turn 1: got %v", status)
	}
	b.ResetSession("s1")
	if status := b.BumpTurn("s1"); status != Within {
		t.Fatalf("turn after reset: got %v, want Within", status)
	}
}
