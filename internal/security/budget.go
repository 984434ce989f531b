package security

import (
	"sync"
	"sync/atomic"
	"time"
)

// unlimited is the sentinel stored in a limit field to mean "no limit".
const unlimited = -1

// BudgetStatus is the outcome of a budget check.
type BudgetStatus int

const (
	Within BudgetStatus = iota
	Exceeded
)

// Budget tracks daily token usage and per-session turn counts. Counters are
// lock-free so they can be read and updated from synchronous callbacks
// inside the LLM turn loop without suspending onto the
// store's worker pool. Per-session turn counters live in a sync.Map keyed
// by session id; the map itself is the only non-atomic surface, and it is
// only written to insert a fresh *atomic.Int64 the first time a session is
// seen and to delete a session's counter in ResetSession.
type Budget struct {
	dailyLimit  atomic.Int64 // unlimited sentinel when unset
	dailyUsed   atomic.Int64
	dailyDay    atomic.Int64 // days since epoch of dailyUsed's last reset

	turnLimit atomic.Int64 // unlimited sentinel when unset
	turns     sync.Map     // session id -> *atomic.Int64
}

// NewBudget builds a Budget with the given limits. A limit <= 0 means unlimited.
func NewBudget(dailyTokenLimit, turnsPerSessionLimit int64) *Budget {
	b := &Budget{}
	b.SetDailyLimit(dailyTokenLimit)
	b.SetTurnLimit(turnsPerSessionLimit)
	b.dailyDay.Store(dayNumber(time.Now().UTC()))
	return b
}

func dayNumber(t time.Time) int64 {
	return t.Unix() / 86400
}

// SetDailyLimit hot-reloads the daily token limit.
func (b *Budget) SetDailyLimit(n int64) {
	if n <= 0 {
		n = unlimited
	}
	b.dailyLimit.Store(n)
}

// SetTurnLimit hot-reloads the per-session turn limit.
func (b *Budget) SetTurnLimit(n int64) {
	if n <= 0 {
		n = unlimited
	}
	b.turnLimit.Store(n)
}

// resetIfNewDay zeroes dailyUsed the first time it observes a UTC day
// change, so the counter resets on the first operation of each new day
// without needing a timer.
func (b *Budget) resetIfNewDay(now time.Time) {
	today := dayNumber(now)
	if b.dailyDay.Swap(today) != today {
		b.dailyUsed.Store(0)
	}
}

// CheckAndCharge atomically adds tokens to the daily counter unless doing so
// would cross the daily limit, in which case it charges nothing and returns
// Exceeded.
func (b *Budget) CheckAndCharge(tokens int64) BudgetStatus {
	return b.checkAndChargeAt(tokens, time.Now().UTC())
}

func (b *Budget) checkAndChargeAt(tokens int64, now time.Time) BudgetStatus {
	b.resetIfNewDay(now)
	limit := b.dailyLimit.Load()
	for {
		used := b.dailyUsed.Load()
		if limit != unlimited && used+tokens > limit {
			return Exceeded
		}
		if b.dailyUsed.CompareAndSwap(used, used+tokens) {
			return Within
		}
	}
}

// DailyUsed returns the current daily counter (used by tests).
func (b *Budget) DailyUsed() int64 {
	b.resetIfNewDay(time.Now().UTC())
	return b.dailyUsed.Load()
}

// BumpTurn increments session's turn counter and reports Exceeded if the
// limit was already reached before this call (the turn that would cross the
// limit is rejected, not silently allowed through).
func (b *Budget) BumpTurn(session string) BudgetStatus {
	limit := b.turnLimit.Load()
	counterAny, _ := b.turns.LoadOrStore(session, new(atomic.Int64))
	counter := counterAny.(*atomic.Int64)

	for {
		cur := counter.Load()
		if limit != unlimited && cur >= limit {
			return Exceeded
		}
		if counter.CompareAndSwap(cur, cur+1) {
			return Within
		}
	}
}

// ResetSession clears a session's turn counter (used on session switch away
// from a session, and by tests).
func (b *Budget) ResetSession(session string) {
	b.turns.Delete(session)
}
