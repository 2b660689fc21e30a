package velocity

import (
	"context"
	"sync"
	"time"
)

// windowEntry records a single payment for sliding-window analysis.
type windowEntry struct {
	To        string
	Amount    float64
	Timestamp time.Time
}

type accountWindow struct {
	mu      sync.Mutex
	entries []windowEntry
}

// MemoryWindow keeps per-source-account sliding windows in process memory.
type MemoryWindow struct {
	cfg     Config
	windows sync.Map // map[string]*accountWindow
}

// NewMemoryWindow creates an in-memory velocity window.
func NewMemoryWindow(cfg Config) *MemoryWindow {
	return &MemoryWindow{cfg: cfg}
}

// RecordAndScore appends the payment to the account's window and returns the
// velocity bump for the state of the window including this payment.
func (m *MemoryWindow) RecordAndScore(ctx context.Context, srcAccount, dstAccount string, amount float64, firstToPayee bool) (int, []string, error) {
	w := m.getWindow(srcAccount)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.entries = append(w.entries, windowEntry{To: dstAccount, Amount: amount, Timestamp: now})
	pruneWindow(w, now)

	payees := make(map[string]bool, len(w.entries))
	total := 0.0
	for _, e := range w.entries {
		payees[e.To] = true
		total += e.Amount
	}

	score, reasons := m.cfg.score(len(payees), total, firstToPayee)
	return score, reasons, nil
}

func (m *MemoryWindow) getWindow(account string) *accountWindow {
	v, _ := m.windows.LoadOrStore(account, &accountWindow{})
	return v.(*accountWindow)
}

// pruneWindow removes entries older than the window and caps size
// (caller holds the lock).
func pruneWindow(w *accountWindow, now time.Time) {
	cutoff := now.Add(-WindowDuration)
	start := 0
	for start < len(w.entries) && w.entries[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		w.entries = w.entries[start:]
	}
	if len(w.entries) > maxWindowSize {
		w.entries = w.entries[len(w.entries)-maxWindowSize:]
	}
}
