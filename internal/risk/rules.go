package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/scamshield/scamshield/internal/idgen"
)

// Explainable rule thresholds and weights.
const (
	amountWarn = 5000.0
	amountHold = 10000.0

	weightAmountHigh     = 25 // amount > amountWarn
	weightAmountVeryHigh = 35 // amount > amountHold
	weightFirstToPayee   = 15
	weightCoPMismatch    = 20 // supplied payee name does not match records
	weightWatchlist      = 30 // destination on watchlist
)

// Watchlist answers whether a destination account is on the watch set.
type Watchlist interface {
	Contains(ctx context.Context, account string) (bool, error)
}

// VelocityWindow records the payment in a sliding window and returns an
// extra score with reasons for spikes (many new payees, large totals).
type VelocityWindow interface {
	RecordAndScore(ctx context.Context, srcAccount, dstAccount string, amount float64, firstToPayee bool) (int, []string, error)
}

// RuleScorer is the local, explainable scoring engine. It is the default
// Scorer when no remote model endpoint is configured.
type RuleScorer struct {
	policy    Policy
	cop       *CoPChecker
	watchlist Watchlist
	velocity  VelocityWindow
	store     Store
}

// NewRuleScorer creates a rule-based scorer with the given policy.
func NewRuleScorer(policy Policy) *RuleScorer {
	return &RuleScorer{policy: policy}
}

// WithCoP attaches a Confirmation of Payee checker.
func (r *RuleScorer) WithCoP(c *CoPChecker) *RuleScorer {
	r.cop = c
	return r
}

// WithWatchlist attaches a destination watchlist.
func (r *RuleScorer) WithWatchlist(w Watchlist) *RuleScorer {
	r.watchlist = w
	return r
}

// WithVelocity attaches a per-account velocity window.
func (r *RuleScorer) WithVelocity(v VelocityWindow) *RuleScorer {
	r.velocity = v
	return r
}

// WithStore attaches an audit store for produced assessments.
func (r *RuleScorer) WithStore(s Store) *RuleScorer {
	r.store = s
	return r
}

// Score evaluates the payment against all rules. It never fails open: signal
// sources that error are skipped, the rules that did run still produce a
// result.
func (r *RuleScorer) Score(ctx context.Context, p *Payment) (*Assessment, error) {
	score := 0
	var reasons []string

	// 1) Amount rules
	switch {
	case p.Amount > amountHold:
		score += weightAmountVeryHigh
		reasons = append(reasons, "Very high amount")
	case p.Amount > amountWarn:
		score += weightAmountHigh
		reasons = append(reasons, "High amount")
	}

	// 2) First payment to this beneficiary
	if p.FirstToPayee {
		score += weightFirstToPayee
		reasons = append(reasons, "First payment to beneficiary")
	}

	// 3) Confirmation of Payee
	if r.cop != nil {
		ok, msg := r.cop.Check(p.DstAccount, PayeeNameFromDescription(p.Description))
		if !ok {
			score += weightCoPMismatch
			reasons = append(reasons, "Name/account mismatch (CoP)", fmt.Sprintf("CoP: %s", msg))
		}
	}

	// 4) Watchlist
	if r.watchlist != nil {
		if listed, err := r.watchlist.Contains(ctx, p.DstAccount); err == nil && listed {
			score += weightWatchlist
			reasons = append(reasons, "Beneficiary on watchlist")
		}
	}

	// 5) Text signals in the description
	if ts, tsReasons := TextRisk(p.Description); ts > 0 {
		score += ts
		reasons = append(reasons, tsReasons...)
	}

	// 6) Velocity window
	if r.velocity != nil {
		vs, vReasons, err := r.velocity.RecordAndScore(ctx, p.SrcAccount, p.DstAccount, p.Amount, p.FirstToPayee)
		if err == nil && vs > 0 {
			score += vs
			reasons = append(reasons, vReasons...)
		}
	}

	final := float64(score)
	if final > 100 {
		final = 100
	}
	level := r.policy.Bucket(final)

	a := &Assessment{
		ID:             idgen.WithPrefix("risk_"),
		TransactionID:  p.TransactionID,
		Score:          final,
		Level:          level,
		Reasons:        reasons,
		CooloffMinutes: r.policy.Cooloff(level),
		EvaluatedAt:    time.Now(),
	}

	// Persist asynchronously (best-effort audit trail)
	if r.store != nil {
		go func() {
			_ = r.store.Record(context.Background(), a)
		}()
	}

	return a, nil
}
