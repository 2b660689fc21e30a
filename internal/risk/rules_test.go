package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWatchlist struct {
	listed map[string]bool
	err    error
}

func (s *stubWatchlist) Contains(ctx context.Context, account string) (bool, error) {
	return s.listed[account], s.err
}

type stubVelocity struct {
	score   int
	reasons []string
	err     error
}

func (s *stubVelocity) RecordAndScore(ctx context.Context, src, dst string, amount float64, first bool) (int, []string, error) {
	return s.score, s.reasons, s.err
}

func basePayment() *Payment {
	return &Payment{
		TransactionID: "tx_1",
		SrcAccount:    "GB29NWBK60161331926819",
		DstAccount:    "DE89370400440532013000",
		Amount:        100,
		Currency:      "GBP",
		Channel:       "web",
	}
}

func TestRuleScorer_SmallRoutinePaymentIsLow(t *testing.T) {
	scorer := NewRuleScorer(DefaultPolicy())

	a, err := scorer.Score(context.Background(), basePayment())
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Score)
	assert.Equal(t, LevelLow, a.Level)
	assert.Empty(t, a.Reasons)
	assert.Contains(t, a.ID, "risk_")
	assert.Equal(t, "tx_1", a.TransactionID)
}

func TestRuleScorer_AmountBands(t *testing.T) {
	scorer := NewRuleScorer(DefaultPolicy())
	ctx := context.Background()

	p := basePayment()
	p.Amount = 6000
	a, err := scorer.Score(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 25.0, a.Score)
	assert.Contains(t, a.Reasons, "High amount")

	p.Amount = 20000
	a, err = scorer.Score(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 35.0, a.Score)
	assert.Contains(t, a.Reasons, "Very high amount")
	assert.Equal(t, LevelMedium, a.Level)
}

func TestRuleScorer_FirstToPayeeAndWatchlistStack(t *testing.T) {
	wl := &stubWatchlist{listed: map[string]bool{"DE89370400440532013000": true}}
	scorer := NewRuleScorer(DefaultPolicy()).WithWatchlist(wl)

	p := basePayment()
	p.Amount = 20000
	p.FirstToPayee = true
	a, err := scorer.Score(context.Background(), p)
	require.NoError(t, err)

	// 35 amount + 15 first payee + 30 watchlist
	assert.Equal(t, 80.0, a.Score)
	assert.Equal(t, LevelHigh, a.Level)
	assert.Contains(t, a.Reasons, "Beneficiary on watchlist")
	assert.Equal(t, 30, a.CooloffMinutes)
}

func TestRuleScorer_CoPMismatch(t *testing.T) {
	cop := NewCoPChecker()
	cop.RegisterPayee("DE89370400440532013000", "Acme GmbH")
	scorer := NewRuleScorer(DefaultPolicy()).WithCoP(cop)

	p := basePayment()
	p.Description = "invoice 42 payee: Evil Corp"
	a, err := scorer.Score(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 20.0, a.Score)
	assert.Contains(t, a.Reasons, "Name/account mismatch (CoP)")

	// Matching name raises nothing.
	p.Description = "invoice 42 payee: acme gmbh"
	a, err = scorer.Score(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Score)
}

func TestRuleScorer_VelocityErrorsAreSkipped(t *testing.T) {
	scorer := NewRuleScorer(DefaultPolicy()).
		WithVelocity(&stubVelocity{score: 25, reasons: []string{"Velocity spike"}, err: assert.AnError})

	a, err := scorer.Score(context.Background(), basePayment())
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Score, "failed signal source must not contribute")
}

func TestRuleScorer_ScoreIsCappedAt100(t *testing.T) {
	wl := &stubWatchlist{listed: map[string]bool{"DE89370400440532013000": true}}
	scorer := NewRuleScorer(DefaultPolicy()).
		WithWatchlist(wl).
		WithVelocity(&stubVelocity{score: 40, reasons: []string{"Velocity spike"}})

	p := basePayment()
	p.Amount = 50000
	p.FirstToPayee = true
	p.Description = "urgent crypto investment"
	a, err := scorer.Score(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 100.0, a.Score)
	assert.Equal(t, LevelHigh, a.Level)
}

func TestPolicy_Bucket(t *testing.T) {
	pol := DefaultPolicy()
	assert.Equal(t, LevelLow, pol.Bucket(0))
	assert.Equal(t, LevelLow, pol.Bucket(29.9))
	assert.Equal(t, LevelMedium, pol.Bucket(30))
	assert.Equal(t, LevelMedium, pol.Bucket(59.9))
	assert.Equal(t, LevelHigh, pol.Bucket(60))
	assert.Equal(t, LevelHigh, pol.Bucket(100))
}

func TestPolicy_Cooloff(t *testing.T) {
	pol := DefaultPolicy()
	assert.Equal(t, 30, pol.Cooloff(LevelHigh))
	assert.Equal(t, 30, pol.Cooloff(LevelUnknown), "unknown coasts on the high defaults")
	assert.Equal(t, 15, pol.Cooloff(LevelMedium))
	assert.Equal(t, 0, pol.Cooloff(LevelLow))
}

func TestLevel_AtLeast(t *testing.T) {
	assert.True(t, LevelHigh.AtLeast(LevelHigh))
	assert.True(t, LevelUnknown.AtLeast(LevelHigh))
	assert.False(t, LevelMedium.AtLeast(LevelHigh))
	assert.True(t, LevelMedium.AtLeast(LevelMedium))
	assert.False(t, LevelLow.AtLeast(LevelMedium))
}

func TestTextRisk_KeywordsAndPhrases(t *testing.T) {
	score, reasons := TextRisk("")
	assert.Equal(t, 0, score)
	assert.Empty(t, reasons)

	score, reasons = TextRisk("monthly rent")
	assert.Equal(t, 0, score)
	assert.Empty(t, reasons)

	score, reasons = TextRisk("Urgent transfer for a crypto exchange")
	assert.Equal(t, maxTextScore, score, "stacked signals cap out")
	assert.Contains(t, reasons, `Keyword: "urgent transfer"`)
	assert.Contains(t, reasons, `Keyword: "crypto"`)

	score, _ = TextRisk("tax season")
	assert.Equal(t, 6, score)
}

func TestPayeeNameFromDescription(t *testing.T) {
	assert.Equal(t, "", PayeeNameFromDescription("no hint here"))
	assert.Equal(t, "John Smith", PayeeNameFromDescription("rent payee: John Smith"))
	assert.Equal(t, "John Smith", PayeeNameFromDescription("PAYEE:   John Smith"))
}

func TestCoPChecker_Check(t *testing.T) {
	c := NewCoPChecker()
	c.RegisterPayee("de89370400440532013000", "Acme GmbH")

	ok, msg := c.Check("FR1420041010050500013M02606", "Anyone")
	assert.True(t, ok)
	assert.Equal(t, "No data", msg)

	ok, _ = c.Check("DE89370400440532013000", "")
	assert.False(t, ok)

	ok, _ = c.Check("DE89370400440532013000", " acme gmbh ")
	assert.True(t, ok)

	ok, msg = c.Check("DE89370400440532013000", "Evil Corp")
	assert.False(t, ok)
	assert.Contains(t, msg, "Mismatch")
}
