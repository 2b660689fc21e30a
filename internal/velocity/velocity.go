// Package velocity tracks per-account payment velocity in a sliding window.
//
// Each source account gets a one-hour window of (payee, amount) entries.
// Spikes in distinct new payees or in total outflow add an explainable
// bump to the payment's risk score.
package velocity

import (
	"fmt"
	"time"
)

// Window configuration.
const (
	WindowDuration = time.Hour
	maxWindowSize  = 1000
)

// Thresholds for the demo-calibrated policy.
const (
	DefaultMaxNewPayees       = 3
	DefaultMaxTotal           = 50000.0
	DefaultFirstToPayeeBump   = 10
	maxVelocityScore          = 35
	firstToPayeeTotalFraction = 0.7
)

// Config holds the spike thresholds.
type Config struct {
	MaxNewPayees     int
	MaxTotal         float64
	FirstToPayeeBump int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MaxNewPayees:     DefaultMaxNewPayees,
		MaxTotal:         DefaultMaxTotal,
		FirstToPayeeBump: DefaultFirstToPayeeBump,
	}
}

// score computes the velocity bump from window aggregates. Shared by the
// memory and Redis implementations so both apply identical policy.
func (c Config) score(uniquePayees int, totalAmount float64, firstToPayee bool) (int, []string) {
	score := 0
	var reasons []string

	if uniquePayees > c.MaxNewPayees {
		bump := 10 + 5*(uniquePayees-c.MaxNewPayees)
		score += bump
		reasons = append(reasons, fmt.Sprintf("Velocity: %d payees in 1h (+%d)", uniquePayees, bump))
	}

	if totalAmount > c.MaxTotal {
		over := totalAmount - c.MaxTotal
		bump := 10 + min(int(over/5000), 10)
		score += bump
		reasons = append(reasons, fmt.Sprintf("Velocity: %.0f total in 1h (+%d)", totalAmount, bump))
	}

	if firstToPayee && (uniquePayees > c.MaxNewPayees || totalAmount > c.MaxTotal*firstToPayeeTotalFraction) {
		score += c.FirstToPayeeBump
		reasons = append(reasons, fmt.Sprintf("Velocity: first-to-payee context (+%d)", c.FirstToPayeeBump))
	}

	if score > maxVelocityScore {
		score = maxVelocityScore
	}
	return score, reasons
}
