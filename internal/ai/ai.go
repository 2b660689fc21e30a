// Package ai provides advisory LLM-backed explanation and classification of
// scored payments.
//
// Everything in this package is best-effort and off the gating path: a
// failed or slow AI call degrades to fallback content and never changes
// which verification stages a payment must pass.
package ai

import "time"

// Explanation is a narrative account of why a payment looks risky.
type Explanation struct {
	Summary         string   `json:"summary"`
	KeyReasons      []string `json:"key_reasons"`
	Recommendations []string `json:"recommendations"`
}

// Classification labels the likely scam type.
type Classification struct {
	Label       string  `json:"label"` // investment|impersonation|romance|invoice|other
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation,omitempty"`
}

// FallbackExplanation is returned whenever the explain collaborator is
// unavailable; the UI stays fully usable on it.
func FallbackExplanation() *Explanation {
	return &Explanation{
		Summary:    "Potential scam indicators detected.",
		KeyReasons: []string{},
		Recommendations: []string{
			"Verify recipient via official channels.",
			"Avoid urgency pressure.",
			"Double-check invoice details.",
		},
	}
}

// DefaultTimeout bounds advisory calls when no explicit timeout is configured.
const DefaultTimeout = 5 * time.Second
