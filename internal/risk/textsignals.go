package risk

import (
	"fmt"
	"sort"
	"strings"
)

// Keyword weights for scam-typical terms in the payment description
// (investment / crypto / urgency / romance / refund patterns).
var textKeywords = map[string]int{
	"invest": 10, "investment": 10, "crypto": 12, "bitcoin": 12, "nft": 10,
	"urgent": 8, "tax": 6, "refund": 6, "donation": 6, "loan": 6,
	"broker": 8, "exchange": 8, "profit": 8, "fast": 5, "quick": 5,
	"gift": 4, "giveaway": 6, "love": 4, "romance": 6,
}

// Multi-word phrases score on top of single keywords.
var textKeyphrases = map[string]int{
	"investment opportunity": 12,
	"crypto exchange":        12,
	"fast profit":            10,
	"tax refund":             10,
	"urgent transfer":        9,
}

// maxTextScore caps the total contribution of text signals.
const maxTextScore = 30

// TextRisk scores the free-text description for scam-typical language.
// Returns the extra score (capped at maxTextScore) and the matched reasons,
// in deterministic order.
func TextRisk(description string) (int, []string) {
	if description == "" {
		return 0, nil
	}
	desc := strings.ToLower(description)

	score := 0
	var reasons []string

	for _, ph := range sortedKeys(textKeyphrases) {
		if strings.Contains(desc, ph) {
			score += textKeyphrases[ph]
			reasons = append(reasons, fmt.Sprintf("Keyword: %q", ph))
		}
	}
	for _, kw := range sortedKeys(textKeywords) {
		if strings.Contains(desc, kw) {
			score += textKeywords[kw]
			reasons = append(reasons, fmt.Sprintf("Keyword: %q", kw))
		}
	}

	if score > maxTextScore {
		score = maxTextScore
	}
	return score, reasons
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
