package risk

import (
	"fmt"
	"strings"
	"sync"
)

// CoPChecker simulates a Confirmation of Payee lookup: destination accounts
// with a registered expected name must match the name the payer supplied.
// Accounts without registered data pass the check.
type CoPChecker struct {
	mu       sync.RWMutex
	expected map[string]string // account → expected name
}

// NewCoPChecker creates a checker with no registered payees.
func NewCoPChecker() *CoPChecker {
	return &CoPChecker{expected: make(map[string]string)}
}

// RegisterPayee sets the expected name for a destination account.
func (c *CoPChecker) RegisterPayee(account, name string) {
	c.mu.Lock()
	c.expected[strings.ToUpper(account)] = name
	c.mu.Unlock()
}

// Check verifies the supplied payee name against the registered one.
// Returns ok and a human-readable detail message.
func (c *CoPChecker) Check(dstAccount, providedName string) (bool, string) {
	c.mu.RLock()
	expected, found := c.expected[strings.ToUpper(dstAccount)]
	c.mu.RUnlock()

	if !found {
		return true, "No data"
	}
	if providedName == "" {
		return false, fmt.Sprintf("Expected %q, but no name provided", expected)
	}
	if strings.EqualFold(strings.TrimSpace(providedName), expected) {
		return true, "Match"
	}
	return false, fmt.Sprintf("Mismatch vs %q", expected)
}

// PayeeNameFromDescription extracts a "payee: <name>" hint from the free-text
// description, if present.
func PayeeNameFromDescription(description string) string {
	lower := strings.ToLower(description)
	idx := strings.Index(lower, "payee:")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(description[idx+len("payee:"):])
}
