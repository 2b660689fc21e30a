// Package watchlist maintains the set of destination accounts flagged for
// scrutiny. A watchlisted beneficiary adds a fixed bump to the payment's
// risk score.
package watchlist

import (
	"context"
	"strings"
)

// Store persists the watch set. Accounts are stored uppercased.
type Store interface {
	Add(ctx context.Context, account string) error
	Remove(ctx context.Context, account string) error
	List(ctx context.Context) ([]string, error)
	Contains(ctx context.Context, account string) (bool, error)
}

func normalize(account string) string {
	return strings.ToUpper(strings.TrimSpace(account))
}
