package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that overwrites the balance of an account when
// using the in-memory store. It bypasses the transaction log on purpose.
func SeedBalance(s Store, number int64, amount decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if acct, exists := mem.state.accounts[number]; exists {
			acct.Balance = amount
			mem.state.accounts[number] = acct
		}
	}
}
