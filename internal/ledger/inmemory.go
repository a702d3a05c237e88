package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FirstAccountNumber is the number assigned to the first account opened.
const FirstAccountNumber int64 = 1000000001

type memState struct {
	accounts   map[int64]Account
	byUser     map[int64]int64
	txs        map[string]Transaction
	seq        map[string]int
	nextNumber int64
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:   make(map[int64]Account, len(s.accounts)),
		byUser:     make(map[int64]int64, len(s.byUser)),
		txs:        make(map[string]Transaction, len(s.txs)),
		seq:        make(map[string]int, len(s.seq)),
		nextNumber: s.nextNumber,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.byUser {
		c.byUser[k] = v
	}
	for k, v := range s.txs {
		c.txs[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

type inMemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and development. Units are serialised by a single mutex and work on a staged
// copy of the state that is only published when fn succeeds.
func NewInMemory() Store {
	return &inMemoryStore{
		state: &memState{
			accounts:   make(map[int64]Account),
			byUser:     make(map[int64]int64),
			txs:        make(map[string]Transaction),
			seq:        make(map[string]int),
			nextNumber: FirstAccountNumber,
		},
		now: time.Now,
	}
}

type memUnitKey struct{}

type memTx struct {
	store *inMemoryStore
	state *memState
}

func (s *inMemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if unit, ok := ctx.Value(memUnitKey{}).(*memTx); ok && unit.store == s {
		return fn(ctx, unit)
	}
	if err := ctx.Err(); err != nil {
		return &Error{Code: CodeConflict, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unit := &memTx{store: s, state: s.state.clone()}
	if err := fn(context.WithValue(ctx, memUnitKey{}, unit), unit); err != nil {
		return err
	}
	s.state = unit.state
	return nil
}

func (s *inMemoryStore) AccountByNumber(_ context.Context, number int64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.state.accounts[number]
	if !ok {
		return Account{}, accountNotFound(number)
	}
	return acct, nil
}

func (s *inMemoryStore) AccountByUser(_ context.Context, userID int64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	number, ok := s.state.byUser[userID]
	if !ok {
		return Account{}, &Error{Code: CodeAccountNotFound, Err: ErrAccountNotFound}
	}
	return s.state.accounts[number], nil
}

func (s *inMemoryStore) History(_ context.Context, number int64) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var history []Transaction
	for _, rec := range s.state.txs {
		if rec.Sender == number || rec.Receiver == number {
			history = append(history, rec)
		}
	}
	seq := s.state.seq
	sort.Slice(history, func(i, j int) bool {
		if !history[i].CreatedAt.Equal(history[j].CreatedAt) {
			return history[i].CreatedAt.After(history[j].CreatedAt)
		}
		return seq[history[i].Reference] > seq[history[j].Reference]
	})
	return history, nil
}

func (s *inMemoryStore) Transaction(_ context.Context, ref string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.txs[ref]
	if !ok {
		return Transaction{}, &Error{Code: CodeNotAuthorizedOrNotFound, Reference: ref, Err: ErrNotAuthorizedOrNotFound}
	}
	return rec, nil
}

func (t *memTx) CreateAccount(_ context.Context, userID int64) (Account, error) {
	if _, exists := t.state.byUser[userID]; exists {
		return Account{}, storeError("create account", errAccountExists)
	}
	now := t.store.now().UTC()
	acct := Account{
		Number:    t.state.nextNumber,
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.state.nextNumber++
	t.state.accounts[acct.Number] = acct
	t.state.byUser[userID] = acct.Number
	return acct, nil
}

func (t *memTx) LockAccounts(_ context.Context, numbers ...int64) (map[int64]Account, error) {
	found := make(map[int64]Account, len(numbers))
	for _, n := range numbers {
		if acct, ok := t.state.accounts[n]; ok {
			found[n] = acct
		}
	}
	return found, nil
}

func (t *memTx) SetBalance(_ context.Context, number int64, balance decimal.Decimal) error {
	acct, ok := t.state.accounts[number]
	if !ok {
		return accountNotFound(number)
	}
	if balance.IsNegative() {
		return insufficientFunds(number)
	}
	acct.Balance = balance
	acct.UpdatedAt = t.store.now().UTC()
	t.state.accounts[number] = acct
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, rec Transaction) (Transaction, error) {
	if !rec.Kind.Valid() {
		return Transaction{}, storeError("insert transaction", fmt.Errorf("unknown kind %q", rec.Kind))
	}
	if _, exists := t.state.txs[rec.Reference]; exists {
		return Transaction{}, duplicateReference(rec.Reference, nil)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.store.now().UTC()
	}
	t.state.txs[rec.Reference] = rec
	t.state.seq[rec.Reference] = len(t.state.seq) + 1
	return rec, nil
}

func (t *memTx) FindReceived(_ context.Context, ref string, receiver int64) (Transaction, error) {
	rec, ok := t.state.txs[ref]
	if !ok || rec.Receiver != receiver {
		return Transaction{}, ErrNotAuthorizedOrNotFound
	}
	return rec, nil
}

func (t *memTx) MarkRefunded(_ context.Context, originalRef, refundRef string) error {
	rec, ok := t.state.txs[originalRef]
	if !ok {
		return storeError("mark refunded", ErrNotAuthorizedOrNotFound)
	}
	if rec.RefundRef != "" {
		return duplicateReference(refundRef, nil)
	}
	rec.RefundRef = refundRef
	t.state.txs[originalRef] = rec
	return nil
}
