package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kicksmarket/bid-engine/internal/model"
)

// DefaultLockTimeout bounds how long a unit of work waits for a row lock.
const DefaultLockTimeout = 5 * time.Second

// MemoryStore implements Store and Directory with in-memory maps. Used for
// testing and development. Not suitable for production (no persistence).
//
// Units of work stage their writes and apply them atomically on commit.
// Row locks are emulated with a keyed lock table.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	addresses map[string]*model.Address
	products  map[string]*model.Product
	trades    map[string]*model.Trade
	accounts  map[string]*model.Account
	book      *bookIndex

	// movements is an append-only arena; byUser indexes into it.
	movements []model.PointMovement
	byUser    map[string][]int

	locks       *rowLocks
	lockTimeout time.Duration
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*model.User),
		addresses:   make(map[string]*model.Address),
		products:    make(map[string]*model.Product),
		trades:      make(map[string]*model.Trade),
		accounts:    make(map[string]*model.Account),
		book:        newBookIndex(),
		byUser:      make(map[string][]int),
		locks:       newRowLocks(),
		lockTimeout: DefaultLockTimeout,
	}
}

// SetLockTimeout changes the row lock wait bound.
func (s *MemoryStore) SetLockTimeout(d time.Duration) {
	s.lockTimeout = d
}

// --- Directory seeding ---

// AddUser registers a user and opens an empty point account for it.
func (s *MemoryStore) AddUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *u
	s.users[u.ID] = &copy
	if _, ok := s.accounts[u.ID]; !ok {
		s.accounts[u.ID] = &model.Account{UserID: u.ID, UpdatedAt: time.Now().UTC()}
	}
}

// AddAddress registers an address.
func (s *MemoryStore) AddAddress(a *model.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *a
	s.addresses[a.ID] = &copy
}

// AddProduct registers a catalog product.
func (s *MemoryStore) AddProduct(p *model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	s.products[p.ID] = &copy
}

// --- Directory ---

func (s *MemoryStore) FindUser(_ context.Context, userID string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrUserNotFound)
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) FindAddress(_ context.Context, userID, addressID string) (*model.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("address %s of user %s: %w", addressID, userID, model.ErrAddressNotFound)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) FindProduct(_ context.Context, productID string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, model.ErrProductNotFound)
	}
	copy := *p
	return &copy, nil
}

// --- Store ---

func (s *MemoryStore) GetTrade(_ context.Context, tradeID string) (*model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trades[tradeID]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", tradeID, model.ErrTradeNotFound)
	}
	copy := *t
	return &copy, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", userID, model.ErrAccountNotFound)
	}
	copy := *a
	return &copy, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[userID]; !ok {
		s.accounts[userID] = &model.Account{UserID: userID, UpdatedAt: time.Now().UTC()}
	}
	return nil
}

func (s *MemoryStore) ListMovements(_ context.Context, userID string) ([]model.PointMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.byUser[userID]
	result := make([]model.PointMovement, 0, len(idx))
	for _, i := range idx {
		result = append(result, s.movements[i])
	}
	return result, nil
}

func (s *MemoryStore) BookSnapshot(_ context.Context, productID string, size decimal.Decimal) (*model.BookLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level := &model.BookLevel{
		ProductID:        productID,
		Size:             size,
		OpenSaleBids:     s.book.count(productID, size, model.SideSale),
		OpenPurchaseBids: s.book.count(productID, size, model.SidePurchase),
	}
	if p, ok := s.book.best(productID, size, model.SideSale); ok {
		level.LowestSalePrice = &p
	}
	if p, ok := s.book.best(productID, size, model.SidePurchase); ok {
		level.HighestBuyPrice = &p
	}
	return level, nil
}

// WithTx runs fn against a staged unit of work and applies the staged
// writes atomically when fn succeeds. Locks are released either way.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		store:    s,
		held:     make(map[string]bool),
		trades:   make(map[string]*model.Trade),
		balances: make(map[string]int64),
	}
	defer tx.releaseAll()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return model.Unavailable("commit", err)
	}
	tx.commit()
	return nil
}

// memTx is a MemoryStore unit of work.
type memTx struct {
	store *MemoryStore

	held  map[string]bool
	order []string

	trades    map[string]*model.Trade
	tradeSeq  []string
	balances  map[string]int64
	movements []model.PointMovement
}

func (tx *memTx) lock(ctx context.Context, key string) error {
	if tx.held[key] {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, tx.store.lockTimeout)
	defer cancel()

	if err := tx.store.locks.acquire(waitCtx, key); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		return model.Unavailable("lock "+key, err)
	}
	tx.held[key] = true
	tx.order = append(tx.order, key)
	return nil
}

func (tx *memTx) releaseAll() {
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.store.locks.release(tx.order[i])
	}
	tx.order = nil
	tx.held = map[string]bool{}
}

func tradeLockKey(id string) string   { return "trade:" + id }
func accountLockKey(id string) string { return "account:" + id }
func bookLockKey(productID string, size decimal.Decimal) string {
	return "book:" + productID + ":" + size.String()
}

func (tx *memTx) LockBook(ctx context.Context, productID string, size decimal.Decimal) error {
	return tx.lock(ctx, bookLockKey(productID, size))
}

func (tx *memTx) BestOpenPrice(_ context.Context, productID string, size decimal.Decimal, side model.BookSide) (int64, bool, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	price, ok := tx.store.book.best(productID, size, side)
	return price, ok, nil
}

func (tx *memTx) InsertTrade(_ context.Context, t *model.Trade) error {
	tx.store.mu.RLock()
	_, exists := tx.store.trades[t.ID]
	tx.store.mu.RUnlock()
	if _, staged := tx.trades[t.ID]; exists || staged {
		return fmt.Errorf("trade %s already exists", t.ID)
	}

	copy := *t
	tx.trades[t.ID] = &copy
	tx.tradeSeq = append(tx.tradeSeq, t.ID)
	tx.held[tradeLockKey(t.ID)] = true // invisible to others until commit
	return nil
}

func (tx *memTx) GetTradeForUpdate(ctx context.Context, tradeID string) (*model.Trade, error) {
	if t, ok := tx.trades[tradeID]; ok {
		copy := *t
		return &copy, nil
	}
	if err := tx.lock(ctx, tradeLockKey(tradeID)); err != nil {
		return nil, err
	}
	return tx.store.GetTrade(ctx, tradeID)
}

func (tx *memTx) UpdateTrade(_ context.Context, t *model.Trade) error {
	if !tx.held[tradeLockKey(t.ID)] {
		return fmt.Errorf("update trade %s: row not locked by this unit of work", t.ID)
	}
	copy := *t
	if _, ok := tx.trades[t.ID]; !ok {
		tx.tradeSeq = append(tx.tradeSeq, t.ID)
	}
	tx.trades[t.ID] = &copy
	return nil
}

func (tx *memTx) GetAccountForUpdate(ctx context.Context, userID string) (*model.Account, error) {
	if err := tx.lock(ctx, accountLockKey(userID)); err != nil {
		return nil, err
	}
	acct, err := tx.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bal, ok := tx.balances[userID]; ok {
		acct.Balance = bal
	}
	return acct, nil
}

func (tx *memTx) UpdateBalance(_ context.Context, userID string, balance int64) error {
	if !tx.held[accountLockKey(userID)] {
		return fmt.Errorf("update account %s: row not locked by this unit of work", userID)
	}
	if balance < 0 {
		return fmt.Errorf("update account %s: negative balance %d", userID, balance)
	}
	tx.balances[userID] = balance
	return nil
}

func (tx *memTx) AppendMovement(_ context.Context, m *model.PointMovement) error {
	tx.movements = append(tx.movements, *m)
	return nil
}

// commit applies every staged write under the store's write lock.
func (tx *memTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.tradeSeq {
		next := tx.trades[id]
		if prev, ok := s.trades[id]; ok && prev.Open() {
			s.book.remove(prev)
		}
		s.trades[id] = next
		if next.Open() {
			s.book.insert(next)
		}
	}

	now := time.Now().UTC()
	for userID, bal := range tx.balances {
		acct := s.accounts[userID]
		acct.Balance = bal
		acct.UpdatedAt = now
	}

	for _, m := range tx.movements {
		s.movements = append(s.movements, m)
		s.byUser[m.UserID] = append(s.byUser[m.UserID], len(s.movements)-1)
	}
}
