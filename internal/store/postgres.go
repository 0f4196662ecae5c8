package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kicksmarket/bid-engine/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgreSQL error codes treated as transient.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

const pgForeignKeyViolation = "23503"

// PostgresStore implements Store and Directory using PostgreSQL as the
// source of truth. Sizes are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore creates a new PostgreSQL-backed store. lockTimeout bounds
// every row lock wait inside a unit of work.
func NewPostgresStore(pool *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &PostgresStore{pool: pool, lockTimeout: lockTimeout}
}

// Migrate applies the embedded schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a READ COMMITTED transaction. Exclusivity comes from
// explicit row locks (FOR UPDATE, advisory book locks), bounded by lock_timeout.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify("begin", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return classify("set lock_timeout", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return classify("unit of work", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	committed = true
	return nil
}

// classify passes domain errors through and maps transient database faults
// to model.ErrUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if model.KindOf(err) != model.KindInternal {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return model.Unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return model.Unavailable(op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return model.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// --- Directory ---

func (s *PostgresStore) FindUser(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, `SELECT id, email FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrUserNotFound)
	}
	if err != nil {
		return nil, classify("find user", err)
	}
	return &u, nil
}

func (s *PostgresStore) FindAddress(ctx context.Context, userID, addressID string) (*model.Address, error) {
	var a model.Address
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, phone, zip_code, line1, line2
		 FROM addresses WHERE id = $1 AND user_id = $2`, addressID, userID).
		Scan(&a.ID, &a.UserID, &a.Name, &a.Phone, &a.ZipCode, &a.Line1, &a.Line2)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("address %s of user %s: %w", addressID, userID, model.ErrAddressNotFound)
	}
	if err != nil {
		return nil, classify("find address", err)
	}
	return &a, nil
}

func (s *PostgresStore) FindProduct(ctx context.Context, productID string) (*model.Product, error) {
	var p model.Product
	var minSize, maxSize string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, model_number, min_size::TEXT, max_size::TEXT
		 FROM products WHERE id = $1`, productID).
		Scan(&p.ID, &p.Name, &p.ModelNumber, &minSize, &maxSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, model.ErrProductNotFound)
	}
	if err != nil {
		return nil, classify("find product", err)
	}

	p.MinSize, _ = decimal.NewFromString(minSize)
	p.MaxSize, _ = decimal.NewFromString(maxSize)
	return &p, nil
}

// --- Store ---

const tradeColumns = `id, product_id, size::TEXT, price, seller_id, buyer_id,
	seller_address_id, buyer_address_id, status,
	seller_tracking_number, company_tracking_number, cancel_reason,
	created_at, updated_at`

func (s *PostgresStore) GetTrade(ctx context.Context, tradeID string) (*model.Trade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, tradeID)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", tradeID, model.ErrTradeNotFound)
	}
	if err != nil {
		return nil, classify("get trade", err)
	}
	return t, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, balance, updated_at FROM point_accounts WHERE user_id = $1`, userID).
		Scan(&a.UserID, &a.Balance, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userID, model.ErrAccountNotFound)
	}
	if err != nil {
		return nil, classify("get account", err)
	}
	return &a, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO point_accounts (user_id, balance, updated_at)
		 VALUES ($1, 0, now())
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("user %s: %w", userID, model.ErrUserNotFound)
	}
	return classify("create account", err)
}

func (s *PostgresStore) ListMovements(ctx context.Context, userID string) ([]model.PointMovement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, amount, division, COALESCE(trade_id, ''), created_at
		 FROM point_movements WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, classify("list movements", err)
	}
	defer rows.Close()

	var movements []model.PointMovement
	for rows.Next() {
		var m model.PointMovement
		var division string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Amount, &division, &m.TradeID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Division = model.Division(division)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *PostgresStore) BookSnapshot(ctx context.Context, productID string, size decimal.Decimal) (*model.BookLevel, error) {
	level := &model.BookLevel{ProductID: productID, Size: size}
	err := s.pool.QueryRow(ctx,
		`SELECT
			MIN(price) FILTER (WHERE buyer_id IS NULL),
			MAX(price) FILTER (WHERE seller_id IS NULL),
			COUNT(*) FILTER (WHERE buyer_id IS NULL),
			COUNT(*) FILTER (WHERE seller_id IS NULL)
		 FROM trades
		 WHERE product_id = $1 AND size = $2::NUMERIC AND status = 'PRE_OFFER'`,
		productID, size.String()).
		Scan(&level.LowestSalePrice, &level.HighestBuyPrice, &level.OpenSaleBids, &level.OpenPurchaseBids)
	if err != nil {
		return nil, classify("book snapshot", err)
	}
	return level, nil
}

// pgTx implements Tx over a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockBook(ctx context.Context, productID string, size decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, bookLockKey(productID, size))
	return classify("lock book", err)
}

func (t *pgTx) BestOpenPrice(ctx context.Context, productID string, size decimal.Decimal, side model.BookSide) (int64, bool, error) {
	query := `SELECT MIN(price) FROM trades
		WHERE product_id = $1 AND size = $2::NUMERIC AND status = 'PRE_OFFER' AND buyer_id IS NULL`
	if side == model.SidePurchase {
		query = `SELECT MAX(price) FROM trades
		WHERE product_id = $1 AND size = $2::NUMERIC AND status = 'PRE_OFFER' AND seller_id IS NULL`
	}

	var price *int64
	if err := t.tx.QueryRow(ctx, query, productID, size.String()).Scan(&price); err != nil {
		return 0, false, classify("best open price", err)
	}
	if price == nil {
		return 0, false, nil
	}
	return *price, true, nil
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *model.Trade) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO trades (id, product_id, size, price, seller_id, buyer_id,
			seller_address_id, buyer_address_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tr.ID, tr.ProductID, tr.Size.String(), tr.Price,
		nullable(tr.SellerID), nullable(tr.BuyerID),
		nullable(tr.SellerAddressID), nullable(tr.BuyerAddressID),
		string(tr.Status), tr.CreatedAt, tr.UpdatedAt,
	)
	return classify("insert trade", err)
}

func (t *pgTx) GetTradeForUpdate(ctx context.Context, tradeID string) (*model.Trade, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = $1 FOR UPDATE`, tradeID)
	tr, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", tradeID, model.ErrTradeNotFound)
	}
	if err != nil {
		return nil, classify("lock trade", err)
	}
	return tr, nil
}

// UpdateTrade never touches product, size or price.
func (t *pgTx) UpdateTrade(ctx context.Context, tr *model.Trade) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE trades
		 SET seller_id = $2, buyer_id = $3,
		     seller_address_id = $4, buyer_address_id = $5,
		     status = $6,
		     seller_tracking_number = $7, company_tracking_number = $8,
		     cancel_reason = $9, updated_at = $10
		 WHERE id = $1`,
		tr.ID, nullable(tr.SellerID), nullable(tr.BuyerID),
		nullable(tr.SellerAddressID), nullable(tr.BuyerAddressID),
		string(tr.Status),
		nullable(tr.SellerTrackingNumber), nullable(tr.CompanyTrackingNumber),
		nullable(tr.CancelReason), tr.UpdatedAt,
	)
	return classify("update trade", err)
}

func (t *pgTx) GetAccountForUpdate(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, balance, updated_at FROM point_accounts WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&a.UserID, &a.Balance, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userID, model.ErrAccountNotFound)
	}
	if err != nil {
		return nil, classify("lock account", err)
	}
	return &a, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, userID string, balance int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE point_accounts SET balance = $2, updated_at = now() WHERE user_id = $1`,
		userID, balance)
	return classify("update balance", err)
}

func (t *pgTx) AppendMovement(ctx context.Context, m *model.PointMovement) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO point_movements (id, user_id, amount, division, trade_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.UserID, m.Amount, string(m.Division), nullable(m.TradeID), m.CreatedAt)
	return classify("append movement", err)
}

// scanTrade reads one trade row selected with tradeColumns.
func scanTrade(row pgx.Row) (*model.Trade, error) {
	var tr model.Trade
	var size, status string
	var sellerID, buyerID, sellerAddr, buyerAddr, sellerTracking, companyTracking, cancelReason *string

	if err := row.Scan(&tr.ID, &tr.ProductID, &size, &tr.Price, &sellerID, &buyerID,
		&sellerAddr, &buyerAddr, &status,
		&sellerTracking, &companyTracking, &cancelReason,
		&tr.CreatedAt, &tr.UpdatedAt); err != nil {
		return nil, err
	}

	tr.Size, _ = decimal.NewFromString(size)
	tr.Status = model.Status(status)
	tr.SellerID = deref(sellerID)
	tr.BuyerID = deref(buyerID)
	tr.SellerAddressID = deref(sellerAddr)
	tr.BuyerAddressID = deref(buyerAddr)
	tr.SellerTrackingNumber = deref(sellerTracking)
	tr.CompanyTrackingNumber = deref(companyTracking)
	tr.CancelReason = deref(cancelReason)
	return &tr, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
