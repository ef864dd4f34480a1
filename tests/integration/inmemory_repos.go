package integration

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory Wallet Repo ---

// inMemoryWalletRepo mirrors the postgres wallet repository, including the
// version-conditioned balance write. All reads return copies so concurrent
// callers observe a stable snapshot, exactly like rows read from the database.
type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.wallets {
		if existing.OwnerID == w.OwnerID && existing.Asset == w.Asset && existing.DeletedAt == nil {
			return &pgconn.PgError{Code: "23505", ConstraintName: "wallets_owner_asset_key"}
		}
	}
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok || w.DeletedAt != nil {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByOwnerAndAsset(ctx context.Context, ownerID uuid.UUID, asset string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.OwnerID == ownerID && w.Asset == asset && w.DeletedAt == nil {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Wallet
	for _, w := range r.wallets {
		if w.OwnerID == ownerID && w.DeletedAt == nil {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// UpdateBalance applies the write only when the stored version still matches,
// the same compare-and-swap the SQL implementation expresses with
// "WHERE id = $1 AND version = $2".
func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance decimal.Decimal, expectedVersion int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok || w.Version != expectedVersion {
		return false, nil
	}
	if mtx, ok := tx.(*memTx); ok {
		prev := *w
		mtx.onWrite(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.wallets[walletID] = &prev
		})
	}
	w.Balance = newBalance
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	return true, nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mtx, ok := tx.(*memTx); ok {
		id := t.ID
		mtx.onWrite(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.transactions, id)
		})
	}
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, expectedVersion int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok || t.Version != expectedVersion {
		return false, nil
	}
	if mtx, ok := tx.(*memTx); ok {
		prev := *t
		mtx.onWrite(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.transactions[id] = &prev
		})
	}
	t.Status = status
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

// List pages newest first. The cursor is the id of the last row of the
// previous page; rows up to and including it are skipped.
func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, string, error) {
	r.mu.RLock()
	var matched []domain.Transaction
	for _, t := range r.transactions {
		if t.WalletID != params.WalletID {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		if params.From != nil && t.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && t.CreatedAt.After(*params.To) {
			continue
		}
		if params.MinAmount != nil && t.Amount.LessThan(*params.MinAmount) {
			continue
		}
		if params.MaxAmount != nil && t.Amount.GreaterThan(*params.MaxAmount) {
			continue
		}
		matched = append(matched, *t)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return strings.Compare(matched[i].ID.String(), matched[j].ID.String()) > 0
	})

	start := 0
	if params.Cursor != "" {
		for i, t := range matched {
			if t.ID.String() == params.Cursor {
				start = i + 1
				break
			}
		}
	}
	if start >= len(matched) {
		return []domain.Transaction{}, "", nil
	}

	end := start + params.PageSize
	var nextCursor string
	if end < len(matched) {
		nextCursor = matched[end-1].ID.String()
	} else {
		end = len(matched)
	}
	return matched[start:end], nextCursor, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu     sync.Mutex
	events []ports.AuditEvent
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, event *ports.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor hands out memTx transactions. A single mutex serializes
// open transactions and each memTx keeps an undo log, so a rolled-back pair of
// writes really disappears. That is enough to preserve the commit-or-nothing
// behavior the postgres transactor provides for paired balance mutations.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &memTx{release: t.mu.Unlock}, nil
}

// memTx implements the subset of pgx.Tx the repositories touch. Repositories
// register an undo closure per write; Rollback replays them in reverse.
// Commit and Rollback are idempotent since callers defer Rollback and then
// Commit explicitly.
type memTx struct {
	mu      sync.Mutex
	undo    []func()
	done    bool
	release func()
}

func (t *memTx) onWrite(undo func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, undo)
}

func (t *memTx) finish(rollback bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	if rollback {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
	}
	t.undo = nil
	t.release()
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(ctx context.Context) error          { return t.finish(false) }
func (t *memTx) Rollback(ctx context.Context) error        { return t.finish(true) }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }
