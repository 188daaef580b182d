package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jupyterlite/piplite/internal/domain"
	"github.com/spf13/afero"
)

// TransactionRepository defines the interface for persisting install transactions
type TransactionRepository interface {
	Save(ctx context.Context, tx *domain.Transaction) error
	Load(ctx context.Context, id string) (*domain.Transaction, error)
	LoadLatest(ctx context.Context) (*domain.Transaction, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// JSONTransactionRepository implements TransactionRepository using JSON file storage
type JSONTransactionRepository struct {
	store jsonStateStore
	mu    sync.RWMutex
}

// NewJSONTransactionRepository creates a new JSON-based transaction repository
func NewJSONTransactionRepository(fs afero.Fs, stateDir string) *JSONTransactionRepository {
	if stateDir == "" {
		stateDir = ".piplite/state"
	}
	return &JSONTransactionRepository{
		store: jsonStateStore{fs: fs, stateDir: stateDir},
	}
}

// Save persists the transaction and points the latest link at it
func (r *JSONTransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	filename := transactionFilename(tx.ID)
	if err := r.store.write(ctx, filename, tx); err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID, err)
	}
	if err := r.updateLatestLink(ctx, filename); err != nil {
		return fmt.Errorf("failed to update latest link: %w", err)
	}
	return nil
}

// Load retrieves a specific transaction by id with validation
func (r *JSONTransactionRepository) Load(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	if err := r.store.read(ctx, transactionFilename(id), &tx); err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	return &tx, nil
}

// LoadLatest retrieves the most recently saved transaction
func (r *JSONTransactionRepository) LoadLatest(ctx context.Context) (*domain.Transaction, error) {
	r.mu.RLock()
	data, err := afero.ReadFile(r.store.fs, r.latestLink())
	r.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no transaction recorded", ErrStateNotFound)
		}
		return nil, fmt.Errorf("failed to read latest link: %w", err)
	}
	id := extractTransactionID(string(data))
	if id == "" {
		return nil, fmt.Errorf("invalid latest link target: %s", data)
	}
	return r.Load(ctx, id)
}

// Delete removes a transaction
func (r *JSONTransactionRepository) Delete(ctx context.Context, id string) error {
	return r.store.remove(ctx, transactionFilename(id))
}

// Exists checks if a transaction exists
func (r *JSONTransactionRepository) Exists(_ context.Context, id string) (bool, error) {
	_, err := r.store.fs.Stat(r.store.path(transactionFilename(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check transaction file: %w", err)
	}
	return true, nil
}

func (r *JSONTransactionRepository) latestLink() string {
	return r.store.path("latest.txt")
}

func (r *JSONTransactionRepository) updateLatestLink(ctx context.Context, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return WriteFileAtomic(ctx, r.store.fs, r.latestLink(), []byte(target), StateFilePermissions)
}

func transactionFilename(id string) string {
	return fmt.Sprintf("transaction-%s.json", id)
}

func extractTransactionID(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	if !strings.HasPrefix(base, "transaction-") || !strings.HasSuffix(base, ".json") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(base, "transaction-"), ".json")
}
