package wallet

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Wallet
	byName  map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		storage: make(map[string]Wallet),
		byName:  make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[w.ID]; exists {
		return apperr.Conflict("wallet %s already exists", w.ID)
	}
	if _, exists := r.byName[w.Name]; exists {
		return apperr.Conflict("wallet name %s already exists", w.Name)
	}
	r.storage[w.ID] = w
	r.byName[w.Name] = w.ID
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.storage[id]
	if !ok {
		return Wallet{}, apperr.NotFound("wallet %s not found", id)
	}
	return w, nil
}

func (r *memoryRepository) GetByName(_ context.Context, name string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return Wallet{}, apperr.NotFound("wallet %s not found", name)
	}
	return r.storage[id], nil
}

func (r *memoryRepository) SearchIn(_ context.Context, ids []string, nameLike string) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	needle := strings.ToLower(nameLike)
	var out []Wallet
	for _, id := range ids {
		w, ok := r.storage[id]
		if !ok {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(w.Name), needle) {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
