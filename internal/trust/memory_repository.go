package trust

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Relationship
	order   []string
}

// NewMemoryRepository constructs an in-memory trust repository for tests and
// dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Relationship)}
}

func (r *memoryRepository) Create(_ context.Context, rel Relationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[rel.ID]; exists {
		return apperr.Conflict("trust relationship %s already exists", rel.ID)
	}
	r.storage[rel.ID] = rel
	r.order = append(r.order, rel.ID)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Relationship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.storage[id]
	if !ok {
		return Relationship{}, apperr.NotFound("trust relationship %s not found", id)
	}
	return rel, nil
}

func (r *memoryRepository) UpdateState(_ context.Context, id string, from, to State, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rel, ok := r.storage[id]
	if !ok {
		return apperr.NotFound("trust relationship %s not found", id)
	}
	if rel.State != from {
		return apperr.Conflict("trust relationship %s is not in %s state", id, from)
	}
	rel.State = to
	rel.UpdatedAt = at.UTC()
	r.storage[id] = rel
	return nil
}

func (r *memoryRepository) ExistsActive(_ context.Context, rt RequestType, actorID, targetID string) (bool, error) {
	return r.exists(rt, actorID, targetID, map[State]bool{StateRequested: true, StateTrusted: true}), nil
}

func (r *memoryRepository) ExistsTrusted(_ context.Context, rt RequestType, actorID, targetID string) (bool, error) {
	return r.exists(rt, actorID, targetID, map[State]bool{StateTrusted: true}), nil
}

func (r *memoryRepository) exists(rt RequestType, actorID, targetID string, states map[State]bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rel := range r.storage {
		if rel.RequestType == rt && rel.ActorWalletID == actorID &&
			rel.TargetWalletID == targetID && states[rel.State] {
			return true
		}
	}
	return false
}

func (r *memoryRepository) TrustedChildren(_ context.Context, walletID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var children []string
	for _, id := range r.order {
		rel := r.storage[id]
		if rel.State != StateTrusted {
			continue
		}
		var child string
		switch {
		case rel.RequestType == RequestManage && rel.ActorWalletID == walletID:
			child = rel.TargetWalletID
		case rel.RequestType == RequestYield && rel.TargetWalletID == walletID:
			child = rel.ActorWalletID
		default:
			continue
		}
		if !seen[child] {
			seen[child] = true
			children = append(children, child)
		}
	}
	return children, nil
}

func (r *memoryRepository) ListByTargets(_ context.Context, ids []string) ([]Relationship, error) {
	targets := make(map[string]bool, len(ids))
	for _, id := range ids {
		targets[id] = true
	}
	return r.list(func(rel Relationship) bool { return targets[rel.TargetWalletID] }), nil
}

func (r *memoryRepository) ListByWallet(_ context.Context, walletID string) ([]Relationship, error) {
	return r.list(func(rel Relationship) bool {
		return rel.ActorWalletID == walletID || rel.TargetWalletID == walletID ||
			rel.OriginatorWalletID == walletID
	}), nil
}

func (r *memoryRepository) list(match func(Relationship) bool) []Relationship {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Relationship
	for _, id := range r.order {
		if rel := r.storage[id]; match(rel) {
			out = append(out, rel)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
