package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
)

type inMemoryLedger struct {
	mu            sync.Mutex
	tokens        map[string]Token
	tokenOrder    []string
	transfers     map[string]Transfer
	transferOrder []string
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit
// tests and dev mode.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		tokens:    make(map[string]Token),
		transfers: make(map[string]Transfer),
	}
}

func (l *inMemoryLedger) MintTokens(_ context.Context, walletID string, captureIDs []string) ([]Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	minted := make([]Token, 0, len(captureIDs))
	for _, captureID := range captureIDs {
		token := Token{
			ID:        uuid.NewString(),
			WalletID:  walletID,
			CaptureID: captureID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		l.tokens[token.ID] = token
		l.tokenOrder = append(l.tokenOrder, token.ID)
		minted = append(minted, token)
	}
	return minted, nil
}

func (l *inMemoryLedger) ListTokens(_ context.Context, walletID string, start, limit int) ([]Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var owned []Token
	for _, id := range l.tokenOrder {
		if t := l.tokens[id]; t.WalletID == walletID {
			owned = append(owned, t)
		}
	}
	lo, hi := paginate(len(owned), start, limit)
	return owned[lo:hi], nil
}

func (l *inMemoryLedger) ListTokensByTransfer(_ context.Context, transferID string, start, limit int) ([]Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	transfer, ok := l.transfers[transferID]
	if !ok {
		return nil, apperr.NotFound("transfer %s not found", transferID)
	}
	tokens := make([]Token, 0, len(transfer.TokenIDs))
	for _, id := range transfer.TokenIDs {
		if t, ok := l.tokens[id]; ok {
			tokens = append(tokens, t)
		}
	}
	lo, hi := paginate(len(tokens), start, limit)
	return tokens[lo:hi], nil
}

func (l *inMemoryLedger) GetToken(_ context.Context, id string) (Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[id]
	if !ok {
		return Token{}, apperr.NotFound("token %s not found", id)
	}
	return t, nil
}

func (l *inMemoryLedger) CountTokens(_ context.Context, walletID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, t := range l.tokens {
		if t.WalletID == walletID {
			count++
		}
	}
	return count, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, senderID, receiverID string, tokenIDs []string, trusted, claim bool) (Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Validate every token before touching any of them so the move stays
	// all-or-nothing.
	for _, id := range tokenIDs {
		if err := l.tokenAvailable(id, senderID); err != nil {
			return Transfer{}, err
		}
	}

	now := time.Now().UTC()
	state := TransferPendingState
	if trusted {
		state = TransferCompleted
	}
	for _, id := range tokenIDs {
		t := l.tokens[id]
		if trusted {
			t.WalletID = receiverID
		} else {
			t.TransferPending = true
		}
		t.UpdatedAt = now
		l.tokens[id] = t
	}

	return l.storeTransfer(Transfer{
		ID:               uuid.NewString(),
		SenderWalletID:   senderID,
		ReceiverWalletID: receiverID,
		State:            state,
		TokenIDs:         append([]string(nil), tokenIDs...),
		Claim:            claim,
		CreatedAt:        now,
		UpdatedAt:        now,
	}), nil
}

func (l *inMemoryLedger) TransferBundle(_ context.Context, senderID, receiverID string, bundleSize int, trusted, claim bool) (Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var reserved []string
	for _, id := range l.tokenOrder {
		if len(reserved) == bundleSize {
			break
		}
		t := l.tokens[id]
		if t.WalletID == senderID && !t.TransferPending {
			reserved = append(reserved, id)
		}
	}
	if len(reserved) < bundleSize {
		return Transfer{}, apperr.Conflict("sender wallet holds %d available tokens, bundle needs %d", len(reserved), bundleSize)
	}

	now := time.Now().UTC()
	state := TransferPendingState
	if trusted {
		state = TransferCompleted
	}
	for _, id := range reserved {
		t := l.tokens[id]
		if trusted {
			t.WalletID = receiverID
		} else {
			t.TransferPending = true
		}
		t.UpdatedAt = now
		l.tokens[id] = t
	}

	return l.storeTransfer(Transfer{
		ID:               uuid.NewString(),
		SenderWalletID:   senderID,
		ReceiverWalletID: receiverID,
		State:            state,
		TokenIDs:         reserved,
		BundleSize:       bundleSize,
		Claim:            claim,
		CreatedAt:        now,
		UpdatedAt:        now,
	}), nil
}

func (l *inMemoryLedger) Fulfill(_ context.Context, transferID string, tokenIDs []string) (Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	transfer, ok := l.transfers[transferID]
	if !ok {
		return Transfer{}, apperr.NotFound("transfer %s not found", transferID)
	}
	if transfer.State != TransferPendingState {
		return Transfer{}, apperr.Conflict("transfer %s is not pending", transferID)
	}

	if len(tokenIDs) > 0 {
		if err := matchReserved(transfer.TokenIDs, tokenIDs); err != nil {
			return Transfer{}, err
		}
	}

	now := time.Now().UTC()
	for _, id := range transfer.TokenIDs {
		t := l.tokens[id]
		t.WalletID = transfer.ReceiverWalletID
		t.TransferPending = false
		t.UpdatedAt = now
		l.tokens[id] = t
	}

	transfer.State = TransferCompleted
	transfer.UpdatedAt = now
	l.transfers[transferID] = transfer
	return transfer, nil
}

func (l *inMemoryLedger) CancelTransfer(_ context.Context, transferID string) (Transfer, error) {
	return l.release(transferID, TransferCancelled)
}

func (l *inMemoryLedger) DeclineTransfer(_ context.Context, transferID string) (Transfer, error) {
	return l.release(transferID, TransferRejected)
}

func (l *inMemoryLedger) release(transferID string, state TransferState) (Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	transfer, ok := l.transfers[transferID]
	if !ok {
		return Transfer{}, apperr.NotFound("transfer %s not found", transferID)
	}
	if transfer.State != TransferPendingState {
		return Transfer{}, apperr.Conflict("transfer %s is not pending", transferID)
	}

	now := time.Now().UTC()
	for _, id := range transfer.TokenIDs {
		t := l.tokens[id]
		t.TransferPending = false
		t.UpdatedAt = now
		l.tokens[id] = t
	}

	transfer.State = state
	transfer.UpdatedAt = now
	l.transfers[transferID] = transfer
	return transfer, nil
}

func (l *inMemoryLedger) GetTransfer(_ context.Context, id string) (Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	transfer, ok := l.transfers[id]
	if !ok {
		return Transfer{}, apperr.NotFound("transfer %s not found", id)
	}
	return transfer, nil
}

func (l *inMemoryLedger) ListTransfers(_ context.Context, walletID string, state TransferState, start, limit int) ([]Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Transfer
	for _, id := range l.transferOrder {
		t := l.transfers[id]
		if t.SenderWalletID != walletID && t.ReceiverWalletID != walletID {
			continue
		}
		if state != "" && t.State != state {
			continue
		}
		out = append(out, t)
	}
	lo, hi := paginate(len(out), start, limit)
	return out[lo:hi], nil
}

func (l *inMemoryLedger) tokenAvailable(id, senderID string) error {
	t, ok := l.tokens[id]
	if !ok {
		return apperr.NotFound("token %s not found", id)
	}
	if t.WalletID != senderID {
		return apperr.Forbidden("token %s is not held by the sender wallet", id)
	}
	if t.TransferPending {
		return apperr.Conflict("token %s is locked by a pending transfer", id)
	}
	return nil
}

func (l *inMemoryLedger) storeTransfer(t Transfer) Transfer {
	l.transfers[t.ID] = t
	l.transferOrder = append(l.transferOrder, t.ID)
	return t
}

// matchReserved verifies an explicit fulfillment list names exactly the
// reserved tokens.
func matchReserved(reserved, provided []string) error {
	if len(provided) != len(reserved) {
		return apperr.Invalid("fulfillment names %d tokens, transfer reserved %d", len(provided), len(reserved))
	}
	set := make(map[string]bool, len(reserved))
	for _, id := range reserved {
		set[id] = true
	}
	for _, id := range provided {
		if !set[id] {
			return apperr.Invalid("token %s is not part of the pending transfer", id)
		}
		delete(set, id)
	}
	return nil
}
