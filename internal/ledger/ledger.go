package ledger

import "context"

// Ledger owns the token inventory and transfer execution. Implementations
// must guarantee serializability per token: two in-flight transfers may
// never both claim the same token. The backing store's conditional updates
// are the final backstop, not the caller's pre-checks.
type Ledger interface {
	// MintTokens creates one token per capture id inside the wallet.
	MintTokens(ctx context.Context, walletID string, captureIDs []string) ([]Token, error)
	// ListTokens pages the wallet's tokens in creation order. start is a
	// 1-based offset; out-of-range values yield an empty or truncated
	// slice, never an error.
	ListTokens(ctx context.Context, walletID string, start, limit int) ([]Token, error)
	// ListTokensByTransfer pages the tokens referenced by a transfer.
	ListTokensByTransfer(ctx context.Context, transferID string, start, limit int) ([]Token, error)
	// GetToken fetches a token by id.
	GetToken(ctx context.Context, id string) (Token, error)
	// CountTokens returns the number of tokens held by the wallet.
	CountTokens(ctx context.Context, walletID string) (int, error)

	// Transfer moves the listed tokens from sender to receiver. With
	// trusted set the move completes synchronously; otherwise the tokens
	// are locked and a pending transfer awaits fulfillment.
	Transfer(ctx context.Context, senderID, receiverID string, tokenIDs []string, trusted, claim bool) (Transfer, error)
	// TransferBundle moves bundleSize arbitrary available tokens. The
	// reservation is all-or-nothing: a shortfall fails the whole call.
	TransferBundle(ctx context.Context, senderID, receiverID string, bundleSize int, trusted, claim bool) (Transfer, error)
	// Fulfill resolves a pending transfer. An empty token list selects the
	// reserved tokens implicitly; an explicit list must match them.
	Fulfill(ctx context.Context, transferID string, tokenIDs []string) (Transfer, error)
	// CancelTransfer voids a pending transfer and releases its locks.
	CancelTransfer(ctx context.Context, transferID string) (Transfer, error)
	// DeclineTransfer rejects a pending transfer and releases its locks.
	DeclineTransfer(ctx context.Context, transferID string) (Transfer, error)

	// GetTransfer fetches a transfer by id.
	GetTransfer(ctx context.Context, id string) (Transfer, error)
	// ListTransfers pages transfers involving the wallet, optionally
	// filtered by state (empty state matches all).
	ListTransfers(ctx context.Context, walletID string, state TransferState, start, limit int) ([]Transfer, error)
}

// paginate maps a 1-based start offset and a limit onto slice bounds over n
// elements. start below 1 is clamped to 1; limit at or below zero means no
// limit.
func paginate(n, start, limit int) (int, int) {
	if start < 1 {
		start = 1
	}
	lo := start - 1
	if lo >= n {
		return n, n
	}
	hi := n
	if limit > 0 && lo+limit < n {
		hi = lo + limit
	}
	return lo, hi
}
