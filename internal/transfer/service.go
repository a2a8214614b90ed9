package transfer

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
	"github.com/canopy-ledger/canopy_ledger/internal/events"
	"github.com/canopy-ledger/canopy_ledger/internal/ledger"
	"github.com/canopy-ledger/canopy_ledger/internal/trust"
	"github.com/canopy-ledger/canopy_ledger/internal/wallet"
)

const maxBundleSize = 10000

// Service authorizes and dispatches token transfers: it resolves the
// wallets, validates the request shape, consults the trust engine and hands
// execution to the custody ledger.
type Service struct {
	ledger   ledger.Ledger
	wallets  *wallet.Service
	trust    *trust.Service
	recorder events.Recorder
}

// NewService constructs the transfer orchestrator.
func NewService(custody ledger.Ledger, wallets *wallet.Service, trustSvc *trust.Service, recorder events.Recorder) *Service {
	return &Service{ledger: custody, wallets: wallets, trust: trustSvc, recorder: recorder}
}

// SendInput captures an inbound transfer request. Sender and receiver may be
// wallet ids or names. Exactly one of TokenIDs and BundleSize must be set;
// BundleSize arrives as a raw JSON number so non-integers can be rejected
// explicitly.
type SendInput struct {
	ActingWalletID string
	SenderWallet   string
	ReceiverWallet string
	TokenIDs       []string
	BundleSize     *float64
	Claim          bool
}

// Send validates and executes a transfer. The returned transfer is in
// completed state when trust authorized it and pending state otherwise; the
// caller distinguishes the two by inspecting State.
func (s *Service) Send(ctx context.Context, input SendInput) (ledger.Transfer, error) {
	bundleSize, err := validateShape(input)
	if err != nil {
		return ledger.Transfer{}, err
	}

	sender, err := s.wallets.Resolve(ctx, input.SenderWallet)
	if err != nil {
		return ledger.Transfer{}, err
	}
	receiver, err := s.wallets.Resolve(ctx, input.ReceiverWallet)
	if err != nil {
		return ledger.Transfer{}, err
	}
	if sender.ID == receiver.ID {
		return ledger.Transfer{}, apperr.Invalid("sender and receiver wallets must differ")
	}

	controls, err := s.trust.HasControlOver(ctx, input.ActingWalletID, sender.ID)
	if err != nil {
		return ledger.Transfer{}, err
	}
	if !controls {
		return ledger.Transfer{}, apperr.Forbidden("wallet is not authorized to send from wallet %s", sender.Name)
	}

	trusted, err := s.trust.HasTrust(ctx, trust.TypeSend, sender.ID, receiver.ID)
	if err != nil {
		return ledger.Transfer{}, err
	}

	// With trust present the claim flag is a no-op; without trust the
	// transfer is pending regardless. The flag is only persisted for audit.
	var result ledger.Transfer
	if bundleSize > 0 {
		result, err = s.ledger.TransferBundle(ctx, sender.ID, receiver.ID, bundleSize, trusted, input.Claim)
	} else {
		result, err = s.ledger.Transfer(ctx, sender.ID, receiver.ID, input.TokenIDs, trusted, input.Claim)
	}
	if err != nil {
		return ledger.Transfer{}, err
	}

	kind := events.KindTransferPending
	if result.State == ledger.TransferCompleted {
		kind = events.KindTransferCompleted
	}
	s.record(ctx, kind, result)
	return result, nil
}

// FulfillInput captures a fulfillment of a pending transfer: either an
// explicit token list or the implicit flag.
type FulfillInput struct {
	ActingWalletID string
	TransferID     string
	TokenIDs       []string
	Implicit       bool
}

// Fulfill finalizes a pending transfer on the receiver's behalf.
func (s *Service) Fulfill(ctx context.Context, input FulfillInput) (ledger.Transfer, error) {
	if input.Implicit && len(input.TokenIDs) > 0 {
		return ledger.Transfer{}, apperr.Invalid("implicit fulfillment cannot name tokens")
	}
	if !input.Implicit && len(input.TokenIDs) == 0 {
		return ledger.Transfer{}, apperr.Invalid("tokens or the implicit flag is required")
	}
	if err := validateTokenIDs(input.TokenIDs); err != nil {
		return ledger.Transfer{}, err
	}

	if _, err := s.scopedTransfer(ctx, input.TransferID, input.ActingWalletID, receiverSide); err != nil {
		return ledger.Transfer{}, err
	}

	result, err := s.ledger.Fulfill(ctx, input.TransferID, input.TokenIDs)
	if err != nil {
		return ledger.Transfer{}, err
	}
	s.record(ctx, events.KindTransferFulfilled, result)
	return result, nil
}

// Cancel withdraws a pending transfer on the sender's behalf.
func (s *Service) Cancel(ctx context.Context, actingWalletID, transferID string) (ledger.Transfer, error) {
	if _, err := s.scopedTransfer(ctx, transferID, actingWalletID, senderSide); err != nil {
		return ledger.Transfer{}, err
	}
	result, err := s.ledger.CancelTransfer(ctx, transferID)
	if err != nil {
		return ledger.Transfer{}, err
	}
	s.record(ctx, events.KindTransferCancelled, result)
	return result, nil
}

// Decline rejects a pending transfer on the receiver's behalf.
func (s *Service) Decline(ctx context.Context, actingWalletID, transferID string) (ledger.Transfer, error) {
	if _, err := s.scopedTransfer(ctx, transferID, actingWalletID, receiverSide); err != nil {
		return ledger.Transfer{}, err
	}
	result, err := s.ledger.DeclineTransfer(ctx, transferID)
	if err != nil {
		return ledger.Transfer{}, err
	}
	s.record(ctx, events.KindTransferRejected, result)
	return result, nil
}

// Get returns a transfer the caller is party to.
func (s *Service) Get(ctx context.Context, actingWalletID, transferID string) (ledger.Transfer, error) {
	return s.scopedTransfer(ctx, transferID, actingWalletID, eitherSide)
}

// List pages transfers involving the acting wallet.
func (s *Service) List(ctx context.Context, actingWalletID string, state ledger.TransferState, start, limit int) ([]ledger.Transfer, error) {
	switch state {
	case "", ledger.TransferCompleted, ledger.TransferPendingState, ledger.TransferCancelled, ledger.TransferRejected:
	default:
		return nil, apperr.Invalid("unknown transfer state %q", state)
	}
	return s.ledger.ListTransfers(ctx, actingWalletID, state, start, limit)
}

// TokensByTransfer pages the tokens referenced by a transfer the caller is
// party to.
func (s *Service) TokensByTransfer(ctx context.Context, actingWalletID, transferID string, start, limit int) ([]ledger.Token, error) {
	if _, err := s.scopedTransfer(ctx, transferID, actingWalletID, eitherSide); err != nil {
		return nil, err
	}
	return s.ledger.ListTokensByTransfer(ctx, transferID, start, limit)
}

// ListTokens pages the tokens of a wallet the caller controls.
func (s *Service) ListTokens(ctx context.Context, actingWalletID, walletIDOrName string, start, limit int) ([]ledger.Token, error) {
	target, err := s.wallets.Resolve(ctx, walletIDOrName)
	if err != nil {
		return nil, err
	}
	controls, err := s.trust.HasControlOver(ctx, actingWalletID, target.ID)
	if err != nil {
		return nil, err
	}
	if !controls {
		return nil, apperr.NotFound("wallet %s not found", walletIDOrName)
	}
	return s.ledger.ListTokens(ctx, target.ID, start, limit)
}

// GetToken returns a token held by a wallet the caller controls.
func (s *Service) GetToken(ctx context.Context, actingWalletID, tokenID string) (ledger.Token, error) {
	token, err := s.ledger.GetToken(ctx, tokenID)
	if err != nil {
		return ledger.Token{}, err
	}
	controls, err := s.trust.HasControlOver(ctx, actingWalletID, token.WalletID)
	if err != nil {
		return ledger.Token{}, err
	}
	if !controls {
		return ledger.Token{}, apperr.NotFound("token %s not found", tokenID)
	}
	return token, nil
}

type transferSide int

const (
	senderSide transferSide = iota
	receiverSide
	eitherSide
)

// scopedTransfer fetches a transfer and verifies the caller controls the
// required side. Out-of-scope transfers report NotFound so existence is not
// leaked.
func (s *Service) scopedTransfer(ctx context.Context, transferID, actingWalletID string, side transferSide) (ledger.Transfer, error) {
	result, err := s.ledger.GetTransfer(ctx, transferID)
	if err != nil {
		return ledger.Transfer{}, err
	}

	allowed := false
	if side == senderSide || side == eitherSide {
		controls, err := s.trust.HasControlOver(ctx, actingWalletID, result.SenderWalletID)
		if err != nil {
			return ledger.Transfer{}, err
		}
		allowed = allowed || controls
	}
	if side == receiverSide || side == eitherSide {
		controls, err := s.trust.HasControlOver(ctx, actingWalletID, result.ReceiverWalletID)
		if err != nil {
			return ledger.Transfer{}, err
		}
		allowed = allowed || controls
	}
	if !allowed {
		return ledger.Transfer{}, apperr.NotFound("transfer %s not found", transferID)
	}
	return result, nil
}

func validateShape(input SendInput) (int, error) {
	hasTokens := len(input.TokenIDs) > 0
	hasBundle := input.BundleSize != nil
	if hasTokens && hasBundle {
		return 0, apperr.Invalid("specify either tokens or a bundle, not both")
	}
	if !hasTokens && !hasBundle {
		return 0, apperr.Invalid("either tokens or a bundle is required")
	}
	if hasTokens {
		return 0, validateTokenIDs(input.TokenIDs)
	}

	size := *input.BundleSize
	if size != math.Trunc(size) {
		return 0, apperr.Invalid("bundle_size must be an integer")
	}
	n := int(size)
	if n <= 0 {
		return 0, apperr.Invalid("bundle_size must be greater than 0")
	}
	if n > maxBundleSize {
		return 0, apperr.Invalid("bundle_size must be less than or equal to %d", maxBundleSize)
	}
	return n, nil
}

func validateTokenIDs(tokenIDs []string) error {
	seen := make(map[string]bool, len(tokenIDs))
	for _, id := range tokenIDs {
		if _, err := uuid.Parse(id); err != nil {
			return apperr.Invalid("token id %q is not a valid UUID", id)
		}
		if seen[id] {
			return apperr.Invalid("duplicate token %s in request", id)
		}
		seen[id] = true
	}
	return nil
}

// record emits one event per party. Recording is fire-and-forget.
func (s *Service) record(ctx context.Context, kind string, t ledger.Transfer) {
	if s.recorder == nil {
		return
	}
	payload := map[string]any{
		"transfer_id":        t.ID,
		"sender_wallet_id":   t.SenderWalletID,
		"receiver_wallet_id": t.ReceiverWalletID,
		"state":              string(t.State),
		"token_count":        len(t.TokenIDs),
		"claim":              t.Claim,
	}
	if t.Bundle() {
		payload["bundle_size"] = t.BundleSize
	}
	for _, id := range []string{t.SenderWalletID, t.ReceiverWalletID} {
		_ = s.recorder.Record(ctx, events.Event{
			WalletID:   id,
			Type:       kind,
			Payload:    payload,
			OccurredAt: t.UpdatedAt,
		})
	}
}
