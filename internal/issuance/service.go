package issuance

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
	"github.com/canopy-ledger/canopy_ledger/internal/ledger"
	"github.com/canopy-ledger/canopy_ledger/internal/wallet"
)

const maxBatchSize = 10000

// Service coordinates token issuance: captures are verified against the
// registry connector and minted into the target wallet.
type Service struct {
	ledger   ledger.Ledger
	wallets  *wallet.Service
	registry CaptureRegistry
}

// NewService prepares an issuance service.
func NewService(ledgerBackend ledger.Ledger, wallets *wallet.Service, registry CaptureRegistry) (*Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if registry == nil {
		registry = StaticRegistry{}
	}
	return &Service{ledger: ledgerBackend, wallets: wallets, registry: registry}, nil
}

// IssueInput captures a minting request.
type IssueInput struct {
	WalletIDOrName string
	CaptureIDs     []string
}

// IssueResult represents the domain outcome of a minting batch.
type IssueResult struct {
	WalletID          string
	Tokens            []ledger.Token
	RegistryReference string
	CompletedAt       time.Time
}

// Issue verifies the captures and mints one token per capture into the
// wallet.
func (s *Service) Issue(ctx context.Context, input IssueInput) (IssueResult, error) {
	if len(input.CaptureIDs) == 0 {
		return IssueResult{}, apperr.Invalid("at least one capture id is required")
	}
	if len(input.CaptureIDs) > maxBatchSize {
		return IssueResult{}, apperr.Invalid("a batch may contain at most %d captures", maxBatchSize)
	}
	seen := make(map[string]bool, len(input.CaptureIDs))
	for _, id := range input.CaptureIDs {
		if id == "" {
			return IssueResult{}, apperr.Invalid("capture id must not be empty")
		}
		if seen[id] {
			return IssueResult{}, apperr.Invalid("duplicate capture %s in batch", id)
		}
		seen[id] = true
	}

	w, err := s.wallets.Resolve(ctx, input.WalletIDOrName)
	if err != nil {
		return IssueResult{}, err
	}

	decision, err := s.registry.VerifyCaptures(ctx, CaptureVerification{CaptureIDs: input.CaptureIDs})
	if err != nil {
		return IssueResult{}, err
	}

	tokens, err := s.ledger.MintTokens(ctx, w.ID, input.CaptureIDs)
	if err != nil {
		return IssueResult{}, err
	}

	return IssueResult{
		WalletID:          w.ID,
		Tokens:            tokens,
		RegistryReference: decision.Reference,
		CompletedAt:       time.Now().UTC(),
	}, nil
}
