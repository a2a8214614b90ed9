package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
	"github.com/canopy-ledger/canopy_ledger/internal/trust"
)

const (
	minPasswordLength = 8
	maxNameLength     = 128
)

// Service exposes wallet lifecycle and lookup operations.
type Service struct {
	repo  Repository
	trust *trust.Service
}

// NewService builds a wallet service instance.
func NewService(repo Repository, trustSvc *trust.Service) *Service {
	return &Service{repo: repo, trust: trustSvc}
}

// CreateInput captures data required to register a root wallet.
type CreateInput struct {
	Name     string
	Password string
}

// Create registers a root wallet with login credentials.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return Wallet{}, err
	}
	if len(input.Password) < minPasswordLength {
		return Wallet{}, apperr.Invalid("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return Wallet{}, err
	}

	w := Wallet{
		ID:           uuid.NewString(),
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// CreateManaged provisions a sub-wallet controlled by the parent from birth.
// Managed wallets carry no credentials; the parent acts on their behalf.
func (s *Service) CreateManaged(ctx context.Context, parentID, name string) (Wallet, error) {
	normalized, err := normalizeName(name)
	if err != nil {
		return Wallet{}, err
	}
	if _, err := s.repo.Get(ctx, parentID); err != nil {
		return Wallet{}, err
	}

	w := Wallet{
		ID:        uuid.NewString(),
		Name:      normalized,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return Wallet{}, err
	}
	if err := s.trust.GrantManage(ctx, parentID, w.ID); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Get retrieves a wallet by id.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.repo.Get(ctx, id)
}

// Resolve accepts a wallet id or a wallet name.
func (s *Service) Resolve(ctx context.Context, idOrName string) (Wallet, error) {
	if _, err := uuid.Parse(idOrName); err == nil {
		return s.repo.Get(ctx, idOrName)
	}
	return s.repo.GetByName(ctx, idOrName)
}

// Authenticate verifies wallet credentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Wallet, error) {
	w, err := s.repo.GetByName(ctx, creds.Name)
	if err != nil {
		return Wallet{}, apperr.Forbidden("invalid wallet name or password")
	}
	if len(w.PasswordHash) == 0 {
		// Managed wallets have no credentials of their own.
		return Wallet{}, apperr.Forbidden("invalid wallet name or password")
	}
	if err := bcrypt.CompareHashAndPassword(w.PasswordHash, []byte(creds.Password)); err != nil {
		return Wallet{}, apperr.Forbidden("invalid wallet name or password")
	}
	return w, nil
}

// List returns the wallets the caller controls, filtered by a
// case-insensitive name substring.
func (s *Service) List(ctx context.Context, actingWalletID, nameFilter string) ([]Wallet, error) {
	ids, err := s.trust.ControlledWalletIDs(ctx, actingWalletID)
	if err != nil {
		return nil, err
	}
	return s.repo.SearchIn(ctx, ids, strings.TrimSpace(nameFilter))
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Invalid("wallet name is required")
	}
	if len(name) > maxNameLength {
		return "", apperr.Invalid("wallet name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

// Directory adapts the wallet repository to the identity lookups the trust
// engine needs.
type Directory struct {
	repo Repository
}

// NewDirectory builds a trust.WalletDirectory over the repository.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

// Ref returns the wallet with the given id.
func (d *Directory) Ref(ctx context.Context, id string) (trust.WalletRef, error) {
	w, err := d.repo.Get(ctx, id)
	if err != nil {
		return trust.WalletRef{}, err
	}
	return trust.WalletRef{ID: w.ID, Name: w.Name}, nil
}

// Resolve accepts a wallet id or a wallet name.
func (d *Directory) Resolve(ctx context.Context, idOrName string) (trust.WalletRef, error) {
	if _, err := uuid.Parse(idOrName); err == nil {
		return d.Ref(ctx, idOrName)
	}
	w, err := d.repo.GetByName(ctx, idOrName)
	if err != nil {
		return trust.WalletRef{}, err
	}
	return trust.WalletRef{ID: w.ID, Name: w.Name}, nil
}
