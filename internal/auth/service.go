package auth

import (
	"context"
	"errors"
	"time"

	"github.com/canopy-ledger/canopy_ledger/internal/config"
	"github.com/canopy-ledger/canopy_ledger/internal/wallet"
)

// Service issues and refreshes wallet session tokens.
type Service struct {
	cfg     config.Config
	wallets *wallet.Service
}

func NewService(cfg config.Config, wallets *wallet.Service) *Service {
	return &Service{cfg: cfg, wallets: wallets}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues a token pair for an authenticated wallet.
func (s *Service) Login(w wallet.Wallet) (TokenPair, error) {
	access, accessExp, err := s.sign(w, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.sign(w, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(time.Until(accessExp).Seconds())}, nil
}

func (s *Service) sign(w wallet.Wallet, secret string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := map[string]any{
		"sub":         w.ID,
		"wallet_name": w.Name,
		"iat":         now.Unix(),
		"exp":         exp.Unix(),
	}
	signed, err := SignHS256(claims, []byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Refresh verifies the refresh token and returns a new access token if the
// wallet still exists.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := ParseAndVerifyHS256(refreshToken, []byte(s.cfg.RefreshSecret))
	if err != nil {
		return "", 0, errors.New("invalid refresh token")
	}
	if exp, ok := claims["exp"].(float64); !ok || time.Now().Unix() >= int64(exp) {
		return "", 0, errors.New("refresh token expired")
	}
	sub, _ := claims["sub"].(string)

	w, err := s.wallets.Get(ctx, sub)
	if err != nil {
		return "", 0, errors.New("wallet not found")
	}

	accessClaims := map[string]any{
		"sub":         w.ID,
		"wallet_name": w.Name,
		"iat":         time.Now().Unix(),
		"exp":         time.Now().Add(s.cfg.AccessTokenTTL).Unix(),
	}
	signed, err := SignHS256(accessClaims, []byte(s.cfg.JWTSecret))
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}
