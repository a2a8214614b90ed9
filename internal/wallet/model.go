package wallet

import "time"

// Wallet is a custody account holding tokens. A wallet may manage other
// wallets through trusted manage-type relationships; the hierarchy is
// derived from those relationships, never stored here.
type Wallet struct {
	ID           string
	Name         string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Credentials carry a wallet login attempt.
type Credentials struct {
	Name     string
	Password string
}
