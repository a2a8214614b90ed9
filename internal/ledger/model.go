package ledger

import "time"

// Token is a uniquely identified digital certificate backed by a real-world
// asset capture. A token is owned by exactly one wallet at a time; while
// TransferPending is set the token is locked by an in-flight transfer and
// cannot be moved again.
type Token struct {
	ID              string
	WalletID        string
	CaptureID       string
	TransferPending bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransferState is the lifecycle state of a transfer record.
type TransferState string

const (
	// TransferCompleted means ownership has changed hands.
	TransferCompleted TransferState = "completed"
	// TransferPendingState means the transfer awaits trust establishment or
	// explicit fulfillment; referenced tokens stay locked.
	TransferPendingState TransferState = "pending"
	// TransferCancelled means the sender withdrew a pending transfer.
	TransferCancelled TransferState = "cancelled"
	// TransferRejected means the receiver declined a pending transfer.
	TransferRejected TransferState = "rejected"
)

// Transfer records a movement of tokens between two wallets, either by
// explicit token list or as a bundle of a given size.
type Transfer struct {
	ID               string
	SenderWalletID   string
	ReceiverWalletID string
	State            TransferState
	TokenIDs         []string
	BundleSize       int
	Claim            bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Bundle reports whether the transfer was specified by count rather than
// explicit token identities.
func (t Transfer) Bundle() bool {
	return t.BundleSize > 0
}
