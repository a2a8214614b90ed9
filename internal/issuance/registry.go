package issuance

import (
	"context"

	"github.com/google/uuid"
)

// CaptureRegistry represents a connector to the external capture registry
// that verifies real-world asset captures before tokens are minted against
// them.
type CaptureRegistry interface {
	VerifyCaptures(ctx context.Context, input CaptureVerification) (VerificationDecision, error)
}

// CaptureVerification encapsulates the captures submitted for issuance.
type CaptureVerification struct {
	CaptureIDs []string
}

// VerificationDecision captures the registry response.
type VerificationDecision struct {
	Reference string
	Status    string
}

// StaticRegistry simulates a registry that approves every capture.
type StaticRegistry struct{}

// VerifyCaptures approves the captures with a synthetic reference.
func (StaticRegistry) VerifyCaptures(_ context.Context, _ CaptureVerification) (VerificationDecision, error) {
	return VerificationDecision{Reference: uuid.NewString(), Status: "approved"}, nil
}
