package events

import (
	"context"
	"log/slog"
	"time"
)

// Event types emitted by the trust engine and the transfer orchestrator.
const (
	KindTrustRequest          = "trust_request"
	KindTrustRequestGranted   = "trust_request_granted"
	KindTrustRequestDeclined  = "trust_request_declined"
	KindTrustRequestCancelled = "trust_request_cancelled"
	KindTransferCompleted     = "transfer_completed"
	KindTransferPending       = "transfer_pending"
	KindTransferFulfilled     = "transfer_fulfilled"
	KindTransferCancelled     = "transfer_cancelled"
	KindTransferRejected      = "transfer_rejected"
)

// Event is a single audit record tied to one affected wallet. State
// transitions touching two wallets are recorded once per wallet.
type Event struct {
	WalletID   string
	Type       string
	Payload    map[string]any
	OccurredAt time.Time
}

// Recorder durably records state-transition events. The core treats it as
// fire-and-forget: failures are surfaced to the caller's logger, never
// retried here.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// LoggerRecorder writes events to the structured logger. It is the default
// recorder when no durable sink is configured.
type LoggerRecorder struct {
	logger *slog.Logger
}

// NewLoggerRecorder constructs a logging recorder.
func NewLoggerRecorder(logger *slog.Logger) *LoggerRecorder {
	return &LoggerRecorder{logger: logger}
}

// Record writes the event to the structured logger.
func (r *LoggerRecorder) Record(_ context.Context, event Event) error {
	if r == nil || r.logger == nil {
		return nil
	}
	r.logger.Info("event recorded",
		"wallet_id", event.WalletID,
		"type", event.Type,
		"payload", event.Payload,
		"occurred_at", event.OccurredAt,
	)
	return nil
}
