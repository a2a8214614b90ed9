package transfer

import (
	"context"
	"strings"
	"testing"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
	"github.com/canopy-ledger/canopy_ledger/internal/events"
	"github.com/canopy-ledger/canopy_ledger/internal/ledger"
	"github.com/canopy-ledger/canopy_ledger/internal/trust"
	"github.com/canopy-ledger/canopy_ledger/internal/wallet"
)

type fixture struct {
	svc      *Service
	ledger   ledger.Ledger
	wallets  *wallet.Service
	trust    *trust.Service
	recorder *events.MemoryRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	recorder := events.NewMemoryRecorder()
	walletRepo := wallet.NewMemoryRepository()
	dir := wallet.NewDirectory(walletRepo)
	trustSvc := trust.NewService(trust.NewMemoryRepository(), dir, recorder)
	walletSvc := wallet.NewService(walletRepo, trustSvc)
	custody := ledger.NewInMemory()
	return &fixture{
		svc:      NewService(custody, walletSvc, trustSvc, recorder),
		ledger:   custody,
		wallets:  walletSvc,
		trust:    trustSvc,
		recorder: recorder,
	}
}

func (f *fixture) wallet(t *testing.T, name string) wallet.Wallet {
	t.Helper()
	w, err := f.wallets.Create(context.Background(), wallet.CreateInput{Name: name, Password: "correct horse"})
	if err != nil {
		t.Fatalf("create wallet %s: %v", name, err)
	}
	return w
}

func (f *fixture) grantSendTrust(t *testing.T, senderID, receiverID string) {
	t.Helper()
	ctx := context.Background()
	view, err := f.trust.Request(ctx, trust.RequestInput{
		RequestType:        trust.RequestSend,
		RequesterWallet:    senderID,
		RequesteeWallet:    receiverID,
		OriginatorWalletID: senderID,
	})
	if err != nil {
		t.Fatalf("trust request: %v", err)
	}
	if _, err := f.trust.Accept(ctx, view.ID, receiverID); err != nil {
		t.Fatalf("trust accept: %v", err)
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestSendTrustedCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	receiver := f.wallet(t, "market")
	f.grantSendTrust(t, sender.ID, receiver.ID)
	tokens := ledger.SeedTokens(f.ledger, sender.ID, 2)

	result, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: sender.ID,
		SenderWallet:   "grove",
		ReceiverWallet: "market",
		TokenIDs:       []string{tokens[0].ID, tokens[1].ID},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.State != ledger.TransferCompleted {
		t.Fatalf("expected state %s got %s", ledger.TransferCompleted, result.State)
	}

	count, err := f.ledger.CountTokens(ctx, receiver.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected receiver to hold 2 tokens, got %d", count)
	}
	if got := f.recorder.ByType(events.KindTransferCompleted); len(got) != 2 {
		t.Fatalf("expected one completed event per party, got %d", len(got))
	}
}

func TestSendWithoutTrustParksPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	receiver := f.wallet(t, "market")
	tokens := ledger.SeedTokens(f.ledger, sender.ID, 1)

	result, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: sender.ID,
		SenderWallet:   sender.ID,
		ReceiverWallet: receiver.ID,
		TokenIDs:       []string{tokens[0].ID},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.State != ledger.TransferPendingState {
		t.Fatalf("expected state %s got %s", ledger.TransferPendingState, result.State)
	}

	count, err := f.ledger.CountTokens(ctx, receiver.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no ownership change, receiver holds %d", count)
	}
	if got := f.recorder.ByType(events.KindTransferPending); len(got) != 2 {
		t.Fatalf("expected one pending event per party, got %d", len(got))
	}
}

func TestSendClaimFlagIsPersistedNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	receiver := f.wallet(t, "market")
	f.grantSendTrust(t, sender.ID, receiver.ID)
	tokens := ledger.SeedTokens(f.ledger, sender.ID, 1)

	result, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: sender.ID,
		SenderWallet:   sender.ID,
		ReceiverWallet: receiver.ID,
		TokenIDs:       []string{tokens[0].ID},
		Claim:          true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !result.Claim {
		t.Fatal("expected claim flag to be persisted")
	}
	if result.State != ledger.TransferCompleted {
		t.Fatalf("claim must not change the outcome, got state %s", result.State)
	}
}

func TestSendRequiresSenderControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	receiver := f.wallet(t, "market")
	outsider := f.wallet(t, "outsider")
	tokens := ledger.SeedTokens(f.ledger, sender.ID, 1)

	_, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: outsider.ID,
		SenderWallet:   sender.ID,
		ReceiverWallet: receiver.ID,
		TokenIDs:       []string{tokens[0].ID},
	})
	if !apperr.IsStatus(err, 403) {
		t.Fatalf("expected 403 got %v", err)
	}
}

func TestSendSameWalletInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	tokens := ledger.SeedTokens(f.ledger, sender.ID, 1)

	_, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: sender.ID,
		SenderWallet:   sender.ID,
		ReceiverWallet: "grove",
		TokenIDs:       []string{tokens[0].ID},
	})
	if !apperr.IsStatus(err, 422) {
		t.Fatalf("expected 422 got %v", err)
	}
}

func TestSendValidatesRequestShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	receiver := f.wallet(t, "market")
	tokens := ledger.SeedTokens(f.ledger, sender.ID, 1)

	cases := []struct {
		name    string
		input   SendInput
		message string
	}{
		{
			name: "tokens and bundle together",
			input: SendInput{
				TokenIDs:   []string{tokens[0].ID},
				BundleSize: floatPtr(1),
			},
			message: "not both",
		},
		{
			name:    "neither tokens nor bundle",
			input:   SendInput{},
			message: "required",
		},
		{
			name:    "fractional bundle size",
			input:   SendInput{BundleSize: floatPtr(1.1)},
			message: "must be an integer",
		},
		{
			name:    "negative bundle size",
			input:   SendInput{BundleSize: floatPtr(-1)},
			message: "must be greater than 0",
		},
		{
			name:    "oversized bundle",
			input:   SendInput{BundleSize: floatPtr(10001)},
			message: "must be less than or equal to 10000",
		},
		{
			name: "duplicate token ids",
			input: SendInput{
				TokenIDs: []string{tokens[0].ID, tokens[0].ID},
			},
			message: "duplicate",
		},
		{
			name: "malformed token id",
			input: SendInput{
				TokenIDs: []string{"not-a-uuid"},
			},
			message: "not a valid UUID",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.input
			in.ActingWalletID = sender.ID
			in.SenderWallet = sender.ID
			in.ReceiverWallet = receiver.ID

			_, err := f.svc.Send(ctx, in)
			if !apperr.IsStatus(err, 422) {
				t.Fatalf("expected 422 got %v", err)
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected message containing %q got %q", tc.message, err.Error())
			}
		})
	}
}

func TestSendBundle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	receiver := f.wallet(t, "market")
	f.grantSendTrust(t, sender.ID, receiver.ID)
	ledger.SeedTokens(f.ledger, sender.ID, 5)

	result, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: sender.ID,
		SenderWallet:   sender.ID,
		ReceiverWallet: receiver.ID,
		BundleSize:     floatPtr(3),
	})
	if err != nil {
		t.Fatalf("send bundle: %v", err)
	}
	if result.BundleSize != 3 || len(result.TokenIDs) != 3 {
		t.Fatalf("expected 3 reserved tokens, got %d (bundle %d)", len(result.TokenIDs), result.BundleSize)
	}
}

func TestFulfillByReceiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	receiver := f.wallet(t, "market")
	tokens := ledger.SeedTokens(f.ledger, sender.ID, 1)

	pending, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: sender.ID,
		SenderWallet:   sender.ID,
		ReceiverWallet: receiver.ID,
		TokenIDs:       []string{tokens[0].ID},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	done, err := f.svc.Fulfill(ctx, FulfillInput{
		ActingWalletID: receiver.ID,
		TransferID:     pending.ID,
		Implicit:       true,
	})
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if done.State != ledger.TransferCompleted {
		t.Fatalf("expected state %s got %s", ledger.TransferCompleted, done.State)
	}

	count, err := f.ledger.CountTokens(ctx, receiver.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected receiver to hold 1 token, got %d", count)
	}
}

func TestFulfillOutsideScopeNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	receiver := f.wallet(t, "market")
	outsider := f.wallet(t, "outsider")
	tokens := ledger.SeedTokens(f.ledger, sender.ID, 1)

	pending, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: sender.ID,
		SenderWallet:   sender.ID,
		ReceiverWallet: receiver.ID,
		TokenIDs:       []string{tokens[0].ID},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err = f.svc.Fulfill(ctx, FulfillInput{
		ActingWalletID: outsider.ID,
		TransferID:     pending.ID,
		Implicit:       true,
	})
	if !apperr.IsStatus(err, 404) {
		t.Fatalf("expected 404 got %v", err)
	}

	// The sender cannot fulfill its own transfer either.
	_, err = f.svc.Fulfill(ctx, FulfillInput{
		ActingWalletID: sender.ID,
		TransferID:     pending.ID,
		Implicit:       true,
	})
	if !apperr.IsStatus(err, 404) {
		t.Fatalf("expected 404 for sender fulfill got %v", err)
	}
}

func TestCancelBySenderAndDeclineByReceiver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sender := f.wallet(t, "grove")
	receiver := f.wallet(t, "market")
	tokens := ledger.SeedTokens(f.ledger, sender.ID, 2)

	first, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: sender.ID,
		SenderWallet:   sender.ID,
		ReceiverWallet: receiver.ID,
		TokenIDs:       []string{tokens[0].ID},
	})
	if err != nil {
		t.Fatalf("send first: %v", err)
	}
	second, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: sender.ID,
		SenderWallet:   sender.ID,
		ReceiverWallet: receiver.ID,
		TokenIDs:       []string{tokens[1].ID},
	})
	if err != nil {
		t.Fatalf("send second: %v", err)
	}

	// The receiver may not cancel.
	if _, err := f.svc.Cancel(ctx, receiver.ID, first.ID); !apperr.IsStatus(err, 404) {
		t.Fatalf("expected 404 for receiver cancel got %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, sender.ID, first.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != ledger.TransferCancelled {
		t.Fatalf("expected state %s got %s", ledger.TransferCancelled, cancelled.State)
	}

	declined, err := f.svc.Decline(ctx, receiver.ID, second.ID)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if declined.State != ledger.TransferRejected {
		t.Fatalf("expected state %s got %s", ledger.TransferRejected, declined.State)
	}
}

func TestListTokensScopedToControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	holder := f.wallet(t, "holder")
	outsider := f.wallet(t, "outsider")
	ledger.SeedTokens(f.ledger, holder.ID, 3)

	tokens, err := f.svc.ListTokens(ctx, holder.ID, "holder", 1, 0)
	if err != nil {
		t.Fatalf("list own tokens: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens got %d", len(tokens))
	}

	_, err = f.svc.ListTokens(ctx, outsider.ID, holder.ID, 1, 0)
	if !apperr.IsStatus(err, 404) {
		t.Fatalf("expected 404 got %v", err)
	}
}

func TestManagerCanSendFromManagedWallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.wallet(t, "parent")
	receiver := f.wallet(t, "market")

	child, err := f.wallets.CreateManaged(ctx, parent.ID, "child-grove")
	if err != nil {
		t.Fatalf("create managed: %v", err)
	}
	f.grantSendTrust(t, child.ID, receiver.ID)
	tokens := ledger.SeedTokens(f.ledger, child.ID, 1)

	result, err := f.svc.Send(ctx, SendInput{
		ActingWalletID: parent.ID,
		SenderWallet:   child.ID,
		ReceiverWallet: receiver.ID,
		TokenIDs:       []string{tokens[0].ID},
	})
	if err != nil {
		t.Fatalf("send from managed wallet: %v", err)
	}
	if result.State != ledger.TransferCompleted {
		t.Fatalf("expected state %s got %s", ledger.TransferCompleted, result.State)
	}
}
