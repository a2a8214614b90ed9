package trust

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
	"github.com/canopy-ledger/canopy_ledger/internal/events"
)

type stubDirectory struct {
	byID   map[string]WalletRef
	byName map[string]WalletRef
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{byID: map[string]WalletRef{}, byName: map[string]WalletRef{}}
}

func (d *stubDirectory) add(name string) WalletRef {
	ref := WalletRef{ID: uuid.NewString(), Name: name}
	d.byID[ref.ID] = ref
	d.byName[ref.Name] = ref
	return ref
}

func (d *stubDirectory) Ref(_ context.Context, id string) (WalletRef, error) {
	ref, ok := d.byID[id]
	if !ok {
		return WalletRef{}, apperr.NotFound("wallet %s not found", id)
	}
	return ref, nil
}

func (d *stubDirectory) Resolve(_ context.Context, idOrName string) (WalletRef, error) {
	if ref, ok := d.byID[idOrName]; ok {
		return ref, nil
	}
	if ref, ok := d.byName[idOrName]; ok {
		return ref, nil
	}
	return WalletRef{}, apperr.NotFound("wallet %s not found", idOrName)
}

func newTestService(t *testing.T) (*Service, *stubDirectory, *events.MemoryRecorder) {
	t.Helper()
	dir := newStubDirectory()
	recorder := events.NewMemoryRecorder()
	svc := NewService(NewMemoryRepository(), dir, recorder)
	return svc, dir, recorder
}

func TestRequestRecordsRequesterAsActor(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("grower-a")
	b := dir.add("grower-b")

	// Receive keeps the requester as actor instead of swapping the pair.
	view, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestReceive,
		RequesterWallet:    a.Name,
		RequesteeWallet:    b.ID,
		OriginatorWalletID: a.ID,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if view.State != StateRequested {
		t.Fatalf("expected state %s got %s", StateRequested, view.State)
	}
	if view.ActorWalletID != a.ID || view.TargetWalletID != b.ID {
		t.Fatalf("expected actor %s target %s got actor %s target %s", a.ID, b.ID, view.ActorWalletID, view.TargetWalletID)
	}
	if view.Type != TypeSend {
		t.Fatalf("expected category %s got %s", TypeSend, view.Type)
	}
}

func TestRequestUnknownTypeInvalid(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")

	_, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestType("deed"),
		RequesterWallet:    a.ID,
		RequesteeWallet:    b.ID,
		OriginatorWalletID: a.ID,
	})
	if !apperr.IsStatus(err, 422) {
		t.Fatalf("expected 422 got %v", err)
	}
}

func TestRequestDuplicateConflict(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")

	if _, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    a.ID,
		RequesteeWallet:    b.ID,
		OriginatorWalletID: a.ID,
	}); err != nil {
		t.Fatalf("first request: %v", err)
	}

	_, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    a.ID,
		RequesteeWallet:    b.ID,
		OriginatorWalletID: a.ID,
	})
	if !apperr.IsStatus(err, 409) {
		t.Fatalf("expected 409 for exact duplicate got %v", err)
	}

	// The mirrored pair counts as a duplicate too: receive(b, a) covers the
	// same grant as send(a, b).
	_, err = svc.Request(ctx, RequestInput{
		RequestType:        RequestReceive,
		RequesterWallet:    b.ID,
		RequesteeWallet:    a.ID,
		OriginatorWalletID: b.ID,
	})
	if !apperr.IsStatus(err, 409) {
		t.Fatalf("expected 409 for mirrored duplicate got %v", err)
	}
}

func TestRequestOnBehalfRequiresControl(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")
	c := dir.add("c")

	_, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    b.ID,
		RequesteeWallet:    c.ID,
		OriginatorWalletID: a.ID,
	})
	if !apperr.IsStatus(err, 403) {
		t.Fatalf("expected 403 got %v", err)
	}
}

func TestRequestBrokeringBetweenManagedWalletsForbidden(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	parent := dir.add("parent")
	left := dir.add("left")
	right := dir.add("right")

	if err := svc.GrantManage(ctx, parent.ID, left.ID); err != nil {
		t.Fatalf("grant left: %v", err)
	}
	if err := svc.GrantManage(ctx, parent.ID, right.ID); err != nil {
		t.Fatalf("grant right: %v", err)
	}

	_, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    left.ID,
		RequesteeWallet:    right.ID,
		OriginatorWalletID: parent.ID,
	})
	if !apperr.IsStatus(err, 403) {
		t.Fatalf("expected 403 got %v", err)
	}
}

func TestRequestTowardManagedWalletConflict(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	parent := dir.add("parent")
	child := dir.add("child")

	if err := svc.GrantManage(ctx, parent.ID, child.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}

	_, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    parent.ID,
		RequesteeWallet:    child.ID,
		OriginatorWalletID: parent.ID,
	})
	if !apperr.IsStatus(err, 409) {
		t.Fatalf("expected 409 got %v", err)
	}
}

func TestAcceptGrantsTrust(t *testing.T) {
	svc, dir, recorder := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")

	view, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    a.ID,
		RequesteeWallet:    b.ID,
		OriginatorWalletID: a.ID,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	granted, err := svc.Accept(ctx, view.ID, b.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if granted.State != StateTrusted {
		t.Fatalf("expected state %s got %s", StateTrusted, granted.State)
	}

	trusted, err := svc.HasTrust(ctx, TypeSend, a.ID, b.ID)
	if err != nil {
		t.Fatalf("hasTrust: %v", err)
	}
	if !trusted {
		t.Fatal("expected send trust after acceptance")
	}

	if got := recorder.ByType(events.KindTrustRequestGranted); len(got) == 0 {
		t.Fatal("expected a granted event")
	}
}

func TestHasTrustViaReceiveGrant(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	sender := dir.add("sender")
	receiver := dir.add("receiver")

	view, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestReceive,
		RequesterWallet:    receiver.ID,
		RequesteeWallet:    sender.ID,
		OriginatorWalletID: receiver.ID,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Accept(ctx, view.ID, sender.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	trusted, err := svc.HasTrust(ctx, TypeSend, sender.ID, receiver.ID)
	if err != nil {
		t.Fatalf("hasTrust: %v", err)
	}
	if !trusted {
		t.Fatal("expected receive grant to authorize sender to receiver")
	}
}

func TestAcceptOutsideScopeNotFound(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")
	stranger := dir.add("stranger")

	view, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    a.ID,
		RequesteeWallet:    b.ID,
		OriginatorWalletID: a.ID,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err = svc.Accept(ctx, view.ID, stranger.ID)
	if !apperr.IsStatus(err, 404) {
		t.Fatalf("expected 404 got %v", err)
	}
}

func TestDecisionOnSettledRequestConflict(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")

	view, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    a.ID,
		RequesteeWallet:    b.ID,
		OriginatorWalletID: a.ID,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Decline(ctx, view.ID, b.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}

	_, err = svc.Accept(ctx, view.ID, b.ID)
	if !apperr.IsStatus(err, 409) {
		t.Fatalf("expected 409 got %v", err)
	}
}

func TestCancelOnlyByOriginator(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")

	view, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    a.ID,
		RequesteeWallet:    b.ID,
		OriginatorWalletID: a.ID,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := svc.Cancel(ctx, view.ID, b.ID); !apperr.IsStatus(err, 403) {
		t.Fatalf("expected 403 for target cancel got %v", err)
	}

	cancelled, err := svc.Cancel(ctx, view.ID, a.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.State != StateCancelledByOriginator {
		t.Fatalf("expected state %s got %s", StateCancelledByOriginator, cancelled.State)
	}
}

func TestAcceptManageCircleConflict(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")

	if err := svc.GrantManage(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}

	view, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestManage,
		RequesterWallet:    b.ID,
		RequesteeWallet:    a.ID,
		OriginatorWalletID: b.ID,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err = svc.Accept(ctx, view.ID, a.ID)
	if !apperr.IsStatus(err, 409) {
		t.Fatalf("expected 409 got %v", err)
	}
}

func TestRequestedToIncludesManagedWallets(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	parent := dir.add("parent")
	child := dir.add("child")
	stranger := dir.add("stranger")

	if err := svc.GrantManage(ctx, parent.ID, child.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestSend,
		RequesterWallet:    stranger.ID,
		RequesteeWallet:    child.ID,
		OriginatorWalletID: stranger.ID,
	}); err != nil {
		t.Fatalf("request: %v", err)
	}

	views, err := svc.RequestedTo(ctx, parent.ID)
	if err != nil {
		t.Fatalf("requestedTo: %v", err)
	}

	found := false
	for _, v := range views {
		if v.TargetWalletID == child.ID && v.State == StateRequested {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the child's pending request in the parent's queue")
	}
}
