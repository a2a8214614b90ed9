package wallet

import (
	"context"
	"testing"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
	"github.com/canopy-ledger/canopy_ledger/internal/events"
	"github.com/canopy-ledger/canopy_ledger/internal/trust"
)

func newTestService(t *testing.T) (*Service, *trust.Service) {
	t.Helper()
	repo := NewMemoryRepository()
	trustSvc := trust.NewService(trust.NewMemoryRepository(), NewDirectory(repo), events.NewMemoryRecorder())
	return NewService(repo, trustSvc), trustSvc
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, CreateInput{Name: "grove", Password: "hunter2hunter2"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.ID == "" || w.Name != "grove" {
		t.Fatalf("unexpected wallet %+v", w)
	}

	authed, err := svc.Authenticate(ctx, Credentials{Name: "grove", Password: "hunter2hunter2"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != w.ID {
		t.Fatalf("expected wallet %s got %s", w.ID, authed.ID)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Name: "grove", Password: "wrong-password"}); !apperr.IsStatus(err, 403) {
		t.Fatalf("expected 403 got %v", err)
	}
}

func TestCreateRejectsShortPassword(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{Name: "grove", Password: "short"})
	if !apperr.IsStatus(err, 422) {
		t.Fatalf("expected 422 got %v", err)
	}
}

func TestCreateDuplicateNameConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{Name: "grove", Password: "hunter2hunter2"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(ctx, CreateInput{Name: "grove", Password: "hunter2hunter2"})
	if !apperr.IsStatus(err, 409) {
		t.Fatalf("expected 409 got %v", err)
	}
}

func TestCreateManagedGrantsControl(t *testing.T) {
	svc, trustSvc := newTestService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, CreateInput{Name: "parent", Password: "hunter2hunter2"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := svc.CreateManaged(ctx, parent.ID, "child")
	if err != nil {
		t.Fatalf("create managed: %v", err)
	}
	if len(child.PasswordHash) != 0 {
		t.Fatal("managed wallets must not carry credentials")
	}

	controls, err := trustSvc.HasControlOver(ctx, parent.ID, child.ID)
	if err != nil {
		t.Fatalf("hasControlOver: %v", err)
	}
	if !controls {
		t.Fatal("expected parent to control the managed wallet")
	}

	// A credential-less wallet cannot log in.
	if _, err := svc.Authenticate(ctx, Credentials{Name: "child", Password: "anything-at-all"}); !apperr.IsStatus(err, 403) {
		t.Fatalf("expected 403 got %v", err)
	}
}

func TestResolveByIDAndName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	w, err := svc.Create(ctx, CreateInput{Name: "grove", Password: "hunter2hunter2"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	byID, err := svc.Resolve(ctx, w.ID)
	if err != nil {
		t.Fatalf("resolve by id: %v", err)
	}
	byName, err := svc.Resolve(ctx, "grove")
	if err != nil {
		t.Fatalf("resolve by name: %v", err)
	}
	if byID.ID != w.ID || byName.ID != w.ID {
		t.Fatalf("expected both lookups to find %s", w.ID)
	}

	if _, err := svc.Resolve(ctx, "missing"); !apperr.IsStatus(err, 404) {
		t.Fatalf("expected 404 got %v", err)
	}
}

func TestListScopedWithNameFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, CreateInput{Name: "parent", Password: "hunter2hunter2"})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if _, err := svc.CreateManaged(ctx, parent.ID, "north-grove"); err != nil {
		t.Fatalf("create managed: %v", err)
	}
	if _, err := svc.CreateManaged(ctx, parent.ID, "south-field"); err != nil {
		t.Fatalf("create managed: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Name: "stranger-grove", Password: "hunter2hunter2"}); err != nil {
		t.Fatalf("create stranger: %v", err)
	}

	matches, err := svc.List(ctx, parent.ID, "grove")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "north-grove" {
		t.Fatalf("expected only the controlled grove wallet, got %v", matches)
	}

	all, err := svc.List(ctx, parent.ID, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected parent plus two children, got %d", len(all))
	}
}
