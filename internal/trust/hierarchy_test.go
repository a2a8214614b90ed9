package trust

import (
	"context"
	"testing"
)

func TestControlIsTransitive(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")
	c := dir.add("c")

	if err := svc.GrantManage(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("grant a->b: %v", err)
	}
	if err := svc.GrantManage(ctx, b.ID, c.ID); err != nil {
		t.Fatalf("grant b->c: %v", err)
	}

	controls, err := svc.HasControlOver(ctx, a.ID, c.ID)
	if err != nil {
		t.Fatalf("hasControlOver: %v", err)
	}
	if !controls {
		t.Fatal("expected control to span two manage hops")
	}

	reverse, err := svc.HasControlOver(ctx, c.ID, a.ID)
	if err != nil {
		t.Fatalf("hasControlOver reverse: %v", err)
	}
	if reverse {
		t.Fatal("control must not run upward")
	}
}

func TestControlViaYieldGrant(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	parent := dir.add("parent")
	child := dir.add("child")

	// child yields to parent: actor child, target parent, trusted.
	view, err := svc.Request(ctx, RequestInput{
		RequestType:        RequestYield,
		RequesterWallet:    child.ID,
		RequesteeWallet:    parent.ID,
		OriginatorWalletID: child.ID,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Accept(ctx, view.ID, parent.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	controls, err := svc.HasControlOver(ctx, parent.ID, child.ID)
	if err != nil {
		t.Fatalf("hasControlOver: %v", err)
	}
	if !controls {
		t.Fatal("expected a trusted yield grant to give the target control")
	}
}

func TestControlledWalletIDsIncludesSelf(t *testing.T) {
	svc, dir, _ := newTestService(t)
	ctx := context.Background()
	a := dir.add("a")
	b := dir.add("b")

	if err := svc.GrantManage(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}

	ids, err := svc.ControlledWalletIDs(ctx, a.ID)
	if err != nil {
		t.Fatalf("controlledWalletIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != a.ID {
		t.Fatalf("expected [self, child] got %v", ids)
	}
}
