package trust

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/canopy-ledger/canopy_ledger/internal/apperr"
	"github.com/canopy-ledger/canopy_ledger/internal/events"
)

// WalletDirectory resolves wallet identities for the trust engine.
type WalletDirectory interface {
	// Ref returns the wallet with the given id.
	Ref(ctx context.Context, id string) (WalletRef, error)
	// Resolve accepts a wallet id or a wallet name.
	Resolve(ctx context.Context, idOrName string) (WalletRef, error)
}

// Service is the trust relationship state machine.
type Service struct {
	repo      Repository
	wallets   WalletDirectory
	recorder  events.Recorder
	hierarchy *Hierarchy
}

// NewService builds the trust engine.
func NewService(repo Repository, wallets WalletDirectory, recorder events.Recorder) *Service {
	return &Service{
		repo:      repo,
		wallets:   wallets,
		recorder:  recorder,
		hierarchy: NewHierarchy(repo),
	}
}

// HasControlOver reports whether controllerID controls subjectID.
func (s *Service) HasControlOver(ctx context.Context, controllerID, subjectID string) (bool, error) {
	return s.hierarchy.HasControlOver(ctx, controllerID, subjectID)
}

// ControlledWalletIDs returns walletID plus every wallet it controls.
func (s *Service) ControlledWalletIDs(ctx context.Context, walletID string) ([]string, error) {
	return s.hierarchy.ControlledWalletIDs(ctx, walletID)
}

// RequestInput captures a trust request. Requester and requestee may be
// wallet ids or names; the originator is the authenticated wallet.
type RequestInput struct {
	RequestType        RequestType
	RequesterWallet    string
	RequesteeWallet    string
	OriginatorWalletID string
}

// Request creates a trust relationship in requested state after running the
// full authorization sequence. The requester is recorded as the actor for
// every request type, receive and yield included.
func (s *Service) Request(ctx context.Context, in RequestInput) (View, error) {
	if !in.RequestType.Known() {
		return View{}, apperr.Invalid("trust request type %q is not supported", in.RequestType)
	}

	requester, err := s.wallets.Resolve(ctx, in.RequesterWallet)
	if err != nil {
		return View{}, err
	}
	requestee, err := s.wallets.Resolve(ctx, in.RequesteeWallet)
	if err != nil {
		return View{}, err
	}
	originator, err := s.wallets.Ref(ctx, in.OriginatorWalletID)
	if err != nil {
		return View{}, err
	}

	actor, target := requester, requestee

	controlsActor, err := s.hierarchy.HasControlOver(ctx, originator.ID, actor.ID)
	if err != nil {
		return View{}, err
	}
	if !controlsActor {
		return View{}, apperr.Forbidden("wallet %s may not request trust on behalf of wallet %s", originator.Name, actor.Name)
	}

	if originator.ID != actor.ID && originator.ID != target.ID {
		controlsTarget, err := s.hierarchy.HasControlOver(ctx, originator.ID, target.ID)
		if err != nil {
			return View{}, err
		}
		if controlsTarget {
			return View{}, apperr.Forbidden("wallet %s may not broker trust between two wallets it manages", originator.Name)
		}
	}

	actorControlsTarget, err := s.hierarchy.HasControlOver(ctx, actor.ID, target.ID)
	if err != nil {
		return View{}, err
	}
	if actorControlsTarget {
		return View{}, apperr.Conflict("wallet %s already manages wallet %s", actor.Name, target.Name)
	}

	if originator.ID == target.ID {
		return View{}, apperr.Forbidden("wallet %s may not target itself through a wallet it manages", originator.Name)
	}

	if err := s.checkDuplicateRequest(ctx, in.RequestType, actor.ID, target.ID); err != nil {
		return View{}, err
	}

	now := time.Now().UTC()
	category, _ := in.RequestType.Category()
	rel := Relationship{
		ID:                 uuid.NewString(),
		Type:               category,
		RequestType:        in.RequestType,
		ActorWalletID:      actor.ID,
		TargetWalletID:     target.ID,
		OriginatorWalletID: originator.ID,
		State:              StateRequested,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, rel); err != nil {
		return View{}, err
	}

	s.record(ctx, events.KindTrustRequest, rel, originator.ID, target.ID)

	return View{
		Relationship:     rel,
		ActorWallet:      actor.Name,
		TargetWallet:     target.Name,
		OriginatorWallet: originator.Name,
	}, nil
}

// checkDuplicateRequest rejects a request whose exact pair, or whose mirror
// with actor and target swapped, is already requested or trusted.
func (s *Service) checkDuplicateRequest(ctx context.Context, rt RequestType, actorID, targetID string) error {
	category, ok := rt.Category()
	if !ok || (category != TypeSend && category != TypeManage) {
		// Request types are validated at the boundary; reaching this point
		// with anything else is a logic error, not bad input.
		return apperr.Internal("unsupported trust category for request type %q", rt)
	}

	exact, err := s.repo.ExistsActive(ctx, rt, actorID, targetID)
	if err != nil {
		return err
	}
	if exact {
		return apperr.Conflict("duplicate trust request")
	}

	mirrored, err := s.repo.ExistsActive(ctx, rt.Mirror(), targetID, actorID)
	if err != nil {
		return err
	}
	if mirrored {
		return apperr.Conflict("duplicate trust request: mirrored relationship already exists")
	}
	return nil
}

// checkManageCircle blocks acceptance of a manage-type relationship that
// would make the actor and target manage each other. Four trusted
// relationships can close the circle: manage(target, actor),
// yield(actor, target), yield(target, actor) and manage(actor, target),
// depending on the request type under acceptance.
func (s *Service) checkManageCircle(ctx context.Context, rel Relationship) error {
	type edge struct {
		rt      RequestType
		actorID string
		target  string
	}
	var inverses []edge
	switch rel.RequestType {
	case RequestManage:
		// Accepting manage(actor, target) means actor manages target; any
		// trusted edge making target manage actor closes the circle.
		inverses = []edge{
			{RequestManage, rel.TargetWalletID, rel.ActorWalletID},
			{RequestYield, rel.ActorWalletID, rel.TargetWalletID},
		}
	case RequestYield:
		// Accepting yield(actor, target) means target manages actor.
		inverses = []edge{
			{RequestYield, rel.TargetWalletID, rel.ActorWalletID},
			{RequestManage, rel.ActorWalletID, rel.TargetWalletID},
		}
	default:
		return nil
	}
	for _, inv := range inverses {
		found, err := s.repo.ExistsTrusted(ctx, inv.rt, inv.actorID, inv.target)
		if err != nil {
			return err
		}
		if found {
			return apperr.Conflict("accepting would create a management circle")
		}
	}
	return nil
}

// Accept transitions a requested relationship addressed to a wallet the
// caller controls into trusted state.
func (s *Service) Accept(ctx context.Context, relationshipID, walletID string) (View, error) {
	rel, err := s.scopedLookup(ctx, relationshipID, walletID)
	if err != nil {
		return View{}, err
	}
	if rel.State != StateRequested {
		return View{}, apperr.Conflict("trust relationship %s is not awaiting a decision", relationshipID)
	}
	if rel.Type == TypeManage {
		if err := s.checkManageCircle(ctx, rel); err != nil {
			return View{}, err
		}
	}
	return s.transition(ctx, rel, StateTrusted, events.KindTrustRequestGranted)
}

// Decline transitions a requested relationship addressed to a wallet the
// caller controls into canceled_by_target state. Declining cannot create a
// cycle, so no circularity check runs.
func (s *Service) Decline(ctx context.Context, relationshipID, walletID string) (View, error) {
	rel, err := s.scopedLookup(ctx, relationshipID, walletID)
	if err != nil {
		return View{}, err
	}
	if rel.State != StateRequested {
		return View{}, apperr.Conflict("trust relationship %s is not awaiting a decision", relationshipID)
	}
	return s.transition(ctx, rel, StateCanceledByTarget, events.KindTrustRequestDeclined)
}

// Cancel withdraws a requested relationship. Only the originator may cancel.
func (s *Service) Cancel(ctx context.Context, relationshipID, walletID string) (View, error) {
	rel, err := s.repo.Get(ctx, relationshipID)
	if err != nil {
		return View{}, err
	}
	if rel.OriginatorWalletID != walletID {
		return View{}, apperr.Forbidden("only the originator may cancel a trust request")
	}
	if rel.State != StateRequested {
		return View{}, apperr.Conflict("trust relationship %s is not awaiting a decision", relationshipID)
	}
	return s.transition(ctx, rel, StateCancelledByOriginator, events.KindTrustRequestCancelled)
}

// scopedLookup fetches the relationship and verifies it is addressed to a
// wallet the caller controls. Anything outside that scope reports NotFound
// so existence is not leaked.
func (s *Service) scopedLookup(ctx context.Context, relationshipID, walletID string) (Relationship, error) {
	rel, err := s.repo.Get(ctx, relationshipID)
	if err != nil {
		return Relationship{}, err
	}
	controls, err := s.hierarchy.HasControlOver(ctx, walletID, rel.TargetWalletID)
	if err != nil {
		return Relationship{}, err
	}
	if !controls {
		return Relationship{}, apperr.NotFound("trust relationship %s not found", relationshipID)
	}
	return rel, nil
}

func (s *Service) transition(ctx context.Context, rel Relationship, to State, kind string) (View, error) {
	now := time.Now().UTC()
	if err := s.repo.UpdateState(ctx, rel.ID, rel.State, to, now); err != nil {
		return View{}, err
	}
	rel.State = to
	rel.UpdatedAt = now

	s.record(ctx, kind, rel, rel.OriginatorWalletID, rel.TargetWalletID)

	return s.view(ctx, rel)
}

// HasTrust reports whether the trusted relationship set authorizes a direct
// transfer from sender to receiver: either a send grant sender to receiver
// or a receive grant receiver to sender.
func (s *Service) HasTrust(ctx context.Context, t Type, senderID, receiverID string) (bool, error) {
	if t != TypeSend {
		return false, apperr.Internal("unsupported trust type %q for transfer authorization", t)
	}
	granted, err := s.repo.ExistsTrusted(ctx, RequestSend, senderID, receiverID)
	if err != nil || granted {
		return granted, err
	}
	return s.repo.ExistsTrusted(ctx, RequestReceive, receiverID, senderID)
}

// GrantManage records a manage relationship directly in trusted state. Used
// when a wallet creates a sub-wallet it manages from birth.
func (s *Service) GrantManage(ctx context.Context, parentID, childID string) error {
	if err := s.checkDuplicateRequest(ctx, RequestManage, parentID, childID); err != nil {
		return err
	}
	now := time.Now().UTC()
	rel := Relationship{
		ID:                 uuid.NewString(),
		Type:               TypeManage,
		RequestType:        RequestManage,
		ActorWalletID:      parentID,
		TargetWalletID:     childID,
		OriginatorWalletID: parentID,
		State:              StateTrusted,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, rel); err != nil {
		return err
	}
	s.record(ctx, events.KindTrustRequestGranted, rel, parentID, childID)
	return nil
}

// RequestedTo returns the requests addressed to the wallet or to any wallet
// it controls.
func (s *Service) RequestedTo(ctx context.Context, walletID string) ([]View, error) {
	ids, err := s.hierarchy.ControlledWalletIDs(ctx, walletID)
	if err != nil {
		return nil, err
	}
	rels, err := s.repo.ListByTargets(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, rels)
}

// ListByWallet returns every relationship involving the wallet.
func (s *Service) ListByWallet(ctx context.Context, walletID string) ([]View, error) {
	rels, err := s.repo.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, rels)
}

func (s *Service) views(ctx context.Context, rels []Relationship) ([]View, error) {
	out := make([]View, 0, len(rels))
	for _, rel := range rels {
		v, err := s.view(ctx, rel)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, rel Relationship) (View, error) {
	actor, err := s.wallets.Ref(ctx, rel.ActorWalletID)
	if err != nil {
		return View{}, err
	}
	target, err := s.wallets.Ref(ctx, rel.TargetWalletID)
	if err != nil {
		return View{}, err
	}
	originator, err := s.wallets.Ref(ctx, rel.OriginatorWalletID)
	if err != nil {
		return View{}, err
	}
	return View{
		Relationship:     rel,
		ActorWallet:      actor.Name,
		TargetWallet:     target.Name,
		OriginatorWallet: originator.Name,
	}, nil
}

// record emits one event per affected party. Recording is fire-and-forget.
func (s *Service) record(ctx context.Context, kind string, rel Relationship, walletIDs ...string) {
	if s.recorder == nil {
		return
	}
	payload := map[string]any{
		"trust_relationship_id": rel.ID,
		"request_type":          string(rel.RequestType),
		"actor_wallet_id":       rel.ActorWalletID,
		"target_wallet_id":      rel.TargetWalletID,
		"state":                 string(rel.State),
	}
	seen := make(map[string]bool, len(walletIDs))
	for _, id := range walletIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		_ = s.recorder.Record(ctx, events.Event{
			WalletID:   id,
			Type:       kind,
			Payload:    payload,
			OccurredAt: rel.UpdatedAt,
		})
	}
}
