package trust

import "time"

// Type is the broad trust category derived from a request type.
type Type string

const (
	// TypeSend covers send and receive grants.
	TypeSend Type = "send"
	// TypeManage covers manage and yield grants; trusted manage-type
	// relationships define the wallet hierarchy.
	TypeManage Type = "manage"
)

// RequestType is the specific capability a trust request asks for. The
// requester is always recorded as the actor, including for receive and
// yield.
type RequestType string

const (
	RequestSend    RequestType = "send"
	RequestReceive RequestType = "receive"
	RequestManage  RequestType = "manage"
	RequestYield   RequestType = "yield"
)

// Known reports whether rt is one of the four supported request types.
func (rt RequestType) Known() bool {
	switch rt {
	case RequestSend, RequestReceive, RequestManage, RequestYield:
		return true
	}
	return false
}

// Category maps the request type onto its trust category. The second return
// is false for unsupported request types.
func (rt RequestType) Category() (Type, bool) {
	switch rt {
	case RequestSend, RequestReceive:
		return TypeSend, true
	case RequestManage, RequestYield:
		return TypeManage, true
	}
	return "", false
}

// Mirror returns the semantically opposite request type: a receive grant
// from B to A mirrors a send grant from A to B, and likewise manage/yield.
func (rt RequestType) Mirror() RequestType {
	switch rt {
	case RequestSend:
		return RequestReceive
	case RequestReceive:
		return RequestSend
	case RequestManage:
		return RequestYield
	case RequestYield:
		return RequestManage
	}
	return rt
}

// State is the lifecycle state of a relationship. Only StateRequested may
// transition; every other state is stable.
type State string

const (
	StateRequested             State = "requested"
	StateTrusted               State = "trusted"
	StateCanceledByTarget      State = "canceled_by_target"
	StateCancelledByOriginator State = "cancelled_by_originator"
)

// ActiveStates are the states in which a relationship blocks duplicates.
var ActiveStates = []State{StateRequested, StateTrusted}

// Relationship is an authorization record between two wallets. The actor is
// granted the capability, the target is acted upon, and the originator is
// the wallet that initiated the request.
type Relationship struct {
	ID                 string
	Type               Type
	RequestType        RequestType
	ActorWalletID      string
	TargetWalletID     string
	OriginatorWalletID string
	State              State
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// View is a relationship denormalized with resolved wallet names for API
// responses.
type View struct {
	Relationship
	ActorWallet      string
	TargetWallet     string
	OriginatorWallet string
}

// WalletRef is the minimal wallet identity the trust engine needs.
type WalletRef struct {
	ID   string
	Name string
}
