package trust

import "context"

// Hierarchy answers control questions over the managed-wallet graph. Control
// is derived on demand from trusted manage-type relationships: a wallet
// controls itself, every wallet it holds a trusted manage grant over, every
// wallet that yielded to it, and everything those wallets control in turn.
type Hierarchy struct {
	repo Repository
}

// NewHierarchy builds a hierarchy view over the relationship store.
func NewHierarchy(repo Repository) *Hierarchy {
	return &Hierarchy{repo: repo}
}

// HasControlOver reports whether controllerID controls subjectID, directly
// or transitively. Pure query; lookup errors propagate.
func (h *Hierarchy) HasControlOver(ctx context.Context, controllerID, subjectID string) (bool, error) {
	if controllerID == subjectID {
		return true, nil
	}
	// The acceptance-time circle check keeps the graph acyclic; the visited
	// set only guards against walking shared subtrees twice.
	visited := map[string]bool{controllerID: true}
	frontier := []string{controllerID}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		children, err := h.repo.TrustedChildren(ctx, current)
		if err != nil {
			return false, err
		}
		for _, child := range children {
			if child == subjectID {
				return true, nil
			}
			if !visited[child] {
				visited[child] = true
				frontier = append(frontier, child)
			}
		}
	}
	return false, nil
}

// ControlledWalletIDs returns walletID plus every wallet it controls, in
// breadth-first discovery order.
func (h *Hierarchy) ControlledWalletIDs(ctx context.Context, walletID string) ([]string, error) {
	visited := map[string]bool{walletID: true}
	out := []string{walletID}
	frontier := []string{walletID}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		children, err := h.repo.TrustedChildren(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if !visited[child] {
				visited[child] = true
				out = append(out, child)
				frontier = append(frontier, child)
			}
		}
	}
	return out, nil
}
