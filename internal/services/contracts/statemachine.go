package contracts

import "github.com/aethermarket/coordinator/internal/storage"

// transitions is the §4.5 adjacency table: edge[from][to] is allowed only
// if present. CreateRentalRequest is the only way to reach "requested"; it
// is not a target of any transition here.
var transitions = map[string]map[string]bool{
	storage.StatusRequested: {
		storage.StatusPending:  true, // payment capture succeeded
		storage.StatusRejected: true, // payment capture failed
	},
	storage.StatusPending: {
		storage.StatusAccepted: true, // provider accepts, or auto_accept_rentals
		storage.StatusRejected: true, // provider rejects, or payment timeout
	},
	storage.StatusAccepted: {
		storage.StatusProvisioning: true, // agent reports provisioning start
		storage.StatusCancelled:    true, // requester or provider cancels pre-provisioning
	},
	storage.StatusProvisioning: {
		storage.StatusProvisioned: true, // agent reports success
		storage.StatusCancelled:   true, // provisioning failed or timed out
	},
	storage.StatusProvisioned: {
		storage.StatusActive: true, // provider confirms, or auto_accept_rentals
	},
	storage.StatusActive: {
		storage.StatusCompleted: true, // duration elapsed
		storage.StatusCancelled: true, // early termination by requester/provider
	},
	storage.StatusCancelled: {
		storage.StatusTerminated: true, // agent confirms resource teardown
	},
}

func canTransition(from, to string) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// isTerminal reports whether status has no outgoing edges left to traverse
// other than the ones already modeled (completed/rejected/terminated).
func isTerminal(status string) bool {
	switch status {
	case storage.StatusCompleted, storage.StatusRejected, storage.StatusTerminated:
		return true
	}
	return false
}
