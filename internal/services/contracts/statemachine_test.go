package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aethermarket/coordinator/internal/storage"
)

func TestTransitionTableIsTotal(t *testing.T) {
	// every non-terminal status must have at least one outgoing edge, and
	// every terminal status must have none (aside from cancelled, which
	// still drains to terminated).
	nonTerminal := []string{
		storage.StatusRequested,
		storage.StatusPending,
		storage.StatusAccepted,
		storage.StatusProvisioning,
		storage.StatusProvisioned,
		storage.StatusActive,
		storage.StatusCancelled,
	}
	for _, status := range nonTerminal {
		assert.NotEmpty(t, transitions[status], "status %q should have outgoing edges", status)
	}

	for _, status := range []string{storage.StatusCompleted, storage.StatusRejected, storage.StatusTerminated} {
		assert.True(t, isTerminal(status))
		assert.Empty(t, transitions[status])
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{storage.StatusRequested, storage.StatusPending, true},
		{storage.StatusRequested, storage.StatusRejected, true},
		{storage.StatusRequested, storage.StatusActive, false},
		{storage.StatusPending, storage.StatusAccepted, true},
		{storage.StatusAccepted, storage.StatusProvisioning, true},
		{storage.StatusAccepted, storage.StatusCompleted, false},
		{storage.StatusProvisioning, storage.StatusProvisioned, true},
		{storage.StatusProvisioned, storage.StatusActive, true},
		{storage.StatusActive, storage.StatusCompleted, true},
		{storage.StatusActive, storage.StatusCancelled, true},
		{storage.StatusCancelled, storage.StatusTerminated, true},
		{storage.StatusCompleted, storage.StatusActive, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, canTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}
