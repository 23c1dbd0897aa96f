package replica

import (
	"sync/atomic"

	"github.com/arnavsood/raftkv/internal/types"
)

// Status is a point-in-time, read-only view of a replica, published by the
// event loop for the admin HTTP surface (internal/adminhttp). Publishing a
// snapshot after each tick keeps the event loop itself lock-free — nothing
// inside Run ever blocks on a reader — while still letting another
// goroutine (the admin HTTP server) observe it safely.
type Status struct {
	ID          types.NodeID
	Role        types.Role
	Term        types.Term
	LeaderHint  types.NodeID
	CommitIndex types.Index
	LastApplied types.Index
	LogLength   types.Index
	StateSize   int
}

type atomicStatus struct {
	v     atomic.Pointer[Status]
	state atomic.Pointer[map[string]string]
}

// Status returns the most recently published snapshot. Safe to call from
// any goroutine.
func (n *Node) Status() Status {
	if s := n.status.v.Load(); s != nil {
		return *s
	}
	return Status{ID: n.id, Role: types.Follower}
}

func (n *Node) publishStatus() {
	n.status.v.Store(&Status{
		ID:          n.id,
		Role:        n.role,
		Term:        n.currentTerm,
		LeaderHint:  n.leaderHint,
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		LogLength:   n.log.Len(),
		StateSize:   n.sm.Len(),
	})
	state := n.sm.Snapshot()
	n.status.state.Store(&state)
}

// StateSnapshot returns a defensive copy of the applied map as of the most
// recently published tick, for the admin HTTP surface. Safe to call from any
// goroutine.
func (n *Node) StateSnapshot() map[string]string {
	out := make(map[string]string)
	if p := n.status.state.Load(); p != nil {
		for k, v := range *p {
			out[k] = v
		}
	}
	return out
}

// CommittedEntries returns a copy of every log entry up to commit_index, for
// property R2 (replaying the committed prefix must reproduce the applied
// map). It deliberately stops at commit_index rather than the full log: an
// uncommitted suffix the leader hasn't yet replicated is not part of R2's
// claim.
func (n *Node) CommittedEntries() []types.Entry {
	out := make([]types.Entry, 0, n.commitIndex)
	for i := types.Index(1); i <= n.commitIndex; i++ {
		out = append(out, n.log.At(i))
	}
	return out
}
