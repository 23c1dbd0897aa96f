package replica

import (
	"github.com/arnavsood/raftkv/internal/types"
	"github.com/arnavsood/raftkv/internal/wire"
)

// applyCommitted implements the apply path of spec §4.5: advance
// last_applied toward commit_index, mutate the state map in log order, and
// (only on the leader) ack the originating client once its write commits.
func (n *Node) applyCommitted() {
	for n.commitIndex > n.lastApplied {
		entry := n.log.At(n.lastApplied + 1)
		n.sm.Apply(entry.Key, entry.Value)
		if n.role == types.Leader {
			n.send(wire.NewOk(n.id, entry.ClientSrc, n.id, entry.MID, ""))
		}
		n.lastApplied++
	}
}
