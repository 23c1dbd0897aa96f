package replica

import (
	"golang.org/x/exp/constraints"

	"github.com/arnavsood/raftkv/internal/types"
	"github.com/arnavsood/raftkv/internal/wire"
)

// clampMin mirrors clampMax in internal/raftlog: keep v from going below a
// floor. Used to hold nextIndex at 1, the smallest valid log position.
func clampMin[T constraints.Ordered](v, min T) T {
	if v < min {
		return min
	}
	return v
}

// handleLeader implements spec §4.3.1, §4.3.3, and the demotion rule §4.3.5.
func (n *Node) handleLeader(env wire.Envelope) {
	switch env.Type {
	case wire.Get:
		n.send(wire.NewOk(n.id, env.Src, n.id, env.MID, n.sm.Get(env.Key)))
	case wire.Put:
		n.log.Append(types.Entry{Key: env.Key, Value: env.Value, Term: n.currentTerm, MID: env.MID, ClientSrc: env.Src})
	case wire.AppendEntriesReply:
		n.handleAppendEntriesReply(env)
	case wire.AppendEntries:
		if env.Term > n.currentTerm {
			n.demoteWithFailures(env.Term)
			n.acceptAppendEntries(env)
		}
		// A same-term AE from another leader cannot happen (spec I4); ignore.
	case wire.RequestVote:
		if env.Term > n.currentTerm {
			n.demoteWithFailures(env.Term)
			n.decideVote(env)
		}
		// Lower/equal-term RequestVote from a stale candidate: ignored, a
		// current leader never grants votes.
	default:
		// RequestVoteReply and anything else arriving after we've already
		// won the election is stale and ignored.
	}
}

// demoteWithFailures implements spec §4.3.5: before converting to follower,
// fail every uncommitted write so its client isn't left hanging on an entry
// that a new leader may overwrite.
func (n *Node) demoteWithFailures(newTerm types.Term) {
	for i := n.lastApplied + 1; i <= n.log.Len(); i++ {
		e := n.log.At(i)
		n.send(wire.NewFail(n.id, e.ClientSrc, types.Broadcast, e.MID))
	}
	n.currentTerm = newTerm
	n.votedFor = ""
	n.role = types.Follower
	n.resetElectionDeadline()
}

// handleAppendEntriesReply implements spec §4.3.3.
func (n *Node) handleAppendEntriesReply(env wire.Envelope) {
	if !env.Result {
		if env.Term > n.currentTerm {
			n.demoteWithFailures(env.Term)
			return
		}
		n.nextIndex[env.Src] = clampMin(n.nextIndex[env.Src]-1, types.Index(1))
		return
	}

	n.nextIndex[env.Src] = env.LastIndex + 1
	n.matchIndex[env.Src] = env.LastIndex
}
