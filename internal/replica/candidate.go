package replica

import (
	"github.com/arnavsood/raftkv/internal/types"
	"github.com/arnavsood/raftkv/internal/wire"
)

// handleCandidate implements spec §4.4.3.
func (n *Node) handleCandidate(env wire.Envelope) {
	switch env.Type {
	case wire.RequestVoteReply:
		if n.adoptTermIfNewer(env.Term) {
			return
		}
		if env.Term == n.currentTerm && env.Result {
			n.votesReceived++
			if n.votesReceived > (len(n.peers)+1)/2 {
				n.becomeLeader()
			}
		}
	case wire.AppendEntries:
		if env.Term >= n.currentTerm {
			if env.Term > n.currentTerm {
				n.currentTerm = env.Term
				n.votedFor = ""
			}
			n.role = types.Follower
			n.resetElectionDeadline()
			n.acceptAppendEntries(env)
		}
	case wire.RequestVote:
		if env.Term > n.currentTerm {
			n.adoptTermIfNewer(env.Term)
			n.decideVote(env)
		}
	case wire.Get, wire.Put:
		n.redirectClient(env)
	default:
		// ignored
	}
}

// startElection implements spec §4.4.1.
func (n *Node) startElection() {
	n.currentTerm++
	n.role = types.Candidate
	n.votedFor = n.id
	n.votesReceived = 1
	n.resetElectionDeadline()

	lastIndex := n.log.Len()
	lastTerm := n.log.LastTerm()
	n.broadcast(wire.NewRequestVote(n.id, types.Broadcast, n.currentTerm, lastIndex, lastTerm))
}
