package replica

import (
	"github.com/arnavsood/raftkv/internal/types"
	"github.com/arnavsood/raftkv/internal/wire"
)

// handleFollower implements spec §4.2.
func (n *Node) handleFollower(env wire.Envelope) {
	switch env.Type {
	case wire.AppendEntries:
		n.adoptTermIfNewer(env.Term)
		n.resetElectionDeadline()
		n.acceptAppendEntries(env)
	case wire.RequestVote:
		n.adoptTermIfNewer(env.Term)
		n.resetElectionDeadline()
		n.decideVote(env)
	case wire.Get, wire.Put:
		n.redirectClient(env)
	default:
		// all other message kinds are ignored by a follower, per spec §4.2.
	}
}

// acceptAppendEntries is the AE-accept procedure of spec §4.3.6, shared by
// the follower handler and by a candidate/leader that has just stepped down
// and is re-processing the triggering message as a follower.
func (n *Node) acceptAppendEntries(env wire.Envelope) {
	if env.Term < n.currentTerm {
		n.send(wire.NewAppendEntriesReply(n.id, env.Src, n.currentTerm, false, 0))
		return
	}

	if env.PrevLogIndex >= 1 {
		if n.log.Len() < env.PrevLogIndex || n.log.TermAt(env.PrevLogIndex) != env.PrevLogTerm {
			n.send(wire.NewAppendEntriesReply(n.id, env.Src, n.currentTerm, false, 0))
			return
		}
	}

	entries := make([]types.Entry, len(env.Entries))
	for i, e := range env.Entries {
		entries[i] = e.ToEntry()
	}
	n.log.AppendAfterConflictCheck(env.PrevLogIndex, entries)

	if env.LeaderCommit > n.commitIndex {
		n.commitIndex = n.log.ClampToLen(env.LeaderCommit)
	}

	n.leaderHint = env.Src
	n.send(wire.NewAppendEntriesReply(n.id, env.Src, n.currentTerm, true, n.log.Len()))
}

// decideVote is the vote procedure of spec §4.4.2.
func (n *Node) decideVote(env wire.Envelope) {
	if env.Term < n.currentTerm {
		n.send(wire.NewRequestVoteReply(n.id, env.Src, n.currentTerm, false))
		return
	}

	canVote := n.votedFor == "" || n.votedFor == env.Src
	logOK := n.log.IsAtLeastAsUpToDateAs(env.PrevLogTerm, env.PrevLogIndex)

	if canVote && logOK {
		n.votedFor = env.Src
		n.send(wire.NewRequestVoteReply(n.id, env.Src, n.currentTerm, true))
		return
	}

	n.send(wire.NewRequestVoteReply(n.id, env.Src, n.currentTerm, false))
}
