package replica

import (
	"time"

	"github.com/arnavsood/raftkv/internal/types"
	"github.com/arnavsood/raftkv/internal/wire"
)

// becomeLeader implements spec §4.4.4.
func (n *Node) becomeLeader() {
	n.role = types.Leader
	n.leaderHint = n.id
	n.votedFor = ""

	n.nextIndex = make(map[types.NodeID]types.Index, len(n.peers))
	n.matchIndex = make(map[types.NodeID]types.Index, len(n.peers))
	n.lastSentAE = make(map[types.NodeID]time.Time, len(n.peers))
	for _, p := range n.peers {
		n.nextIndex[p] = n.log.Len() + 1
		n.matchIndex[p] = 0
	}

	for _, p := range n.peers {
		n.sendAppendEntriesTo(p)
		n.lastSentAE[p] = time.Now()
	}
}

// leaderTick implements the periodic AppendEntries of spec §4.3.2: every
// peer gets a fresh AE once AppendEntriesEvery has elapsed since the last
// one sent to it.
func (n *Node) leaderTick() {
	now := time.Now()
	for _, p := range n.peers {
		last, sent := n.lastSentAE[p]
		if sent && now.Sub(last) < n.timing.AppendEntriesEvery {
			continue
		}
		n.sendAppendEntriesTo(p)
		n.lastSentAE[p] = now
	}
}

func (n *Node) sendAppendEntriesTo(peer types.NodeID) {
	next := n.nextIndex[peer]

	if n.log.Len() >= next {
		prevIndex := next - 1
		prevTerm := n.log.TermAt(prevIndex)
		entries := n.log.Slice(next)
		wireEntries := make([]wire.LogEntry, len(entries))
		for i, e := range entries {
			wireEntries[i] = wire.EntryToWire(e)
		}
		n.send(wire.NewAppendEntries(n.id, peer, n.currentTerm, prevIndex, prevTerm, wireEntries, n.commitIndex))
		return
	}

	n.send(wire.NewAppendEntries(n.id, peer, n.currentTerm, types.NoPrevIndex, types.NoPrevTerm, nil, n.commitIndex))
}

// advanceCommitIndex implements spec §4.3.4, with the §9/DESIGN.md
// current-term-only safety restriction: an index only counts toward
// majority match if the entry at that index was proposed in the leader's
// current term.
func (n *Node) advanceCommitIndex() {
	for N := n.commitIndex + 1; N <= n.log.Len(); N++ {
		if n.log.At(N).Term != n.currentTerm {
			continue
		}
		if n.hasMatchQuorum(N) {
			n.commitIndex = N
		}
	}
}

func (n *Node) hasMatchQuorum(index types.Index) bool {
	count := 1 // self: len(log) always >= index here.
	for _, p := range n.peers {
		if n.matchIndex[p] >= index {
			count++
		}
	}
	majority := (len(n.peers)+1)/2 + 1
	return count >= majority
}
