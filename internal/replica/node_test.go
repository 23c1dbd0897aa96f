package replica

import (
	"math/rand"
	"testing"
	"time"

	"github.com/arnavsood/raftkv/internal/types"
	"github.com/arnavsood/raftkv/internal/wire"
)

// fakeTransport is an in-memory Transport for white-box unit tests: Recv
// drains a preloaded inbox, Send just records what was sent.
type fakeTransport struct {
	inbox []wire.Envelope
	sent  []wire.Envelope
}

func (f *fakeTransport) Recv(time.Duration) (wire.Envelope, bool, error) {
	if len(f.inbox) == 0 {
		return wire.Envelope{}, false, nil
	}
	e := f.inbox[0]
	f.inbox = f.inbox[1:]
	return e, true, nil
}

func (f *fakeTransport) Send(env wire.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) last() wire.Envelope {
	return f.sent[len(f.sent)-1]
}

func testNode(id types.NodeID, peers []types.NodeID) (*Node, *fakeTransport) {
	tp := &fakeTransport{}
	n := New(Config{
		ID:    id,
		Peers: peers,
		Rand:  rand.New(rand.NewSource(1)),
	}, tp)
	return n, tp
}

func TestFollowerRedirectsClientRequests(t *testing.T) {
	n, tp := testNode("n1", []types.NodeID{"n2", "n3"})
	n.leaderHint = "n2"

	n.handleFollower(wire.NewGet("c1", "n1", "m1", "x"))
	got := tp.last()
	if got.Type != wire.Redirect || got.Leader != "n2" || got.MID != "m1" {
		t.Fatalf("unexpected redirect: %+v", got)
	}
}

func TestFollowerRedirectsDuringElectionWithBroadcastHint(t *testing.T) {
	n, tp := testNode("n1", []types.NodeID{"n2", "n3"})
	// no leader known yet
	n.handleFollower(wire.NewPut("c1", "n1", "m1", "x", "1"))
	got := tp.last()
	if got.Type != wire.Redirect || got.Leader != types.Broadcast {
		t.Fatalf("expected redirect with broadcast hint, got %+v", got)
	}
}

func TestFollowerAcceptsConsistentAppendEntries(t *testing.T) {
	n, tp := testNode("n1", []types.NodeID{"n2", "n3"})
	entries := []wire.LogEntry{{Key: "x", Value: "1", Term: 1, MID: "m1", ClientSrc: "c1"}}
	env := wire.NewAppendEntries("leader", "n1", 1, types.NoPrevIndex, types.NoPrevTerm, entries, 0)

	n.handleFollower(env)

	if n.log.Len() != 1 || n.log.At(1).Key != "x" {
		t.Fatalf("expected entry appended, log len %d", n.log.Len())
	}
	if n.leaderHint != "leader" {
		t.Fatalf("expected leader hint set, got %q", n.leaderHint)
	}
	reply := tp.last()
	if reply.Type != wire.AppendEntriesReply || !reply.Result || reply.LastIndex != 1 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestFollowerRejectsAppendEntriesOnPrefixMismatch(t *testing.T) {
	n, tp := testNode("n1", nil)
	env := wire.NewAppendEntries("leader", "n1", 1, 5, 3, nil, 0)

	n.handleFollower(env)

	reply := tp.last()
	if reply.Result {
		t.Fatalf("expected rejection on missing prevLogIndex, got %+v", reply)
	}
}

func TestFollowerRejectsStaleTermAppendEntries(t *testing.T) {
	n, _ := testNode("n1", nil)
	n.currentTerm = 5
	tp := n.tp.(*fakeTransport)

	n.handleFollower(wire.NewAppendEntries("leader", "n1", 2, types.NoPrevIndex, types.NoPrevTerm, nil, 0))

	reply := tp.last()
	if reply.Result || reply.Term != 5 {
		t.Fatalf("expected stale-term rejection carrying current term, got %+v", reply)
	}
}

func TestVoteGrantedOnFreshLog(t *testing.T) {
	n, tp := testNode("n1", nil)
	env := wire.NewRequestVote("cand", "n1", 1, 0, 0)

	n.handleFollower(env)

	reply := tp.last()
	if reply.Type != wire.RequestVoteReply || !reply.Result {
		t.Fatalf("expected vote granted, got %+v", reply)
	}
	if n.votedFor != "cand" {
		t.Fatalf("expected votedFor recorded, got %q", n.votedFor)
	}
}

func TestVoteNotGrantedTwiceInSameTerm(t *testing.T) {
	n, tp := testNode("n1", nil)
	n.handleFollower(wire.NewRequestVote("cand1", "n1", 1, 0, 0))
	n.handleFollower(wire.NewRequestVote("cand2", "n1", 1, 0, 0))

	reply := tp.last()
	if reply.Result {
		t.Fatalf("expected second candidate in same term to be denied, got %+v", reply)
	}
}

func TestVoteDeniedOnStaleCandidateLog(t *testing.T) {
	n, tp := testNode("n1", nil)
	n.log.Append(types.Entry{Key: "x", Value: "1", Term: 3})

	n.handleFollower(wire.NewRequestVote("cand", "n1", 3, 0, 1))

	reply := tp.last()
	if reply.Result {
		t.Fatalf("expected vote denied for stale candidate log, got %+v", reply)
	}
}

func TestGetOnMissingKeyReturnsEmptyOk(t *testing.T) {
	n, tp := testNode("n1", []types.NodeID{"n2"})
	n.role = types.Leader
	n.nextIndex = map[types.NodeID]types.Index{"n2": 1}
	n.matchIndex = map[types.NodeID]types.Index{"n2": 0}

	n.handleLeader(wire.NewGet("c1", "n1", "m4", "absent"))

	reply := tp.last()
	if reply.Type != wire.Ok || reply.Value != "" || reply.MID != "m4" {
		t.Fatalf("unexpected reply for missing key: %+v", reply)
	}
}

func TestLeaderAppendsPutWithoutImmediateAck(t *testing.T) {
	n, tp := testNode("n1", []types.NodeID{"n2"})
	n.role = types.Leader
	n.currentTerm = 2

	n.handleLeader(wire.NewPut("c1", "n1", "m1", "x", "1"))

	if n.log.Len() != 1 {
		t.Fatalf("expected entry appended, got len %d", n.log.Len())
	}
	if n.log.At(1).Term != 2 || n.log.At(1).ClientSrc != "c1" {
		t.Fatalf("unexpected entry: %+v", n.log.At(1))
	}
	if len(tp.sent) != 0 {
		t.Fatalf("expected no immediate ack for put, got %+v", tp.sent)
	}
}

func TestDemotionFailsUncommittedWrites(t *testing.T) {
	n, tp := testNode("n1", []types.NodeID{"n2", "n3"})
	n.role = types.Leader
	n.currentTerm = 1
	n.log.Append(types.Entry{Key: "x", Value: "1", Term: 1, MID: "m1", ClientSrc: "c1"})

	n.handleLeader(wire.NewAppendEntries("n2", "n1", 5, types.NoPrevIndex, types.NoPrevTerm, nil, 0))

	if n.role != types.Follower || n.currentTerm != 5 {
		t.Fatalf("expected demotion to follower term 5, got role=%v term=%d", n.role, n.currentTerm)
	}
	foundFail := false
	for _, s := range tp.sent {
		if s.Type == wire.Fail && s.MID == "m1" && s.Dst == "c1" {
			foundFail = true
		}
	}
	if !foundFail {
		t.Fatalf("expected fail(m1) to c1, got %+v", tp.sent)
	}
}

func TestCandidateBecomesLeaderOnMajority(t *testing.T) {
	n, tp := testNode("n1", []types.NodeID{"n2", "n3", "n4", "n5"})
	n.startElection()
	tp.sent = nil // clear the RequestVote broadcast

	n.handleCandidate(wire.NewRequestVoteReply("n2", "n1", n.currentTerm, true))
	if n.role != types.Candidate {
		t.Fatalf("expected still candidate after 2/5 votes, got %v", n.role)
	}
	n.handleCandidate(wire.NewRequestVoteReply("n3", "n1", n.currentTerm, true))

	if n.role != types.Leader {
		t.Fatalf("expected leader after 3/5 votes, got %v", n.role)
	}
	if n.leaderHint != "n1" {
		t.Fatalf("expected leader hint self, got %q", n.leaderHint)
	}
}

func TestCandidateStepsDownOnHigherTermVoteReply(t *testing.T) {
	n, _ := testNode("n1", []types.NodeID{"n2", "n3"})
	n.startElection()

	n.handleCandidate(wire.NewRequestVoteReply("n2", "n1", n.currentTerm+3, false))

	if n.role != types.Follower {
		t.Fatalf("expected follower after higher-term reply, got %v", n.role)
	}
}

func TestCandidateRedirectsClients(t *testing.T) {
	n, tp := testNode("n1", []types.NodeID{"n2", "n3"})
	n.startElection()

	n.handleCandidate(wire.NewPut("c1", "n1", "m9", "x", "1"))

	reply := tp.last()
	if reply.Type != wire.Redirect {
		t.Fatalf("expected redirect from candidate, got %+v", reply)
	}
}

func TestApplyCommittedAcksLeaderPuts(t *testing.T) {
	n, tp := testNode("n1", []types.NodeID{"n2"})
	n.role = types.Leader
	n.log.Append(types.Entry{Key: "x", Value: "1", Term: 1, MID: "m1", ClientSrc: "c1"})
	n.commitIndex = 1

	n.applyCommitted()

	if n.lastApplied != 1 {
		t.Fatalf("expected lastApplied 1, got %d", n.lastApplied)
	}
	if n.sm.Get("x") != "1" {
		t.Fatalf("expected map updated, got %q", n.sm.Get("x"))
	}
	reply := tp.last()
	if reply.Type != wire.Ok || reply.MID != "m1" || reply.Dst != "c1" {
		t.Fatalf("unexpected ack: %+v", reply)
	}
}

func TestApplyCommittedDoesNotAckOnFollower(t *testing.T) {
	n, tp := testNode("n1", nil)
	n.log.Append(types.Entry{Key: "x", Value: "1", Term: 1, MID: "m1", ClientSrc: "c1"})
	n.commitIndex = 1

	n.applyCommitted()

	if len(tp.sent) != 0 {
		t.Fatalf("follower should never ack a client, got %+v", tp.sent)
	}
}

func TestAdvanceCommitIndexRequiresCurrentTermEntry(t *testing.T) {
	n, _ := testNode("n1", []types.NodeID{"n2", "n3", "n4"})
	n.role = types.Leader
	n.currentTerm = 2
	n.log.Append(types.Entry{Key: "a", Term: 1}) // index 1, stale term
	n.log.Append(types.Entry{Key: "b", Term: 2}) // index 2, current term
	n.nextIndex = map[types.NodeID]types.Index{"n2": 1, "n3": 1, "n4": 1}
	n.matchIndex = map[types.NodeID]types.Index{"n2": 2, "n3": 2, "n4": 0}

	n.advanceCommitIndex()

	if n.commitIndex != 2 {
		t.Fatalf("expected commitIndex 2 once current-term entry reaches quorum, got %d", n.commitIndex)
	}
}

func TestAdvanceCommitIndexWithholdsPriorTermEntryAlone(t *testing.T) {
	n, _ := testNode("n1", []types.NodeID{"n2", "n3", "n4"})
	n.role = types.Leader
	n.currentTerm = 2
	n.log.Append(types.Entry{Key: "a", Term: 1})
	n.nextIndex = map[types.NodeID]types.Index{"n2": 1, "n3": 1, "n4": 1}
	n.matchIndex = map[types.NodeID]types.Index{"n2": 1, "n3": 1, "n4": 0}

	n.advanceCommitIndex()

	if n.commitIndex != 0 {
		t.Fatalf("expected commitIndex to stay at 0 (prior-term entry), got %d", n.commitIndex)
	}
}

func TestHandleAppendEntriesReplySuccessUpdatesIndices(t *testing.T) {
	n, _ := testNode("n1", []types.NodeID{"n2"})
	n.role = types.Leader
	n.nextIndex = map[types.NodeID]types.Index{"n2": 1}
	n.matchIndex = map[types.NodeID]types.Index{"n2": 0}

	n.handleAppendEntriesReply(wire.NewAppendEntriesReply("n2", "n1", 0, true, 3))

	if n.nextIndex["n2"] != 4 || n.matchIndex["n2"] != 3 {
		t.Fatalf("unexpected indices: next=%d match=%d", n.nextIndex["n2"], n.matchIndex["n2"])
	}
}

func TestHandleAppendEntriesReplyFailureBacksOffNextIndex(t *testing.T) {
	n, _ := testNode("n1", []types.NodeID{"n2"})
	n.role = types.Leader
	n.currentTerm = 1
	n.nextIndex = map[types.NodeID]types.Index{"n2": 5}
	n.matchIndex = map[types.NodeID]types.Index{"n2": 0}

	n.handleAppendEntriesReply(wire.NewAppendEntriesReply("n2", "n1", 1, false, 0))

	if n.nextIndex["n2"] != 4 {
		t.Fatalf("expected nextIndex decremented to 4, got %d", n.nextIndex["n2"])
	}
}

func TestHandleAppendEntriesReplyNeverBacksBelowOne(t *testing.T) {
	n, _ := testNode("n1", []types.NodeID{"n2"})
	n.role = types.Leader
	n.currentTerm = 1
	n.nextIndex = map[types.NodeID]types.Index{"n2": 1}
	n.matchIndex = map[types.NodeID]types.Index{"n2": 0}

	n.handleAppendEntriesReply(wire.NewAppendEntriesReply("n2", "n1", 1, false, 0))

	if n.nextIndex["n2"] != 1 {
		t.Fatalf("expected nextIndex clamped at 1, got %d", n.nextIndex["n2"])
	}
}
