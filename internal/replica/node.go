// Package replica implements the Raft consensus core described in spec §2-§5:
// a single-threaded, event-driven replica with three roles (follower,
// candidate, leader), a replication engine, an election engine, and an
// apply path, all driven by one event loop. There are no locks, no
// timers, and no background goroutines inside Node — the event loop in
// Run is the only mutator of replica state, per spec §5.
//
// This trades a goroutine-per-RPC, mutex-guarded design for a
// single-threaded, lock-free one: one goroutine owns every field, driven
// entirely by the loop in Run. The operations themselves — stepping down,
// becoming leader, advancing the commit index, replicating to a peer,
// picking a randomized election timeout — are plain methods called
// synchronously from that loop instead of being scheduled on timers and
// tickers.
package replica

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/arnavsood/raftkv/internal/raftlog"
	"github.com/arnavsood/raftkv/internal/statemachine"
	"github.com/arnavsood/raftkv/internal/types"
	"github.com/arnavsood/raftkv/internal/wire"
)

// Transport is the event loop's only external dependency: a bounded-wait
// receive and a fire-and-forget send. internal/udpconn implements this
// against a real UDP socket; tests implement it in memory.
type Transport interface {
	Send(env wire.Envelope) error
	Recv(timeout time.Duration) (env wire.Envelope, ok bool, err error)
}

// Timing holds the election/heartbeat constants. Defaults match §5 of the
// design doc exactly; tests shrink them so a whole election+replication
// cycle runs in milliseconds instead of the better part of a second.
type Timing struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	AppendEntriesEvery time.Duration
	LoopWait           time.Duration
}

// DefaultTiming returns the constants spec §5 specifies.
func DefaultTiming() Timing {
	return Timing{
		ElectionTimeoutMin: 500 * time.Millisecond,
		ElectionTimeoutMax: 1000 * time.Millisecond,
		AppendEntriesEvery: 100 * time.Millisecond,
		LoopWait:           200 * time.Millisecond,
	}
}

// Config configures a new Node.
type Config struct {
	ID     types.NodeID
	Peers  []types.NodeID
	Timing Timing
	Rand   *rand.Rand // optional, for deterministic tests
	Logger *log.Logger
}

// Node is one Raft replica. Every field is owned exclusively by the
// goroutine running Run; the only synchronization inside this struct is the
// atomically published status and applied-map snapshot (status.go).
type Node struct {
	id     types.NodeID
	peers  []types.NodeID
	tp     Transport
	timing Timing
	rnd    *rand.Rand
	logger *log.Logger

	log *raftlog.Log
	sm  *statemachine.Map

	role             types.Role
	currentTerm      types.Term
	votedFor         types.NodeID // "" means none
	leaderHint       types.NodeID
	commitIndex      types.Index
	lastApplied      types.Index
	electionDeadline time.Time

	// leader-only
	nextIndex  map[types.NodeID]types.Index
	matchIndex map[types.NodeID]types.Index
	lastSentAE map[types.NodeID]time.Time

	// candidate-only
	votesReceived int

	status atomicStatus
}

// New constructs a follower starting in term 0 with an empty log, per spec
// §3 "Lifecycles".
func New(cfg Config, tp Transport) *Node {
	timing := cfg.Timing
	if timing == (Timing{}) {
		timing = DefaultTiming()
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	n := &Node{
		id:     cfg.ID,
		peers:  append([]types.NodeID(nil), cfg.Peers...),
		tp:     tp,
		timing: timing,
		rnd:    rnd,
		logger: logger,
		log:    raftlog.New(),
		sm:     statemachine.New(),
		role:   types.Follower,
	}
	n.publishStatus()
	return n
}

// Run is the event loop of spec §4.1. It runs until ctx is cancelled
// (SIGTERM at the process level, per spec §6 "Exit 0 only on SIGTERM").
func (n *Node) Run(ctx context.Context) error {
	if err := n.tp.Send(wire.NewHello(n.id)); err != nil {
		n.logger.Printf("replica %s: hello send failed: %v", n.id, err)
	}
	n.resetElectionDeadline()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n.applyCommitted()

		env, ok, err := n.tp.Recv(n.timing.LoopWait)
		if err != nil {
			// Malformed/undecodable datagrams are silently skipped, per
			// spec §4.1 and §7.
			n.logger.Printf("replica %s: dropping unreadable datagram: %v", n.id, err)
		} else if ok {
			n.dispatch(env)
		}

		if n.role == types.Leader {
			n.leaderTick()
			n.advanceCommitIndex()
		} else {
			n.checkElectionTimeout()
		}

		n.publishStatus()
	}
}

// dispatch routes one inbound envelope to the handler for the current role.
func (n *Node) dispatch(env wire.Envelope) {
	switch n.role {
	case types.Follower:
		n.handleFollower(env)
	case types.Candidate:
		n.handleCandidate(env)
	case types.Leader:
		n.handleLeader(env)
	}
}

// send is a thin wrapper so every call site logs the same way on failure;
// sends are fire-and-forget per spec §5.
func (n *Node) send(env wire.Envelope) {
	if err := n.tp.Send(env); err != nil {
		n.logger.Printf("replica %s: send to %s failed: %v", n.id, env.Dst, err)
	}
}

func (n *Node) broadcast(env wire.Envelope) {
	env.Dst = types.Broadcast
	n.send(env)
}

// redirectClient answers a client get/put sent to a non-leader, per spec
// §4.2 and §4.4.3.
func (n *Node) redirectClient(env wire.Envelope) {
	hint := n.leaderHint
	if hint == "" {
		hint = types.Broadcast
	}
	n.send(wire.NewRedirect(n.id, env.Src, hint, env.MID))
}

// adoptTermIfNewer implements the "observing a strictly higher term forces
// a transition to follower and adoption of that term" rule from spec §3,
// shared by the follower and candidate handlers for aerpc/rvrpc/rvrpcR (the
// leader handler steps down through demoteWithFailures instead).
// Returns true if the term was adopted (and thus the caller should treat
// the message path as newly-a-follower rather than finish role-specific
// logic that assumed the old term/role).
func (n *Node) adoptTermIfNewer(msgTerm types.Term) bool {
	if msgTerm <= n.currentTerm {
		return false
	}
	n.currentTerm = msgTerm
	n.votedFor = ""
	n.role = types.Follower
	n.resetElectionDeadline()
	return true
}

func (n *Node) resetElectionDeadline() {
	d := n.timing.ElectionTimeoutMin
	spread := n.timing.ElectionTimeoutMax - n.timing.ElectionTimeoutMin
	if spread > 0 {
		d += time.Duration(n.rnd.Int63n(int64(spread)))
	}
	n.electionDeadline = time.Now().Add(d)
}

func (n *Node) checkElectionTimeout() {
	if time.Now().Before(n.electionDeadline) {
		return
	}
	n.startElection()
}
