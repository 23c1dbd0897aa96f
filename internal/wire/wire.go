// Package wire encodes and decodes the JSON envelopes that carry every
// message between replicas and clients. It is the "wire adapter" component
// of the wire protocol: the only place that knows the on-the-wire shape of
// a message. Everything upstream (internal/replica) deals in typed Envelope
// values, never raw JSON.
//
// The envelope format itself — field names, the 5-tuple log entry, the
// sentinel values — is a fixed external contract (the simulator and its
// JSON decoder are given, per spec §1); this package exists to have exactly
// one place that agrees with that contract.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/arnavsood/raftkv/internal/types"
)

// MaxDatagramSize is the largest message the transport will hand us or
// accept from us, per spec §6.
const MaxDatagramSize = 65535

// Type discriminates the message kinds defined in spec §6.
type Type string

const (
	Hello               Type = "hello"
	Get                 Type = "get"
	Put                 Type = "put"
	Ok                  Type = "ok"
	Fail                Type = "fail"
	Redirect            Type = "redirect"
	AppendEntries       Type = "aerpc"
	AppendEntriesReply  Type = "aerpcR"
	RequestVote         Type = "rvrpc"
	RequestVoteReply    Type = "rvrpcR"
)

// LogEntry is the wire representation of a replicated log entry: the
// 5-tuple (key, value, term, MID, client_src) from spec §3/§6. It round
// trips as a JSON array rather than an object.
type LogEntry struct {
	Key       string
	Value     string
	Term      types.Term
	MID       types.MID
	ClientSrc types.NodeID
}

// MarshalJSON encodes the entry as the 5-element array the wire contract
// expects, not as a JSON object.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Key, e.Value, e.Term, e.MID, e.ClientSrc})
}

// UnmarshalJSON decodes the 5-element array form back into a LogEntry.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var tuple [5]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("decode log entry tuple: %w", err)
	}
	if err := json.Unmarshal(tuple[0], &e.Key); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[1], &e.Value); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[2], &e.Term); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[3], &e.MID); err != nil {
		return err
	}
	return json.Unmarshal(tuple[4], &e.ClientSrc)
}

// ToEntry converts a wire entry to the internal representation used by
// internal/raftlog.
func (e LogEntry) ToEntry() types.Entry {
	return types.Entry{Key: e.Key, Value: e.Value, Term: e.Term, MID: e.MID, ClientSrc: e.ClientSrc}
}

// EntryToWire converts an internal log entry to its wire form.
func EntryToWire(e types.Entry) LogEntry {
	return LogEntry{Key: e.Key, Value: e.Value, Term: e.Term, MID: e.MID, ClientSrc: e.ClientSrc}
}

// Envelope is every message type in one struct: common fields (Src, Dst,
// Leader, Type) plus the union of all type-specific fields. A field unused
// by a given Type carries its zero value; role handlers only read the
// fields relevant to msg.Type.
type Envelope struct {
	Src    types.NodeID `json:"src"`
	Dst    types.NodeID `json:"dst"`
	Leader types.NodeID `json:"leader"`
	Type   Type         `json:"type"`

	// get/put/ok/fail/redirect
	MID   types.MID `json:"MID,omitempty"`
	Key   string    `json:"key,omitempty"`
	Value string    `json:"value,omitempty"`

	// aerpc / rvrpc
	Term         types.Term  `json:"term"`
	PrevLogIndex types.Index `json:"pLI"`
	PrevLogTerm  types.Term  `json:"pLT"`
	Entries      []LogEntry  `json:"entries,omitempty"`
	LeaderCommit types.Index `json:"lC,omitempty"`

	// aerpcR / rvrpcR
	Result    bool        `json:"r"`
	LastIndex types.Index `json:"LI,omitempty"`
}

// Encode marshals an envelope to the JSON bytes sent on the wire.
func Encode(env Envelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	if len(b) > MaxDatagramSize {
		return nil, fmt.Errorf("encoded envelope is %d bytes, exceeds max datagram size %d", len(b), MaxDatagramSize)
	}
	return b, nil
}

// Decode unmarshals a raw datagram into an envelope. Per spec §4.1,
// malformed datagrams are the caller's responsibility to drop silently; this
// function just reports the error so the caller can do that.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// --- constructors, one per message kind, so callers never hand-build an Envelope ---

func NewHello(self types.NodeID) Envelope {
	return Envelope{Src: self, Dst: types.Broadcast, Leader: types.Broadcast, Type: Hello}
}

func NewGet(src, dst types.NodeID, mid types.MID, key string) Envelope {
	return Envelope{Src: src, Dst: dst, Type: Get, MID: mid, Key: key}
}

func NewPut(src, dst types.NodeID, mid types.MID, key, value string) Envelope {
	return Envelope{Src: src, Dst: dst, Type: Put, MID: mid, Key: key, Value: value}
}

func NewOk(src, dst, leader types.NodeID, mid types.MID, value string) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: leader, Type: Ok, MID: mid, Value: value}
}

func NewFail(src, dst, leader types.NodeID, mid types.MID) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: leader, Type: Fail, MID: mid}
}

func NewRedirect(src, dst, leader types.NodeID, mid types.MID) Envelope {
	return Envelope{Src: src, Dst: dst, Leader: leader, Type: Redirect, MID: mid}
}

func NewAppendEntries(src, dst types.NodeID, term types.Term, prevLogIndex types.Index, prevLogTerm types.Term, entries []LogEntry, leaderCommit types.Index) Envelope {
	return Envelope{
		Src: src, Dst: dst, Leader: src, Type: AppendEntries,
		Term: term, PrevLogIndex: prevLogIndex, PrevLogTerm: prevLogTerm,
		Entries: entries, LeaderCommit: leaderCommit,
	}
}

func NewAppendEntriesReply(src, dst types.NodeID, term types.Term, success bool, lastIndex types.Index) Envelope {
	return Envelope{Src: src, Dst: dst, Type: AppendEntriesReply, Term: term, Result: success, LastIndex: lastIndex}
}

func NewRequestVote(src, dst types.NodeID, term types.Term, lastLogIndex types.Index, lastLogTerm types.Term) Envelope {
	return Envelope{
		Src: src, Dst: dst, Type: RequestVote,
		Term: term, PrevLogIndex: lastLogIndex, PrevLogTerm: lastLogTerm,
	}
}

func NewRequestVoteReply(src, dst types.NodeID, term types.Term, granted bool) Envelope {
	return Envelope{Src: src, Dst: dst, Type: RequestVoteReply, Term: term, Result: granted}
}
