// Package raftlog implements the 1-indexed replicated log described in spec
// §3. It is the single conversion point between the log's external,
// 1-indexed addressing and its 0-indexed backing slice (spec §9, "Log
// indexing").
package raftlog

import (
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/arnavsood/raftkv/internal/types"
)

// clampMax mirrors the generic min-helper pattern other Raft implementations
// in the wild reach for (shawwn-6.5840's util.go) instead of hand-rolling a
// comparison per call site.
func clampMax[T constraints.Ordered](v, max T) T {
	if v > max {
		return max
	}
	return v
}

// Log is a single-writer, 1-indexed sequence of entries. entries[0] is a
// sentinel standing in for "no previous entry"; entries[i] for i>=1 is log
// index i. This mirrors the common sentinel-at-0 convention for log stores.
type Log struct {
	entries []types.Entry // entries[0] is the zero-value sentinel
}

// New returns an empty log.
func New() *Log {
	return &Log{entries: make([]types.Entry, 1)}
}

// Len returns the highest valid index, i.e.
// the number of real entries (excluding the sentinel).
func (l *Log) Len() types.Index {
	return types.Index(len(l.entries) - 1)
}

// At returns the entry at the given 1-indexed position. Index 0 returns the
// zero-value sentinel entry. Panics on an out-of-range index — per spec
// §4.5, "an index out of range is a bug and must be surfaced", not masked.
func (l *Log) At(i types.Index) types.Entry {
	if i < 0 || int(i) >= len(l.entries) {
		panic(fmt.Sprintf("raftlog: index %d out of range [0, %d]", i, l.Len()))
	}
	return l.entries[i]
}

// TermAt returns the term of the entry at i, or NoPrevTerm for the sentinel
// index 0.
func (l *Log) TermAt(i types.Index) types.Term {
	if i <= 0 {
		return types.NoPrevTerm
	}
	return l.At(i).Term
}

// LastTerm returns the term of the last entry in the log, or 0 for an empty
// log (spec §4.4.1: "log[-1].term or 0").
func (l *Log) LastTerm() types.Term {
	if l.Len() == 0 {
		return 0
	}
	return l.At(l.Len()).Term
}

// Append adds entries to the end of the log, in order.
func (l *Log) Append(entries ...types.Entry) {
	l.entries = append(l.entries, entries...)
}

// TruncateTo drops every entry after index i (keeping indices 1..i). i may
// be 0, which empties the log back to just the sentinel.
func (l *Log) TruncateTo(i types.Index) {
	if i < 0 {
		i = 0
	}
	if int(i) >= len(l.entries) {
		return
	}
	l.entries = l.entries[:i+1]
}

// Slice returns a copy of entries [from, Len()] inclusive. from < 1 is
// treated as 1; from > Len() (e.g. Len()+1) returns nil (nothing new to send).
func (l *Log) Slice(from types.Index) []types.Entry {
	if from < 1 {
		from = 1
	}
	if int(from) > len(l.entries)-1 {
		return nil
	}
	out := make([]types.Entry, len(l.entries)-int(from))
	copy(out, l.entries[from:])
	return out
}

// MatchesPrefix reports whether the log has an entry at prevLogIndex with
// term prevLogTerm, satisfying the AppendEntries consistency check of spec
// §4.3.6 step 2. prevLogIndex <= 0 always matches (there is no prior entry
// to check, spec §3 sentinel semantics).
func (l *Log) MatchesPrefix(prevLogIndex types.Index, prevLogTerm types.Term) bool {
	if prevLogIndex <= 0 {
		return true
	}
	if l.Len() < prevLogIndex {
		return false
	}
	return l.At(prevLogIndex).Term == prevLogTerm
}

// AppendAfterConflictCheck implements the truncate-then-append half of spec
// §4.3.6 step 3: drop the conflicting suffix starting at prevLogIndex+1 and
// append the leader's entries in its place.
func (l *Log) AppendAfterConflictCheck(prevLogIndex types.Index, entries []types.Entry) {
	l.TruncateTo(prevLogIndex)
	l.Append(entries...)
}

// ClampToLen bounds a candidate commit index to the log's current length,
// per spec §4.3.6 step 3 ("min(leaderCommit, len(log))").
func (l *Log) ClampToLen(i types.Index) types.Index {
	return clampMax(i, l.Len())
}

// IsAtLeastAsUpToDateAs implements the candidate-log freshness check of spec
// §4.4.2: the candidate's (lastLogTerm, lastLogIndex) must be >= ours under
// Raft's log-comparison order. An empty local log is "trivially considered
// not-more-up-to-date" so any non-empty candidate log wins, and an empty
// candidate log only matches an equally empty local log.
func (l *Log) IsAtLeastAsUpToDateAs(candidateLastTerm types.Term, candidateLastIndex types.Index) bool {
	ourLastTerm := l.LastTerm()
	if candidateLastTerm != ourLastTerm {
		return candidateLastTerm > ourLastTerm
	}
	return candidateLastIndex >= l.Len()
}
