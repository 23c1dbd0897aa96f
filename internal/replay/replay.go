// Package replay exercises property R2 of spec §8: replaying the committed
// prefix of a log onto a fresh state map must yield exactly what a running
// replica's own apply path produced. It replays from the log itself rather
// than a serialized snapshot, since this store has no on-disk snapshotting.
package replay

import (
	"github.com/arnavsood/raftkv/internal/raftlog"
	"github.com/arnavsood/raftkv/internal/statemachine"
	"github.com/arnavsood/raftkv/internal/types"
)

// Apply replays log entries [1, upTo] in order onto a fresh statemachine.Map
// and returns its final contents. upTo is typically a replica's
// commit_index; passing an index beyond log.Len() panics, matching
// raftlog.Log.At's own out-of-range behavior.
func Apply(log *raftlog.Log, upTo types.Index) map[string]string {
	sm := statemachine.New()
	for i := types.Index(1); i <= upTo; i++ {
		e := log.At(i)
		sm.Apply(e.Key, e.Value)
	}
	return sm.Snapshot()
}

// MatchesApplied reports whether replaying the log up to upTo reproduces
// applied exactly — the R2 property test's assertion, factored out so both
// the replay package's own tests and internal/replica's cluster tests can
// share it.
func MatchesApplied(log *raftlog.Log, upTo types.Index, applied map[string]string) bool {
	replayed := Apply(log, upTo)
	if len(replayed) != len(applied) {
		return false
	}
	for k, v := range replayed {
		if applied[k] != v {
			return false
		}
	}
	return true
}
