// Package clusterconfig parses the CLI contract spec §6 fixes
// (`<program> <port> <id> <peer_id>...`) and an optional YAML overlay for
// the tuning knobs that contract doesn't cover. Port, self id, and peer
// ids always come from argv — per spec §6 those three are an external
// collaborator's contract, never something a config file can override.
package clusterconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arnavsood/raftkv/internal/replica"
	"github.com/arnavsood/raftkv/internal/types"
)

// Config is everything cmd/raftkv needs to start one replica.
type Config struct {
	Port      int
	SelfID    types.NodeID
	PeerIDs   []types.NodeID
	Timing    replica.Timing
	AdminAddr string
}

// ParseArgs implements the positional CLI contract of spec §6.
func ParseArgs(args []string) (Config, error) {
	if len(args) < 3 {
		return Config{}, fmt.Errorf("clusterconfig: usage: <program> <port> <id> <peer_id>...")
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		return Config{}, fmt.Errorf("clusterconfig: invalid port %q: %w", args[0], err)
	}

	self := types.NodeID(args[1])
	peers := make([]types.NodeID, 0, len(args)-2)
	for _, p := range args[2:] {
		peers = append(peers, types.NodeID(p))
	}

	return Config{
		Port:    port,
		SelfID:  self,
		PeerIDs: peers,
		Timing:  replica.DefaultTiming(),
	}, nil
}

// tuningOverlay is the subset of Config a YAML file may adjust. It
// deliberately has no port/id/peers field — see the package doc.
type tuningOverlay struct {
	Timing struct {
		ElectionTimeoutMinMS int `yaml:"election_timeout_min_ms"`
		ElectionTimeoutMaxMS int `yaml:"election_timeout_max_ms"`
		AppendEntriesEveryMS int `yaml:"append_entries_every_ms"`
		LoopWaitMS           int `yaml:"loop_wait_ms"`
	} `yaml:"timing"`
	AdminAddr string `yaml:"admin_addr"`
}

// ApplyOverlay merges the tuning knobs from the YAML file at path into cfg.
// An empty path is not an error: the overlay is optional, and cfg's
// spec-default timing (replica.DefaultTiming) is left untouched.
func ApplyOverlay(cfg Config, path string) (Config, error) {
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("clusterconfig: read overlay %q: %w", path, err)
	}

	var overlay tuningOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("clusterconfig: parse overlay %q: %w", path, err)
	}

	if ms := overlay.Timing.ElectionTimeoutMinMS; ms > 0 {
		cfg.Timing.ElectionTimeoutMin = time.Duration(ms) * time.Millisecond
	}
	if ms := overlay.Timing.ElectionTimeoutMaxMS; ms > 0 {
		cfg.Timing.ElectionTimeoutMax = time.Duration(ms) * time.Millisecond
	}
	if ms := overlay.Timing.AppendEntriesEveryMS; ms > 0 {
		cfg.Timing.AppendEntriesEvery = time.Duration(ms) * time.Millisecond
	}
	if ms := overlay.Timing.LoopWaitMS; ms > 0 {
		cfg.Timing.LoopWait = time.Duration(ms) * time.Millisecond
	}
	if overlay.AdminAddr != "" {
		cfg.AdminAddr = overlay.AdminAddr
	}

	return cfg, nil
}

// PeerAddr resolves a peer id to a loopback UDP address. The simulator is
// an external collaborator per spec §6 and isn't itself specified; the
// convention this follows — a node's id doubles as its UDP port — is the
// one the retrieved Raft-lab corpus this spec derives from uses.
func PeerAddr(id types.NodeID) (string, error) {
	if _, err := strconv.Atoi(string(id)); err != nil {
		return "", fmt.Errorf("clusterconfig: peer id %q is not a numeric port", id)
	}
	return fmt.Sprintf("127.0.0.1:%s", id), nil
}

// PeerAddrs resolves every id in ids via PeerAddr, for wiring udpconn.Dial.
func PeerAddrs(ids []types.NodeID) (map[types.NodeID]string, error) {
	out := make(map[types.NodeID]string, len(ids))
	for _, id := range ids {
		addr, err := PeerAddr(id)
		if err != nil {
			return nil, err
		}
		out[id] = addr
	}
	return out, nil
}
