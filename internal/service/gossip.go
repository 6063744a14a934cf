package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/docpulse/runtime-node/internal/config"
	"github.com/docpulse/runtime-node/internal/model"
)

// PeerHealth is the health summary gossiped between runtime nodes
type PeerHealth struct {
	NodeID    string            `json:"node_id"`
	Status    model.HealthState `json:"status"`
	ErrorRate float64           `json:"error_rate"`
	Timestamp int64             `json:"timestamp"`
}

// GossipService propagates health summaries across the runtime
// cluster so any node can answer for the fleet.
type GossipService struct {
	config     config.GossipConfig
	memberlist *memberlist.Memberlist
	nodeID     string
	healthFn   func() model.HealthSnapshot
	logger     *zap.Logger

	mu    sync.Mutex
	peers map[string]PeerHealth
}

// NewGossipService creates a gossip service and joins the seed nodes.
// healthFn supplies the local summary whenever the protocol asks for
// node state.
func NewGossipService(cfg config.GossipConfig, nodeID string, healthFn func() model.HealthSnapshot, logger *zap.Logger) (*GossipService, error) {
	gs := &GossipService{
		config:   cfg,
		nodeID:   nodeID,
		healthFn: healthFn,
		logger:   logger,
		peers:    make(map[string]PeerHealth),
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = nodeID
	mlConfig.BindPort = cfg.BindPort
	mlConfig.GossipInterval = cfg.GossipInterval
	mlConfig.ProbeTimeout = cfg.ProbeTimeout
	mlConfig.ProbeInterval = cfg.ProbeInterval
	mlConfig.Delegate = gs
	mlConfig.Events = &gossipEventDelegate{service: gs}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	gs.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
	}

	return gs, nil
}

func (s *GossipService) localSummary() PeerHealth {
	snap := s.healthFn()
	return PeerHealth{
		NodeID:    s.nodeID,
		Status:    snap.Status,
		ErrorRate: snap.ErrorRate,
		Timestamp: time.Now().Unix(),
	}
}

// NodeMeta implements memberlist.Delegate
func (s *GossipService) NodeMeta(limit int) []byte {
	data, _ := json.Marshal(s.localSummary())
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (s *GossipService) NotifyMsg(data []byte) {
	var peer PeerHealth
	if err := json.Unmarshal(data, &peer); err != nil {
		s.logger.Warn("failed to unmarshal gossip message", zap.Error(err))
		return
	}
	s.recordPeer(peer)
}

// GetBroadcasts implements memberlist.Delegate
func (s *GossipService) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (s *GossipService) LocalState(join bool) []byte {
	data, _ := json.Marshal(s.localSummary())
	return data
}

// MergeRemoteState implements memberlist.Delegate
func (s *GossipService) MergeRemoteState(buf []byte, join bool) {
	var peer PeerHealth
	if err := json.Unmarshal(buf, &peer); err != nil {
		s.logger.Warn("failed to merge remote state", zap.Error(err))
		return
	}
	s.recordPeer(peer)
}

func (s *GossipService) recordPeer(peer PeerHealth) {
	if peer.NodeID == "" || peer.NodeID == s.nodeID {
		return
	}
	s.mu.Lock()
	s.peers[peer.NodeID] = peer
	s.mu.Unlock()

	s.logger.Debug("received peer health",
		zap.String("node_id", peer.NodeID),
		zap.String("status", string(peer.Status)))
}

// Peers returns the last health summary seen from each peer
func (s *GossipService) Peers() map[string]PeerHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]PeerHealth, len(s.peers))
	for id, p := range s.peers {
		out[id] = p
	}
	return out
}

// Members returns the names of all live cluster members
func (s *GossipService) Members() []string {
	members := s.memberlist.Members()
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

// Shutdown leaves the cluster and stops the gossip listeners
func (s *GossipService) Shutdown() error {
	return s.memberlist.Shutdown()
}

type gossipEventDelegate struct {
	service *GossipService
}

// NotifyJoin is called when a node joins
func (d *gossipEventDelegate) NotifyJoin(node *memberlist.Node) {
	d.service.logger.Info("node joined",
		zap.String("node_id", node.Name),
		zap.String("addr", node.Addr.String()))
}

// NotifyLeave is called when a node leaves
func (d *gossipEventDelegate) NotifyLeave(node *memberlist.Node) {
	d.service.logger.Info("node left", zap.String("node_id", node.Name))

	d.service.mu.Lock()
	delete(d.service.peers, node.Name)
	d.service.mu.Unlock()
}

// NotifyUpdate is called when a node's metadata changes
func (d *gossipEventDelegate) NotifyUpdate(node *memberlist.Node) {
	var peer PeerHealth
	if err := json.Unmarshal(node.Meta, &peer); err != nil {
		return
	}
	d.service.recordPeer(peer)
}
