package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"go.uber.org/zap"

	appmetrics "github.com/dropDatabas3/covenant/internal/metrics"
	"github.com/dropDatabas3/covenant/internal/observability/logger"
)

// Node es un wrapper liviano alrededor de *raft.Raft que provee helpers de
// Apply/Leader/Shutdown y un constructor que inicializa stores (BoltDB),
// snapshots y transporte TCP.
type Node struct {
	r            *raft.Raft
	applyTimeout time.Duration
	id           raft.ServerID
	log          *zap.Logger
}

type NodeOptions struct {
	NodeID   string            // identidad de este nodo
	RaftAddr string            // host:port para el transporte Raft
	RaftDir  string            // directorio de datos (log, stable, snapshots)
	FSM      raft.FSM          // implementación de FSM
	Peers    map[string]string // conjunto estático de peers (nodeID -> raftAddr)

	// DisableBootstrap: este nodo NO hace bootstrap aunque no tenga estado
	// previo. Para nodos que se unen dinámicamente a un cluster existente.
	DisableBootstrap bool
}

func NewNode(opts NodeOptions) (*Node, error) {
	if opts.NodeID == "" || opts.RaftAddr == "" || opts.RaftDir == "" || opts.FSM == nil {
		return nil, errors.New("invalid NodeOptions")
	}
	if err := os.MkdirAll(opts.RaftDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir raft dir: %w", err)
	}
	log := logger.Named("cluster")

	// Stores: log + stable en la misma Bolt DB.
	boltPath := filepath.Join(opts.RaftDir, "raft.db")
	boltStore, err := raftboltdb.NewBoltStore(boltPath)
	if err != nil {
		return nil, fmt.Errorf("bolt store: %w", err)
	}
	logStore := boltStore
	stableStore := boltStore

	// Snapshots en disco (retenemos 2).
	snapStore, err := raft.NewFileSnapshotStore(opts.RaftDir, 2, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	trans, err := raft.NewTCPTransport(opts.RaftAddr, nil, 3, 10*time.Second, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("tcp transport: %w", err)
	}

	cfg := raft.DefaultConfig()
	cfg.LocalID = raft.ServerID(opts.NodeID)

	r, err := raft.NewRaft(cfg, opts.FSM, logStore, stableStore, snapStore, trans)
	if err != nil {
		return nil, fmt.Errorf("new raft: %w", err)
	}

	// Contador de cambios de liderazgo para métricas.
	go func(ch <-chan bool) {
		for v := range ch {
			if v {
				appmetrics.RaftLeadershipChanges.Inc()
			}
		}
	}(r.LeaderCh())

	// Bootstrap si no hay estado previo.
	hasState, err := raft.HasExistingState(logStore, stableStore, snapStore)
	if err != nil {
		return nil, fmt.Errorf("check state: %w", err)
	}
	if !hasState && !opts.DisableBootstrap {
		if len(opts.Peers) <= 1 {
			conf := raft.Configuration{Servers: []raft.Server{{ID: cfg.LocalID, Address: trans.LocalAddr()}}}
			if err := r.BootstrapCluster(conf).Error(); err != nil {
				return nil, fmt.Errorf("bootstrap: %w", err)
			}
			log.Info("bootstrapped single-node cluster",
				zap.String("id", opts.NodeID), zap.String("addr", opts.RaftAddr))
		} else {
			// Bootstrap estático en un único nodo determinístico (menor ID).
			smallest := opts.NodeID
			for id := range opts.Peers {
				if id < smallest {
					smallest = id
				}
			}
			if opts.NodeID == smallest {
				var servers []raft.Server
				for id, addr := range opts.Peers {
					servers = append(servers, raft.Server{ID: raft.ServerID(id), Address: raft.ServerAddress(addr)})
				}
				if err := r.BootstrapCluster(raft.Configuration{Servers: servers}).Error(); err != nil {
					return nil, fmt.Errorf("bootstrap(static): %w", err)
				}
				log.Info("bootstrapped static cluster", zap.Int("servers", len(servers)))
			} else {
				log.Info("waiting to join static cluster",
					zap.String("id", opts.NodeID), zap.String("bootstrap", smallest))
			}
		}
	}

	return &Node{r: r, applyTimeout: 5 * time.Second, id: cfg.LocalID, log: log}, nil
}

// Apply serializa la mutación, la replica y espera commit o timeout.
func (n *Node) Apply(ctx context.Context, m Mutation) (interface{}, error) {
	if n == nil || n.r == nil {
		return nil, errors.New("raft not initialized")
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	fut := n.r.Apply(buf, n.applyTimeout)

	// Respetar cancelación de ctx mientras esperamos el futuro.
	done := make(chan struct{})
	var applyErr error
	var resp interface{}
	go func() {
		applyErr = fut.Error()
		if applyErr == nil {
			resp = fut.Response()
		}
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		appmetrics.RaftApplyLatency.Observe(float64(time.Since(start).Milliseconds()))
		return resp, applyErr
	}
}

func (n *Node) IsLeader() bool {
	if n == nil || n.r == nil {
		return false
	}
	return n.r.State() == raft.Leader
}

// LeaderAddr devuelve la dirección del leader actual ("" si no hay).
func (n *Node) LeaderAddr() string {
	if n == nil || n.r == nil {
		return ""
	}
	addr, _ := n.r.LeaderWithID()
	return string(addr)
}

func (n *Node) Shutdown() error {
	if n == nil || n.r == nil {
		return nil
	}
	return n.r.Shutdown().Error()
}
