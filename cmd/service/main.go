package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/covenant/internal/cluster"
	"github.com/dropDatabas3/covenant/internal/config"
	"github.com/dropDatabas3/covenant/internal/coordinator"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	pgstore "github.com/dropDatabas3/covenant/internal/coordinator/pg"
	"github.com/dropDatabas3/covenant/internal/email"
	covhttp "github.com/dropDatabas3/covenant/internal/http"
	"github.com/dropDatabas3/covenant/internal/identity"
	"github.com/dropDatabas3/covenant/internal/ledger"
	"github.com/dropDatabas3/covenant/internal/metrics"
	"github.com/dropDatabas3/covenant/internal/observability/logger"
	"github.com/dropDatabas3/covenant/internal/quorum"
	"github.com/dropDatabas3/covenant/internal/rate"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "configs/config.yaml", "ruta al YAML de configuración")
	flag.Parse()

	// .env primero, para que los overrides de env ya estén puestos al cargar
	// el YAML. Ignorar si no existe.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "covenant",
	})
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Métricas: registry propio + collectors de runtime.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(registry); err != nil {
		lg.Fatal("register metrics", logger.Err(err))
	}
	covhttp.RegisterMetrics(registry)

	// Repositorio: cluster embebido o backend directo según config.
	var (
		repo     core.Repository
		raftNode *cluster.Node
	)
	if cfg.Cluster.Mode == "embedded" {
		if err := metrics.RegisterRaft(registry); err != nil {
			lg.Fatal("register raft metrics", logger.Err(err))
		}
		fsm := cluster.NewFSM()
		node, err := cluster.NewNode(cluster.NodeOptions{
			NodeID:   cfg.Cluster.NodeID,
			RaftAddr: cfg.Cluster.RaftAddr,
			RaftDir:  cfg.Cluster.RaftDir,
			FSM:      fsm,
			Peers:    cfg.Cluster.Nodes,
		})
		if err != nil {
			lg.Fatal("cluster node", logger.Err(err))
		}
		raftNode = node
		repo = cluster.NewStore(node, fsm)
		lg.Info("cluster mode enabled",
			zap.String("node_id", cfg.Cluster.NodeID),
			zap.String("raft_addr", cfg.Cluster.RaftAddr),
		)
	} else {
		storageCfg := coordinator.StorageConfig{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN}
		storageCfg.Bolt.Path = cfg.Storage.Bolt.Path
		storageCfg.Redis.Addr = cfg.Storage.Redis.Addr
		storageCfg.Redis.Password = cfg.Storage.Redis.Password
		storageCfg.Redis.DB = cfg.Storage.Redis.DB
		storageCfg.Redis.Prefix = cfg.Storage.Redis.Prefix
		storageCfg.Postgres.MaxConns = int32(cfg.Storage.Postgres.MaxConns)
		storageCfg.Postgres.ConnMaxLifetime = cfg.Storage.Postgres.ConnMaxLifetime

		repo, err = coordinator.OpenRepository(ctx, storageCfg)
		if err != nil {
			lg.Fatal("open repository", logger.Err(err))
		}
		lg.Info("storage ready", zap.String("driver", cfg.Storage.Driver))
	}
	defer func() { _ = repo.Close() }()

	// Stats del pool pg, si aplica.
	if pgs, ok := repo.(*pgstore.Store); ok {
		registry.MustRegister(pgstore.NewPoolCollector(pgs.Pool()))
	}

	// Ledger dev opcional, con vaults de génesis desde config.
	var led ledger.Ledger
	if cfg.Ledger.Mode == "dev" {
		dev := ledger.NewDev()
		for _, v := range cfg.Ledger.Vaults {
			if err := seedVault(dev, v.Address, v.Members, v.Threshold, v.Balance); err != nil {
				lg.Fatal("seed vault", zap.String("vault", v.Address), logger.Err(err))
			}
			lg.Info("vault seeded",
				logger.Vault(v.Address),
				zap.Int("members", len(v.Members)),
				zap.Uint32("threshold", v.Threshold),
			)
		}
		led = dev
	}

	// Servicio coordinator.
	svcOpts := []coordinator.Option{}
	if led != nil {
		svcOpts = append(svcOpts, coordinator.WithLedgerReader(led))
	}
	if cfg.Email.Enabled && cfg.SMTP.Host != "" {
		sender := email.FromConfig(email.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			FromEmail: cfg.SMTP.From,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			TLSMode:   cfg.SMTP.TLS,
		})
		sender.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		svcOpts = append(svcOpts, coordinator.WithNotifier(email.NewNotifier(sender, cfg.Email.Recipients)))
	}
	svc := coordinator.New(repo, svcOpts...)

	// Rate limit opcional.
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		switch cfg.Rate.Kind {
		case "redis":
			client := rdb.NewClient(&rdb.Options{
				Addr:     cfg.Storage.Redis.Addr,
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
			limiter = rate.NewRedisLimiter(client, cfg.Storage.Redis.Prefix+":rl:", cfg.Rate.MaxRequests, cfg.RateWindow())
		default:
			limiter = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.RateWindow())
		}
	}

	handler := covhttp.NewRouter(covhttp.RouterOptions{
		Handler:        covhttp.NewHandler(svc, led),
		Pinger:         repo,
		Registry:       registry,
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		Limiter:        limiter,
	})
	srv := covhttp.NewServer(cfg.Server.Addr, handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if raftNode != nil {
			defer func() { _ = raftNode.Shutdown() }()
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		lg.Fatal("service exited", logger.Err(err))
	}
	lg.Info("bye")
}

func seedVault(dev *ledger.Dev, addr string, members []string, threshold uint32, balance string) error {
	vault, err := identity.Parse(addr)
	if err != nil {
		return err
	}
	ids := make([]identity.Address, len(members))
	for i, m := range members {
		if ids[i], err = identity.Parse(m); err != nil {
			return err
		}
	}
	m, err := quorum.NewMembership(ids, threshold)
	if err != nil {
		return err
	}
	bal := new(big.Int)
	if balance != "" {
		if _, ok := bal.SetString(balance, 10); !ok {
			return fmt.Errorf("balance %q is not a decimal integer", balance)
		}
	}
	return dev.CreateVault(vault, m, bal)
}
