package coordinator

import (
	"context"
	"fmt"
	"strings"

	boltstore "github.com/dropDatabas3/covenant/internal/coordinator/bolt"
	"github.com/dropDatabas3/covenant/internal/coordinator/core"
	memstore "github.com/dropDatabas3/covenant/internal/coordinator/memory"
	pgstore "github.com/dropDatabas3/covenant/internal/coordinator/pg"
	redisstore "github.com/dropDatabas3/covenant/internal/coordinator/redis"
)

// StorageConfig selecciona e inicializa el backend de persistencia.
type StorageConfig struct {
	Driver string // "memory" | "bolt" | "redis" | "postgres"
	DSN    string
	Bolt   struct {
		Path string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}
	Postgres struct {
		MaxConns        int32
		ConnMaxLifetime string
	}
}

// OpenRepository abre el backend indicado por el driver. Mismo patrón que un
// factory de stores clásico: un switch sobre el string y cada rama devuelve
// el core.Repository concreto.
func OpenRepository(ctx context.Context, cfg StorageConfig) (core.Repository, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return memstore.New(), nil
	case "bolt", "boltdb":
		path := cfg.Bolt.Path
		if path == "" {
			path = "data/covenant.db"
		}
		return boltstore.Open(path)
	case "redis":
		return redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	case "postgres", "pg", "postgresql":
		return pgstore.Open(ctx, pgstore.Options{
			DSN:             cfg.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
