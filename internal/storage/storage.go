// Package storage opens the configured database backend and hands back the
// repositories built on top of it.
package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/identity"
)

type Backend struct {
	Name         string
	Appointments appointment.Repository
	Users        identity.Store
	Ping         func(ctx context.Context) error
	Close        func()
}

func Open(ctx context.Context, cfg config.Config) (*Backend, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg)
	case config.DriverSQLite:
		return openSQLite(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}

func openPostgres(ctx context.Context, cfg config.Config) (*Backend, error) {
	if cfg.AutoMigrate {
		version, err := db.MigratePostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Printf("postgres schema at version %d", version)
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	log.Println("connected to Postgres")

	return &Backend{
		Name:         "postgres",
		Appointments: appointment.NewPgRepository(pool),
		Users:        identity.NewPgStore(pool),
		Ping:         pool.Ping,
		Close:        pool.Close,
	}, nil
}

func openSQLite(ctx context.Context, cfg config.Config) (*Backend, error) {
	conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateSQLite(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	log.Printf("opened sqlite database path=%s", cfg.SQLitePath)

	return &Backend{
		Name:         "sqlite",
		Appointments: appointment.NewSQLiteRepository(conn),
		Users:        identity.NewSQLiteStore(conn),
		Ping:         conn.PingContext,
		Close: func() {
			if err := conn.Close(); err != nil {
				log.Printf("error closing sqlite: %v", err)
			}
		},
	}, nil
}
