package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/hackgods/clinic-appointments/internal/config"
	"github.com/hackgods/clinic-appointments/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	force := flag.Int("force", -1, "mark the postgres schema at this version without running migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	switch cfg.DBDriver {
	case config.DriverPostgres:
		if *force >= 0 {
			if err := db.ForcePostgresVersion(cfg.PostgresDSN, *force); err != nil {
				log.Fatalf("force version: %v", err)
			}
			log.Printf("postgres schema forced to version %d", *force)
			return
		}
		version, err := db.MigratePostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("migrate postgres: %v", err)
		}
		log.Printf("postgres schema at version %d", version)

	case config.DriverSQLite:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		defer conn.Close()

		if err := db.MigrateSQLite(ctx, conn); err != nil {
			log.Fatalf("migrate sqlite: %v", err)
		}
		log.Printf("sqlite schema migrated path=%s", cfg.SQLitePath)
	}
}
