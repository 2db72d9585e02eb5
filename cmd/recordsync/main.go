package main

import (
	"context"
	"flag"
	"log"

	"github.com/vdavid/mailvault/internal/config"
	"github.com/vdavid/mailvault/internal/store"
)

// recordsync reconciles the local metadata database with the remote
// mirror after one of them has fallen behind, for example after a mirror
// outage or a fresh local database on a new machine.
func main() {
	direction := flag.String("direction", "pull", `copy direction: "pull" (mirror to local) or "push" (local to mirror)`)
	flag.Parse()

	if *direction != "pull" && *direction != "push" {
		log.Fatalf(`-direction must be "pull" or "push"`)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.MirrorEnabled() {
		log.Fatalf("MAILVAULT_MIRROR_HOST is required: there is no mirror to reconcile with")
	}

	ctx := context.Background()

	local, err := store.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open local database: %v", err)
	}
	defer local.Close()

	mirror, err := store.OpenMySQL(ctx, cfg.GetMirrorDSN())
	if err != nil {
		log.Fatalf("Failed to open mirror database: %v", err)
	}
	defer mirror.Close()

	src, dst := store.Backend(mirror), store.Backend(local)
	if *direction == "push" {
		src, dst = dst, src
	}

	if err := store.SyncRecords(ctx, src, dst); err != nil {
		log.Fatalf("Reconciliation failed: %v", err)
	}
}
