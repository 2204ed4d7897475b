package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/veya/storefront/internal/config"
	"github.com/veya/storefront/internal/dbpool"
	"github.com/veya/storefront/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml")
	olderThan := flag.Duration("older-than", 90*24*time.Hour, "delete finished attempts not updated for this long")
	dryRun := flag.Bool("dry-run", false, "only count the attempts that would be deleted")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Storage.Backend != "postgres" {
		log.Fatalf("storage.backend is %q; pruning only applies to postgres", cfg.Storage.Backend)
	}

	pool, err := dbpool.Open(cfg.Storage.PostgresURL, cfg.Storage.PostgresPool, storage.DefaultQueryTimeout)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	fmt.Println("✓ Connected to database")

	store, err := storage.NewPostgresStoreWithDB(pool.DB(), cfg.Storage.TableName, nil)
	if err != nil {
		log.Fatal(err)
	}

	cutoff := time.Now().UTC().Add(-*olderThan)
	n, err := store.PruneAttempts(context.Background(), cutoff, *dryRun)
	if err != nil {
		log.Fatal(err)
	}

	if *dryRun {
		fmt.Printf("%d attempts in %s last updated before %s would be deleted\n", n, cfg.Storage.TableName, cutoff.Format(time.RFC3339))
		return
	}
	fmt.Printf("✓ Deleted %d attempts from %s\n", n, cfg.Storage.TableName)
}
