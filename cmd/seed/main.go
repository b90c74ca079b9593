// Command seed creates the schema and loads the demo catalog into an empty
// products table.
package main

import (
	"context"
	"os"
	"time"

	"github.com/example/grocery-delivery/internal/config"
	"github.com/example/grocery-delivery/internal/domain/product"
	"github.com/example/grocery-delivery/internal/infrastructure/store"
	"github.com/example/grocery-delivery/internal/logger"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.Load()
	base := logger.New(logger.Options{Service: "seed", Env: cfg.AppEnv, Level: cfg.LogLevel})
	log := logger.Component(base, "Seed")

	dialect := store.Dialect(cfg.DatabaseDriver)
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	sqlStore := store.NewSQLStore(db, dialect, logger.Component(base, "Store"))
	defer sqlStore.Close()

	if err := sqlStore.Migrate(ctx); err != nil {
		log.Error("failed to create schema", "error", err)
		os.Exit(1)
	}

	added, err := product.NewCatalog(sqlStore.Products(), log).EnsureSeeded(ctx)
	if err != nil {
		log.Error("failed to seed catalog", "error", err)
		os.Exit(1)
	}
	if added == 0 {
		log.Info("catalog already populated, nothing to do")
		return
	}
	log.Info("catalog seeded", "products", added)
}
