package main

import (
	"context"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcadia-hq/arcadia-sdk/internal/server"
	"github.com/arcadia-hq/arcadia-sdk/modules/core/infrastructure/persistence"
	"github.com/arcadia-hq/arcadia-sdk/modules/core/presentation/controllers"
	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/kvstore"
	pkgserver "github.com/arcadia-hq/arcadia-sdk/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}

	var store kvstore.Store
	if redisStore, err := kvstore.Dial(ctx, conf.Redis.URL, conf.Redis.DB); err != nil {
		logger.WithError(err).Warn("coordination store unreachable, falling back to in-process store")
		store = kvstore.NewMemoryStore()
	} else {
		store = redisStore
	}

	tenants := persistence.NewTenantRepository()

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Pool:          pool,
		Tenants:       tenants,
		Controllers: []pkgserver.Controller{
			controllers.NewHealthController(pool, store),
		},
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
