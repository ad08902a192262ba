package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"cypher-server/internal/auth"
	"cypher-server/internal/config"
	"cypher-server/internal/gateway"
	"cypher-server/internal/quota"
	"cypher-server/internal/server"
	"cypher-server/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(cfg.GinMode)
	st := store.NewWithOptions(store.Options{StateFile: cfg.StateFile})

	gen, err := gateway.NewGemini(context.Background(), cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal(err)
	}

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "cypher-server",
	}

	router := server.NewRouter(server.Deps{
		Store:       st,
		TokenConfig: tokenCfg,
		Generator:   gen,
		Quota:       quota.NewTracker(cfg.HackerDailyLimit),
	})
	log.Printf("listening on %s", fmt.Sprintf(":%d", cfg.Port))
	log.Fatal(server.Run(cfg, router))
}
