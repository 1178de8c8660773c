package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sibysi/agent-directory/internal/config"
	"github.com/sibysi/agent-directory/internal/db"
	"github.com/sibysi/agent-directory/internal/model"
	"github.com/sibysi/agent-directory/internal/server"
)

// Set via -ldflags at build time.
var (
	gitSHA    = "dev"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		// Start anyway so healthz answers; fulfillment stays degraded
		// until the environment is fixed and the process restarted.
		log.Printf("config load error: %v", cfgErr)
		cfg = &config.Config{}
	}

	srv := server.New(nil, cfg, gitSHA, buildTime)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port

	errCh := make(chan error, 1)

	go func() {
		log.Printf("starting server on %s", addr)
		errCh <- srv.Start(addr)
	}()

	go func() {
		if cfgErr != nil {
			return
		}
		conn, err := db.Connect(cfg)
		if err != nil {
			log.Printf("db connect error: %v", err)
			return
		}
		srv.SetDB(conn)
		if err := conn.AutoMigrate(
			&model.Listing{},
			&model.Transaction{},
			&model.ManualFulfillmentTask{},
			&model.FulfillmentLogEntry{},
			&model.AgentRevenue{},
			&model.Notification{},
		); err != nil {
			log.Printf("auto migrate error: %v", err)
		}
	}()

	if err := <-errCh; err != nil {
		srv.Shutdown()
		log.Fatalf("server stopped: %v", err)
	}
}
