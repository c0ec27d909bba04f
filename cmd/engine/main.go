package main

import (
	"context"
	"log"
	"os"

	"github.com/rawblock/muling-engine/internal/api"
	"github.com/rawblock/muling-engine/internal/config"
	"github.com/rawblock/muling-engine/internal/db"
	"github.com/rawblock/muling-engine/internal/heuristics"
	"github.com/rawblock/muling-engine/internal/scanner"
	"github.com/rawblock/muling-engine/internal/telemetry"
)

func main() {
	log.Println("Starting RawBlock Muling Detection Engine (Microservice: acct-muling-analytics)...")
	log.Println("Initializing Ring Detectors and Disruption Planners...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	cfg, err := config.Load(getEnvOrDefault("ENGINE_CONFIG", ""))
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	dbUrl := requireEnv("DATABASE_URL")

	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL, continuing without archiving analyses. Error: %v", err)
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			log.Printf("Warning: DB schema init failed: %v", err)
		}
	}

	metrics := telemetry.NewRegistry()

	// Setup WebSocket Hub
	wsHub := api.NewHub(metrics.WebsocketClients)
	go wsHub.Run()

	// Alerts raised by analyses fan out over the hub and any registered webhooks.
	alertMgr := heuristics.NewAlertManager(cfg.Alerts.MinRiskScore, api.BroadcastAlert(wsHub, metrics))
	watchlist := heuristics.NewAccountWatchlist()
	cases := heuristics.NewCaseManager()

	// Create the batch case-file scanner with real-time WebSocket alert broadcasting
	caseScanner := scanner.NewCaseScanner(dbConn, cfg.Detector, cfg.Scanner.MinAlertRisk,
		cfg.Scanner.Workers, api.BroadcastScanAlert(wsHub, metrics))

	// An optional drop directory gets re-scanned on an interval as new
	// case files land.
	if watchDir := getEnvOrDefault("WATCH_DIR", ""); watchDir != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go caseScanner.Watch(ctx, watchDir, cfg.Scanner.WatchInterval)
		log.Printf("Watching %s for new case files every %s", watchDir, cfg.Scanner.WatchInterval)
	}

	// Setup the Gin Router
	r := api.SetupRouter(api.Deps{
		Store:     dbConn,
		Hub:       wsHub,
		Scanner:   caseScanner,
		Runs:      api.NewRunRegistry(cfg.API.RunRetention),
		Alerts:    alertMgr,
		Watchlist: watchlist,
		Cases:     cases,
		Metrics:   metrics,
		Cfg:       cfg,
	})

	port := getEnvOrDefault("PORT", "5340")

	// Start the server
	log.Printf("Engine running on :%s (API Node: acct-muling-analytics)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
