package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vigil/internal/auth"
	"vigil/internal/classify"
	"vigil/internal/database"
	"vigil/internal/events"
	"vigil/internal/session"
	"vigil/internal/ws"
)

func main() {
	var (
		addrF = flag.String("http-addr", ":8080", "HTTP listen address")
		dbF   = flag.String("db", "vigil.db", "Path to the SQLite database")
	)
	flag.Parse()

	// Optional .env file for local development
	_ = godotenv.Load()

	logger := log.New(os.Stderr, "[vigil] ", log.Ltime)

	sessionDefaults := sessionConfigFromEnv()

	db, err := database.New(*dbF)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatalf("failed to migrate database: %v", err)
	}

	bus := events.NewBus()
	defer bus.Close()
	unsubscribe := bus.Subscribe(database.NewWriter(db))
	defer unsubscribe()

	classifier := classify.NewLLMClassifier(classify.LLMClassifierConfig{
		Endpoint: envOr("CLASSIFIER_ENDPOINT", "http://localhost:9090"),
		Model:    os.Getenv("CLASSIFIER_MODEL"),
	})
	if !classifier.IsHealthy() {
		logger.Printf("Warning: classification service is not reachable yet")
	}

	authenticator := auth.NewAuthenticator()
	hub := ws.NewHub()
	wsHandler := ws.NewHandler(hub, sessionDefaults, classifier, bus, authenticator)

	// Channel used by both the signal handler and server goroutines to
	// notify the main goroutine when to stop.
	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	if hours := envFloat("EVENT_RETENTION_HOURS", 0); hours > 0 {
		wg.Add(1)
		go pruneLoop(ctx, &wg, db, time.Duration(hours*float64(time.Hour)), logger)
	}

	handleHTTPServer(ctx, *addrF, wsHandler, hub, db, classifier, authenticator, &wg, errc, logger)

	logger.Printf("exiting (%v)", <-errc)
	cancel()
	wg.Wait()
	logger.Println("exited")
}

// pruneLoop periodically deletes detection events past the retention window
func pruneLoop(ctx context.Context, wg *sync.WaitGroup, db *database.Database, retention time.Duration, logger *log.Logger) {
	defer wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := db.DeleteOldDetectionEvents(time.Now().Add(-retention))
			if err != nil {
				logger.Printf("event prune failed: %v", err)
			} else if deleted > 0 {
				logger.Printf("pruned %d detection events", deleted)
			}
		}
	}
}

// sessionConfigFromEnv builds the server-wide session defaults
func sessionConfigFromEnv() session.Config {
	cfg := session.DefaultConfig()

	if v := envInt("MAX_BUFFER", 0); v > 0 {
		cfg.MaxBuffer = v
	}
	if v := envFloat("LLM_SUBMISSION_THRESHOLD", 0); v > 0 {
		cfg.SubmissionThreshold = v
	}
	if v := envFloat("CONTEXT_EXPIRY_SECONDS", 0); v > 0 {
		cfg.ContextExpiry = v
	}
	if v := envFloat("POST_DETECTION_COOLDOWN", -1); v >= 0 {
		cfg.Cooldown = time.Duration(v * float64(time.Second))
	}
	if v := envFloat("CLASSIFY_TIMEOUT_SECONDS", 0); v > 0 {
		cfg.ClassifyTimeout = time.Duration(v * float64(time.Second))
	}
	if v := os.Getenv("CLASSIFIER_PROMPT"); v != "" {
		cfg.Prompt = v
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
