// Package main runs the embedded submission queue server for desktop
// platforms. The dashboard shell talks to it over REST/WebSocket on
// localhost.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/indianbuild/passport-core/internal/db"
	"github.com/indianbuild/passport-core/internal/logging"
	"github.com/indianbuild/passport-core/internal/queue"
	"github.com/indianbuild/passport-core/internal/sync"
	"github.com/indianbuild/passport-core/internal/sync/scheduler"

	"github.com/indianbuild/passport-core/cmd/desktop/handlers"
)

const defaultPort = "8090"

// hubListener bridges engine lifecycle events onto the WebSocket hub.
type hubListener struct {
	hub *WSHub
}

func (l *hubListener) SyncStarted() {
	l.hub.BroadcastSyncStarted()
}

func (l *hubListener) SyncCompleted(result *sync.Result) {
	for _, outcome := range result.Outcomes {
		if outcome.Success {
			l.hub.BroadcastUploadSynced(outcome.ID.String())
		} else {
			l.hub.BroadcastUploadFailed(outcome.ID.String(), outcome.Error)
		}
	}
	l.hub.BroadcastSyncCompleted(result.Attempted, result.Synced, result.Failed, result.Duration)
}

func (l *hubListener) SyncFailed(err error) {
	l.hub.BroadcastSyncFailed(err.Error())
}

func main() {
	logging.Init(os.Stdout, logLevel(envOr("LOG_LEVEL", "INFO")))

	dataDir := envOr("DB_PATH", "./data")
	port := envOr("PORT", defaultPort)
	endpoint := envOr("SUBMIT_ENDPOINT", "http://localhost:9000/api/passports")

	syncInterval := 15 * time.Minute
	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("Invalid SYNC_INTERVAL %q: %v", v, err)
		}
		syncInterval = parsed
	}

	// Storage
	database, err := db.Open(dataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database.DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	q := queue.New(repo)

	// Sync machinery
	monitor := sync.NewMonitor(true)
	submitter := sync.NewHTTPSubmitter(endpoint, 30*time.Second)
	engine := sync.NewEngine(q, submitter, monitor, sync.DefaultConfig())
	sched := scheduler.NewScheduler(engine, monitor, syncInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()

	// WebSocket event bridge
	hub := NewWSHub()
	engine.SetListener(&hubListener{hub: hub})

	// REST API
	syncHandler := handlers.NewSyncHandler(sched, monitor)
	syncHandler.SetWebSocketHub(hub)

	mux := newMux(q, syncHandler, hub)

	server := &http.Server{
		Addr:    "localhost:" + port,
		Handler: mux,
	}

	go func() {
		log.Printf("Passport desktop server starting on port %s...", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// newMux registers the full REST surface over the queue and sync control.
func newMux(q *queue.Queue, syncHandler *handlers.SyncHandler, hub *WSHub) *http.ServeMux {
	draftHandler := handlers.NewDraftHandler(q)
	uploadHandler := handlers.NewUploadHandler(q)
	productHandler := handlers.NewProductHandler(q)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"passport-desktop"}`))
	})

	mux.HandleFunc("POST /api/drafts", draftHandler.CreateDraft)
	mux.HandleFunc("GET /api/drafts", draftHandler.ListDrafts)
	mux.HandleFunc("GET /api/drafts/{id}", draftHandler.GetDraft)
	mux.HandleFunc("PUT /api/drafts/{id}", draftHandler.UpdateDraft)
	mux.HandleFunc("DELETE /api/drafts/{id}", draftHandler.DeleteDraft)
	mux.HandleFunc("POST /api/drafts/{id}/submit", draftHandler.PromoteDraft)

	mux.HandleFunc("POST /api/uploads", uploadHandler.CreateUpload)
	mux.HandleFunc("GET /api/uploads", uploadHandler.ListUploads)
	mux.HandleFunc("GET /api/uploads/{id}", uploadHandler.GetUpload)
	mux.HandleFunc("DELETE /api/uploads/{id}", uploadHandler.DeleteUpload)
	mux.HandleFunc("POST /api/uploads/{id}/retry", uploadHandler.RetryUpload)
	mux.HandleFunc("GET /api/uploads/{id}/attempts", uploadHandler.ListAttempts)

	mux.HandleFunc("GET /api/products", productHandler.ListProducts)
	mux.HandleFunc("PUT /api/products", productHandler.PutProducts)
	mux.HandleFunc("DELETE /api/products", productHandler.ClearProducts)
	mux.HandleFunc("GET /api/products/{id}", productHandler.GetProduct)

	mux.HandleFunc("GET /api/sync/status", syncHandler.GetStatus)
	mux.HandleFunc("POST /api/sync/now", syncHandler.TriggerSync)
	mux.HandleFunc("GET /api/network", syncHandler.GetNetworkStatus)
	mux.HandleFunc("POST /api/network", syncHandler.SetNetworkStatus)

	if hub != nil {
		mux.HandleFunc("/ws", HandleWebSocket(hub))
	}

	return mux
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func logLevel(s string) logging.LogLevel {
	switch logging.LogLevel(strings.ToUpper(s)) {
	case logging.LevelDebug:
		return logging.LevelDebug
	case logging.LevelWarn:
		return logging.LevelWarn
	case logging.LevelError:
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
