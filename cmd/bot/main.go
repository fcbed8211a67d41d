package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/cache"
	"github.com/buzzwatch/buzzwatch/internal/config"
	"github.com/buzzwatch/buzzwatch/internal/fanout"
	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/buzzwatch/buzzwatch/internal/monitoring"
	"github.com/buzzwatch/buzzwatch/internal/notifications"
	"github.com/buzzwatch/buzzwatch/internal/savedqueries"
	"github.com/buzzwatch/buzzwatch/internal/scheduler"
	"github.com/buzzwatch/buzzwatch/internal/sentiment"
	"github.com/buzzwatch/buzzwatch/internal/sources"
	"github.com/buzzwatch/buzzwatch/internal/storage"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting BuzzWatch")

	// Blob storage is optional; without it saved queries and snapshots are
	// simply unavailable.
	var store storage.Interface
	if cfg.StorageAccount != "" {
		azure, err := storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		store = azure
	} else {
		logrus.Info("No storage account configured, using in-memory storage")
		store = storage.NewMemory()
	}

	adapters := []sources.Source{
		sources.NewRedditSource(cfg.RedditClientID, cfg.RedditClientSecret),
		sources.NewHackerNewsSource(),
		sources.NewTwitterSource(cfg.TwitterBearerToken),
		sources.NewYouTubeSource(cfg.YouTubeAPIKey),
		sources.NewMediumSource(),
	}

	executor := fanout.New(adapters, sentiment.Lexicon(), cfg.FanoutTimeout)
	queryCache := cache.New(executor.Run, cfg.CacheTTL)
	savedStore := savedqueries.New(store)

	var notifier notifications.Notifier
	if svc := notifications.NewService(cfg); svc.Enabled() {
		notifier = svc
	}

	orchestrator := monitoring.NewService(cfg, executor, queryCache, savedStore, notifier)
	defer orchestrator.Close()

	schedulerService := scheduler.NewService(cfg, orchestrator, store)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search", searchHandler(orchestrator)).Methods("POST")
	api.HandleFunc("/monitor", enableMonitorHandler(orchestrator)).Methods("POST")
	api.HandleFunc("/monitor", disableMonitorHandler(orchestrator)).Methods("DELETE")
	api.HandleFunc("/monitor", snapshotHandler(orchestrator)).Methods("GET")
	api.HandleFunc("/cache", clearCacheHandler(orchestrator)).Methods("DELETE")
	api.HandleFunc("/queries", persistQueryHandler(savedStore)).Methods("POST")
	api.HandleFunc("/queries", listQueriesHandler(savedStore)).Methods("GET")
	api.HandleFunc("/queries/{id}", deleteQueryHandler(savedStore)).Methods("DELETE")
	api.HandleFunc("/queries/{id}/run", runQueryHandler(orchestrator)).Methods("POST")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

// queryRequest is the JSON shape of a query on the wire.
type queryRequest struct {
	Keywords  []string `json:"keywords"`
	Platforms []string `json:"platforms"`
	Filters   struct {
		Language  string `json:"language"`
		Period    string `json:"period"` // Go duration string, e.g. "24h"
		Sentiment string `json:"sentiment"`
	} `json:"filters"`
}

func (r queryRequest) toQuery() (models.Query, error) {
	query := models.Query{
		Keywords:  r.Keywords,
		Platforms: r.Platforms,
		Filters: models.Filters{
			Language:  r.Filters.Language,
			Sentiment: models.Sentiment(r.Filters.Sentiment),
		},
	}

	if r.Filters.Period != "" {
		period, err := time.ParseDuration(r.Filters.Period)
		if err != nil {
			return query, fmt.Errorf("invalid period %q: %w", r.Filters.Period, err)
		}
		query.Filters.Period = period
	}

	return query, nil
}

type searchResponse struct {
	Result *models.CacheEntry `json:"result"`
	Errors map[string]string  `json:"errors,omitempty"`
}

func platformErrors(errMap map[string]*sources.Error) map[string]string {
	if len(errMap) == 0 {
		return nil
	}
	out := make(map[string]string, len(errMap))
	for platform, adapterErr := range errMap {
		out[platform] = string(adapterErr.Kind)
	}
	return out
}

func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func searchHandler(orchestrator *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, ok := decodeQuery(w, r)
		if !ok {
			return
		}

		entry, errMap, err := orchestrator.Search(r.Context(), query)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, monitoring.ErrNoKeywords) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]interface{}{
				"error":  err.Error(),
				"errors": platformErrors(errMap),
			})
			return
		}

		writeJSON(w, http.StatusOK, searchResponse{Result: entry, Errors: platformErrors(errMap)})
	}
}

func enableMonitorHandler(orchestrator *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, ok := decodeQuery(w, r)
		if !ok {
			return
		}

		if err := orchestrator.EnableMonitoring(query); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "monitoring"})
	}
}

func disableMonitorHandler(orchestrator *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		orchestrator.DisableMonitoring()
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	}
}

func snapshotHandler(orchestrator *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snapshot, ok := orchestrator.MonitoringSnapshot()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active monitoring session"})
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

func clearCacheHandler(orchestrator *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		orchestrator.ClearCache()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func persistQueryHandler(store *savedqueries.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name  string       `json:"name"`
			Query queryRequest `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
			return
		}

		query, err := req.Query.toQuery()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		record, err := store.Persist(r.Context(), req.Name, query)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusCreated, record)
	}
}

func listQueriesHandler(store *savedqueries.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := store.List(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func deleteQueryHandler(store *savedqueries.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := store.Delete(r.Context(), id); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, savedqueries.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func runQueryHandler(orchestrator *monitoring.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		entry, errMap, err := orchestrator.RunSaved(r.Context(), id)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, savedqueries.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]interface{}{
				"error":  err.Error(),
				"errors": platformErrors(errMap),
			})
			return
		}

		writeJSON(w, http.StatusOK, searchResponse{Result: entry, Errors: platformErrors(errMap)})
	}
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (models.Query, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return models.Query{}, false
	}

	query, err := req.toQuery()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return models.Query{}, false
	}

	return query, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}
