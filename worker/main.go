// worker/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-download-api/pipeline"
	"media-download-api/shared"
)

var (
	cfg  *shared.Config
	pool *pipeline.Pool
)

func main() {
	cfg = shared.LoadConfig()
	log.Printf("Worker Service starting on port %s with %d max concurrent jobs", cfg.WorkerPort, cfg.MaxWorkers)

	if cfg.RedisAddr == "" {
		// in-memory backends are private to a process; the gateway runs jobs itself then
		log.Println("WARN: REDIS_ADDR is not set; this worker will not see jobs submitted to the gateway.")
	}
	hostname, _ := os.Hostname()
	backends, err := shared.NewBackends(cfg, fmt.Sprintf("worker-%s-%d", hostname, os.Getpid()))
	if err != nil {
		log.Fatalf("FATAL: Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}
	defer backends.Close()

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		log.Fatalf("FATAL: Failed to create download directory %s: %v", cfg.TempDir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeps, err := pipeline.ScheduleSweeps(cfg.SweepSchedule, pipeline.NewSweeper(cfg.TempDir, cfg.RetentionMaxAge))
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	sweeps.Start()
	defer sweeps.Stop()
	log.Printf("INFO: Retention sweep scheduled (%s), max age %s", cfg.SweepSchedule, cfg.RetentionMaxAge)

	pool = pipeline.NewPool(backends.DB, backends.Queue, pipeline.NewFromConfig(cfg, backends.DB), cfg.MaxWorkers)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	srv := &http.Server{Addr: ":" + cfg.WorkerPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		fmt.Printf("Worker Service running on http://localhost:%s\n", cfg.WorkerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: %v", err)
		}
	}()

	if err := pool.Run(ctx); err != nil {
		log.Printf("ERROR: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Println("INFO: Worker Service stopped.")
}

// handleHealth reports worker utilisation.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	message := "Worker Service is healthy and consuming from queue."
	if pool.Active() == pool.Capacity() {
		message = "Worker Service is healthy but all workers are currently busy."
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":         "ok",
		"message":        message,
		"active_workers": fmt.Sprintf("%d/%d", pool.Active(), pool.Capacity()),
	})
}
