// api-gateway/main.go
package main

import (
	"context"
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

// formatInspector lists the formats and playlist entries of a source URL.
type formatInspector interface {
	Inspect(ctx context.Context, url string) (*pipeline.FormatInfo, error)
}

var (
	cfg       *shared.Config
	db        shared.DatabaseClient
	mq        shared.MessageQueueClient
	inspector formatInspector
)

func main() {
	cfg = shared.LoadConfig()
	log.Printf("API Gateway starting on port %s", cfg.APIGatewayPort)

	backends, err := shared.NewBackends(cfg, "gateway")
	if err != nil {
		log.Fatalf("FATAL: Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}
	defer backends.Close()
	db, mq = backends.DB, backends.Queue
	inspector = pipeline.NewYtDlp(cfg.YtDlpPath)

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		log.Fatalf("FATAL: Failed to create download directory %s: %v", cfg.TempDir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Without Redis the store and queue live in this process, so the jobs must too.
	if backends.Redis == nil {
		log.Println("INFO: No REDIS_ADDR configured, running jobs in-process with in-memory store and queue.")
		pool := pipeline.NewPool(db, mq, pipeline.NewFromConfig(cfg, db), cfg.MaxWorkers)
		go func() {
			if err := pool.Run(ctx); err != nil {
				log.Printf("ERROR: Embedded worker pool stopped: %v", err)
			}
		}()
		sweeps, err := pipeline.ScheduleSweeps(cfg.SweepSchedule, pipeline.NewSweeper(cfg.TempDir, cfg.RetentionMaxAge))
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		sweeps.Start()
		defer sweeps.Stop()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.APIGatewayPort,
		Handler:           newMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("API Gateway Server running on http://localhost:%s\n", cfg.APIGatewayPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("FATAL: %v", err)
	}
	log.Println("INFO: API Gateway stopped.")
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/download", handleDownload)
	mux.HandleFunc("/progress/{job_id}", handleProgress)
	mux.HandleFunc("/task_files/{job_id}/{filename}", handleTaskFile)
	mux.HandleFunc("/fetch_info", handleFetchInfo)
	mux.HandleFunc("/health", handleHealth)
	return mux
}
