package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"media-download-api/shared"
)

// enableCORS sets the CORS headers for the request's origin. It reports true
// when the request was a preflight and has been answered.
func enableCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	switch {
	case slices.Contains(cfg.AllowedOrigins, "*"):
		w.Header().Set("Access-Control-Allow-Origin", "*")
	case origin != "" && slices.Contains(cfg.AllowedOrigins, origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// validateSourceURL accepts http(s) URLs whose host is allowed by configuration.
func validateSourceURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("missing url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range cfg.AllowedVideoHosts {
		allowed = strings.ToLower(allowed)
		if allowed == "*" || host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not allowed", host)
}

// clientIP extracts the caller's address from proxy headers or RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// handleDownload creates a job, publishes it and returns immediately.
func handleDownload(w http.ResponseWriter, r *http.Request) {
	if enableCORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Invalid request method")
		return
	}

	var req shared.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validateSourceURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	job := &shared.Job{
		ID:          uuid.New().String(),
		OriginalURL: req.URL,
		Request:     req,
		Status:      shared.JobStatusPending,
		CreatedAt:   now,
	}
	job.Progress.Status = "queued"
	job.Progress.Log.Append(now, "job queued: "+req.URL)

	if err := db.CreateJob(job); err != nil {
		log.Printf("ERROR: Failed to create job %s in DB: %v", job.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to initialize job")
		return
	}
	log.Printf("INFO: Job %s created for %s (client %s)", job.ID, req.URL, clientIP(r))

	if err := mq.Publish(shared.JobMessage{JobID: job.ID, OriginalURL: req.URL}); err != nil {
		log.Printf("ERROR: Failed to publish job %s to queue: %v", job.ID, err)
		markFailed(job.ID, fmt.Sprintf("failed to queue job: %v", err))
		writeError(w, http.StatusInternalServerError, "Failed to submit job to processing queue")
		return
	}
	log.Printf("INFO: Job %s published to message queue", job.ID)

	writeJSON(w, http.StatusOK, map[string]string{
		"job_id":  job.ID,
		"status":  string(shared.JobStatusPending),
		"message": "Download started. Check progress at /progress/" + job.ID,
	})
}

func markFailed(jobID, reason string) {
	_, err := db.UpdateJob(jobID, func(j *shared.Job) error {
		now := time.Now()
		j.Status = shared.JobStatusFailed
		j.Error = reason
		j.Progress.Status = reason
		j.Progress.Percent = 100
		j.Progress.NewlyCompleted = nil
		j.Progress.Log.Append(now, reason)
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		log.Printf("ERROR: Failed to mark job %s as failed: %v", jobID, err)
	}
}

type fileResponse struct {
	Name  string `json:"name"`
	JobID string `json:"job_id"`
	URL   string `json:"url"`
}

type progressResponse struct {
	TaskID             string         `json:"task_id"`
	State              string         `json:"state"`
	StatusText         string         `json:"status_text"`
	Progress           float64        `json:"progress"`
	Logs               []string       `json:"logs"`
	AllCompletedFiles  []fileResponse `json:"all_completed_files"`
	NewlyCompletedFile *fileResponse  `json:"newly_completed_file"`
	Files              []fileResponse `json:"files"`
	Error              string         `json:"error,omitempty"`
}

func toFileResponse(a shared.Artifact) fileResponse {
	return fileResponse{Name: a.Name, JobID: a.JobID, URL: shared.DownloadPath(cfg.PublicAPIBaseURL, a.JobID, a.Name)}
}

// buildProgressResponse renders a stored job for clients.
func buildProgressResponse(job *shared.Job) progressResponse {
	resp := progressResponse{
		TaskID:            job.ID,
		State:             shared.StateLabel(job.Status),
		StatusText:        job.Progress.Status,
		Progress:          job.Progress.Percent,
		Logs:              job.Progress.Log.Lines(),
		AllCompletedFiles: make([]fileResponse, 0, len(job.Progress.Files)),
		Files:             []fileResponse{},
		Error:             job.Error,
	}
	for _, a := range job.Progress.Files {
		resp.AllCompletedFiles = append(resp.AllCompletedFiles, toFileResponse(a))
	}
	if job.Progress.NewlyCompleted != nil {
		f := toFileResponse(*job.Progress.NewlyCompleted)
		resp.NewlyCompletedFile = &f
	}
	if resp.State == shared.StateSucceeded {
		resp.Files = append(resp.Files, resp.AllCompletedFiles...)
	}
	return resp
}

// handleProgress reports a job's state from the store.
func handleProgress(w http.ResponseWriter, r *http.Request) {
	if enableCORS(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Invalid request method")
		return
	}

	jobID := r.PathValue("job_id")
	job, err := db.GetJob(jobID)
	switch {
	case errors.Is(err, shared.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "Job not found")
		return
	case err != nil:
		log.Printf("ERROR: Failed to read job %s: %v", jobID, err)
		writeError(w, http.StatusServiceUnavailable, "Job store unavailable, try again")
		return
	}
	writeJSON(w, http.StatusOK, buildProgressResponse(job))
}

// handleTaskFile serves one artifact from a job's directory as an attachment.
func handleTaskFile(w http.ResponseWriter, r *http.Request) {
	if enableCORS(w, r) {
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "Invalid request method")
		return
	}

	jobID, name := r.PathValue("job_id"), r.PathValue("filename")
	if shared.HasTraversal(jobID) || shared.HasTraversal(name) {
		writeError(w, http.StatusBadRequest, "Invalid path")
		return
	}

	dir := shared.JobDir(cfg.TempDir, jobID)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		writeError(w, http.StatusNotFound, "Job files not found")
		return
	}
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// handleFetchInfo lists the formats and playlist entries of a URL.
func handleFetchInfo(w http.ResponseWriter, r *http.Request) {
	if enableCORS(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Invalid request method")
		return
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validateSourceURL(body.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.MetadataTimeout)
	defer cancel()
	info, err := inspector.Inspect(ctx, body.URL)
	if err != nil {
		log.Printf("ERROR: Failed to fetch info for %s: %v", body.URL, err)
		writeError(w, http.StatusBadGateway, "Failed to fetch video info")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if enableCORS(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "API Gateway is healthy",
	})
}
