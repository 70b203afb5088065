package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"media-download-api/pipeline"
	"media-download-api/shared"
)

type fakeInspector struct {
	info *pipeline.FormatInfo
	err  error
}

func (f *fakeInspector) Inspect(ctx context.Context, url string) (*pipeline.FormatInfo, error) {
	return f.info, f.err
}

// failingQueue captures what is published and refuses it.
type failingQueue struct {
	published []shared.JobMessage
}

func (q *failingQueue) Publish(m shared.JobMessage) error {
	q.published = append(q.published, m)
	return errors.New("stream unavailable")
}
func (q *failingQueue) Consume() (<-chan shared.JobMessage, error) { return nil, nil }
func (q *failingQueue) Ack(shared.JobMessage) error                { return nil }
func (q *failingQueue) Close()                                     {}

type unavailableDB struct{ shared.DatabaseClient }

func (unavailableDB) GetJob(string) (*shared.Job, error) {
	return nil, fmt.Errorf("%w: connection refused", shared.ErrStoreUnavailable)
}

func setupGateway(t *testing.T) *shared.InMemoryQueue {
	t.Helper()
	cfg = shared.DefaultConfig()
	cfg.TempDir = t.TempDir()
	cfg.PublicAPIBaseURL = "https://api.example.com"
	db = shared.NewInMemoryDB(time.Hour)
	q := shared.NewInMemoryQueue(10)
	t.Cleanup(q.Close)
	mq = q
	inspector = &fakeInspector{}
	return q
}

func doRequest(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleDownloadCreatesAndQueuesJob(t *testing.T) {
	q := setupGateway(t)

	rec := doRequest(newMux(), http.MethodPost, "/download", `{"url":"https://www.youtube.com/watch?v=abc","audio_only":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["job_id"] == "" || resp["status"] != "pending" {
		t.Errorf("unexpected response %v", resp)
	}

	job, err := db.GetJob(resp["job_id"])
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if !job.Request.AudioOnly || job.Progress.Log.Len() != 1 {
		t.Errorf("unexpected stored job %+v", job)
	}

	ch, _ := q.Consume()
	select {
	case m := <-ch:
		if m.JobID != resp["job_id"] {
			t.Errorf("queued %s, want %s", m.JobID, resp["job_id"])
		}
	default:
		t.Error("expected the job to be queued")
	}
}

func TestHandleDownloadRejectsBadInput(t *testing.T) {
	setupGateway(t)
	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing url", http.MethodPost, `{}`, http.StatusBadRequest},
		{"unsupported scheme", http.MethodPost, `{"url":"ftp://youtube.com/x"}`, http.StatusBadRequest},
		{"host not allowed", http.MethodPost, `{"url":"https://evil.example/watch?v=1"}`, http.StatusBadRequest},
		{"lookalike host", http.MethodPost, `{"url":"https://notyoutube.com/watch?v=1"}`, http.StatusBadRequest},
		{"allowed subdomain", http.MethodPost, `{"url":"https://m.youtube.com/watch?v=1"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(newMux(), tt.method, "/download", tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
		})
	}
}

func TestHandleDownloadPublishFailureMarksJobFailed(t *testing.T) {
	setupGateway(t)
	fq := &failingQueue{}
	mq = fq

	rec := doRequest(newMux(), http.MethodPost, "/download", `{"url":"https://youtu.be/abc"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(fq.published) != 1 {
		t.Fatalf("expected one publish attempt, got %d", len(fq.published))
	}
	job, err := db.GetJob(fq.published[0].JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != shared.JobStatusFailed || !strings.Contains(job.Error, "stream unavailable") {
		t.Errorf("expected failed job with the publish error, got %s %q", job.Status, job.Error)
	}
	if job.Progress.Percent != 100 {
		t.Errorf("a failed job is terminal and must report 100%%, got %v", job.Progress.Percent)
	}
}

func storeJob(t *testing.T, job *shared.Job) {
	t.Helper()
	if err := db.CreateJob(job); err != nil {
		t.Fatal(err)
	}
}

func getProgress(t *testing.T, jobID string) (int, progressResponse) {
	t.Helper()
	rec := doRequest(newMux(), http.MethodGet, "/progress/"+jobID, "")
	var resp progressResponse
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
	}
	return rec.Code, resp
}

func TestHandleProgress(t *testing.T) {
	setupGateway(t)
	now := time.Now()

	running := &shared.Job{ID: "run", Status: shared.JobStatusProcessing}
	running.Progress = shared.Progress{
		Status:         "(1/2) complete: a#1?.mp3",
		Percent:        50,
		Files:          []shared.Artifact{{Name: "a#1?.mp3", JobID: "run"}},
		NewlyCompleted: &shared.Artifact{Name: "a#1?.mp3", JobID: "run"},
	}
	running.Progress.Log.Append(now, "item complete: a#1?.mp3")
	storeJob(t, running)

	code, resp := getProgress(t, "run")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.TaskID != "run" || resp.State != shared.StateRunning || resp.Progress != 50 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Files) != 0 {
		t.Errorf("final files must stay empty until the job succeeds, got %v", resp.Files)
	}
	wantURL := "https://api.example.com/task_files/run/a%231%3F.mp3"
	if len(resp.AllCompletedFiles) != 1 || resp.AllCompletedFiles[0].URL != wantURL {
		t.Errorf("expected url %s, got %+v", wantURL, resp.AllCompletedFiles)
	}
	if resp.NewlyCompletedFile == nil || resp.NewlyCompletedFile.URL != wantURL {
		t.Errorf("unexpected newly completed file %+v", resp.NewlyCompletedFile)
	}
	if len(resp.Logs) != 1 || !strings.HasSuffix(resp.Logs[0], "item complete: a#1?.mp3") {
		t.Errorf("unexpected logs %v", resp.Logs)
	}

	done := &shared.Job{ID: "done", Status: shared.JobStatusCompleted}
	done.Progress = shared.Progress{Status: "all downloads complete", Percent: 100, Files: []shared.Artifact{{Name: "a.mp3", JobID: "done"}}}
	storeJob(t, done)
	_, resp = getProgress(t, "done")
	if resp.State != shared.StateSucceeded || len(resp.Files) != 1 || resp.Files[0].Name != "a.mp3" {
		t.Errorf("expected final files on success, got %+v", resp)
	}

	empty := &shared.Job{ID: "empty", Status: shared.JobStatusCompleted}
	empty.Progress = shared.Progress{Status: "no files downloaded", Percent: 100}
	storeJob(t, empty)
	_, resp = getProgress(t, "empty")
	if resp.State != shared.StateSucceeded || resp.StatusText != "no files downloaded" || resp.Files == nil || len(resp.Files) != 0 {
		t.Errorf("a job without files still succeeds, got %+v", resp)
	}

	odd := &shared.Job{ID: "odd", Status: shared.JobStatus("paused")}
	storeJob(t, odd)
	_, resp = getProgress(t, "odd")
	if resp.State != shared.StateUnknown {
		t.Errorf("expected Unknown, got %s", resp.State)
	}

	if code, _ := getProgress(t, "nope"); code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown job, got %d", code)
	}
}

func TestHandleProgressStoreUnavailable(t *testing.T) {
	setupGateway(t)
	db = unavailableDB{}
	if code, _ := getProgress(t, "any"); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
}

func TestHandleTaskFile(t *testing.T) {
	setupGateway(t)
	dir := filepath.Join(cfg.TempDir, "job1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "My Song.mp3"), []byte("ID3data"), 0o644); err != nil {
		t.Fatal(err)
	}

	serve := func(jobID, name string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/task_files/x/y", nil)
		req.SetPathValue("job_id", jobID)
		req.SetPathValue("filename", name)
		rec := httptest.NewRecorder()
		handleTaskFile(rec, req)
		return rec
	}

	rec := serve("job1", "My Song.mp3")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ID3data" {
		t.Errorf("unexpected body %q", rec.Body)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "My Song.mp3") {
		t.Errorf("expected attachment disposition, got %q", cd)
	}

	tests := []struct {
		name, job, file string
		want            int
	}{
		{"traversal in file", "job1", "../../etc/passwd", http.StatusBadRequest},
		{"traversal in job", "..", "My Song.mp3", http.StatusBadRequest},
		{"missing job directory", "job2", "My Song.mp3", http.StatusNotFound},
		{"missing file", "job1", "other.mp3", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(tt.job, tt.file); rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	// routed through the mux, with the name percent-encoded as in the status response
	routed := doRequest(newMux(), http.MethodGet, "/task_files/job1/My%20Song.mp3", "")
	if routed.Code != http.StatusOK {
		t.Errorf("expected 200 through the mux, got %d", routed.Code)
	}
}

func TestHandleFetchInfo(t *testing.T) {
	setupGateway(t)
	inspector = &fakeInspector{info: &pipeline.FormatInfo{Title: "Sample", DefaultAudioFormatID: "140"}}

	rec := doRequest(newMux(), http.MethodPost, "/fetch_info", `{"url":"https://youtu.be/x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var info pipeline.FormatInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Title != "Sample" || info.DefaultAudioFormatID != "140" {
		t.Errorf("unexpected info %+v", info)
	}

	inspector = &fakeInspector{err: errors.New("yt-dlp exited 1")}
	if rec := doRequest(newMux(), http.MethodPost, "/fetch_info", `{"url":"https://youtu.be/x"}`); rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
	if rec := doRequest(newMux(), http.MethodPost, "/fetch_info", `{"url":"https://evil.example/x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	setupGateway(t)

	rec := doRequest(newMux(), http.MethodOptions, "/download", "")
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected preflight response %d %v", rec.Code, rec.Header())
	}

	cfg.AllowedOrigins = []string{"https://app.example.com"}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	out := httptest.NewRecorder()
	newMux().ServeHTTP(out, req)
	if got := out.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected the allowed origin to be echoed, got %q", got)
	}

	req.Header.Set("Origin", "https://other.example.com")
	out = httptest.NewRecorder()
	newMux().ServeHTTP(out, req)
	if got := out.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for an unknown origin, got %q", got)
	}
}
