package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/internal/analysis"
	"github.com/joseph-ayodele/palmistry/internal/async"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/entity"
	"github.com/joseph-ayodele/palmistry/internal/export"
	"github.com/joseph-ayodele/palmistry/internal/ingest"
	"github.com/joseph-ayodele/palmistry/internal/repository"
	"github.com/joseph-ayodele/palmistry/internal/services/analyses"
	ingestsvc "github.com/joseph-ayodele/palmistry/internal/services/ingest"
)

const testSecret = "test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []async.Job
}

func (c *captureQueue) Enqueue(_ context.Context, j async.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, j)
	return nil
}

func (c *captureQueue) Shutdown(context.Context) {}

type echoAnswerer struct{}

func (echoAnswerer) Answer(_ context.Context, req analysis.AnswerRequest) (string, error) {
	return "re: " + req.Question, nil
}

type testEnv struct {
	router *gin.Engine
	jobs   repository.JobRepository
	queue  *captureQueue
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: ":memory:"}, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { repository.Close(db, testLogger()) })
	if err := repository.Migrate(ctx, db, testLogger()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	images := repository.NewImageRepository(db, testLogger())
	jobs := repository.NewJobRepository(db, testLogger())
	followUps := repository.NewFollowUpRepository(db, testLogger())
	q := &captureQueue{}

	api := NewAPI(Deps{
		Ingest:   ingestsvc.NewService(ingest.NewFSIngestor(images, jobs, t.TempDir(), 1024, testLogger()), q, testLogger()),
		Analyses: analyses.NewService(jobs, images, followUps, echoAnswerer{}, testLogger()),
		Export:   export.NewService(jobs, images, followUps, testLogger()),
		Auth:     common.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour, AllowLogin: true},
		MaxBytes: 1024,
		Ping:     func(ctx context.Context) error { return repository.HealthCheck(ctx, db, time.Second, testLogger()) },
		Logger:   testLogger(),
	})
	return &testEnv{router: api.Router(), jobs: jobs, queue: q}
}

func token(t *testing.T, owner string) string {
	t.Helper()
	tok, _, err := MintToken(testSecret, owner, time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, owner string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, owner))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, owner, filename, content, hand string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("image", filename)
	_, _ = part.Write([]byte(content))
	if hand != "" {
		_ = writer.WriteField("hand", hand)
	}
	_ = writer.Close()
	return e.do(t, http.MethodPost, "/api/analyses", owner, &buf, writer.FormDataContentType())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to parse JSON response %q: %v", w.Body.String(), err)
	}
	return v
}

func TestUploadAndStatus(t *testing.T) {
	env := setupTestRouter(t)

	w := env.upload(t, "alice", "palm.jpg", "jpeg-bytes", "left")
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[map[string]any](t, w)
	jobID, _ := res["job_id"].(string)
	if len(jobID) != 36 {
		t.Fatalf("Job ID should be UUID format, got: %v", res["job_id"])
	}
	if res["deduplicated"] != false {
		t.Errorf("first upload should not be deduplicated")
	}
	if len(env.queue.jobs) != 1 {
		t.Errorf("expected one enqueued job, got %d", len(env.queue.jobs))
	}

	w = env.do(t, http.MethodGet, "/api/analyses/"+jobID+"/status", "alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	view := decode[entity.StatusView](t, w)
	if view.Status != "queued" || view.Progress != nil || view.Result != nil || view.Error != nil {
		t.Errorf("unexpected status view %+v", view)
	}

	id := uuid.MustParse(jobID)
	_ = env.jobs.MarkProcessing(context.Background(), id, "m")
	_ = env.jobs.UpdateProgress(context.Background(), id, 40)
	view = decode[entity.StatusView](t, env.do(t, http.MethodGet, "/api/analyses/"+jobID+"/status", "alice", nil, ""))
	if view.Status != "processing" || view.Progress == nil || *view.Progress != 40 {
		t.Errorf("unexpected processing view %+v", view)
	}

	_ = env.jobs.Complete(context.Background(), id, []byte(`{"summary":"bright"}`))
	view = decode[entity.StatusView](t, env.do(t, http.MethodGet, "/api/analyses/"+jobID+"/status", "alice", nil, ""))
	if view.Status != "completed" || string(view.Result) != `{"summary":"bright"}` {
		t.Errorf("unexpected completed view %+v", view)
	}

	// another owner cannot see it
	if w := env.do(t, http.MethodGet, "/api/analyses/"+jobID+"/status", "bob", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for other owner, got %d", w.Code)
	}

	// same bytes again reuse the completed job
	w = env.upload(t, "alice", "again.jpg", "jpeg-bytes", "")
	res = decode[map[string]any](t, w)
	if res["job_id"] != jobID || res["deduplicated"] != true {
		t.Errorf("expected dedup onto %s, got %v", jobID, res)
	}
}

func TestUploadRejections(t *testing.T) {
	env := setupTestRouter(t)
	tests := []struct {
		name     string
		filename string
		content  string
		hand     string
		expected int
	}{
		{"bad extension", "palm.gif", "x", "", http.StatusBadRequest},
		{"empty file", "palm.png", "", "", http.StatusBadRequest},
		{"bad hand", "palm.png", "x", "both", http.StatusBadRequest},
		{"too large", "palm.png", strings.Repeat("x", 4096), "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.upload(t, "alice", tt.filename, tt.content, tt.hand)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
			if decode[map[string]string](t, w)["error"] == "" {
				t.Error("Response should contain error")
			}
		})
	}

	w := env.do(t, http.MethodPost, "/api/analyses", "alice", strings.NewReader("{}"), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file: expected 400, got %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupTestRouter(t)

	if w := env.do(t, http.MethodGet, "/api/dashboard", "", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	bad, _, _ := MintToken("other-secret", "alice", time.Hour)
	req.Header.Set("Authorization", "Bearer "+bad)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with foreign token, got %d", w.Code)
	}

	expired, _, _ := MintToken(testSecret, "alice", -time.Minute)
	if _, err := ParseToken(testSecret, expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token should be invalid, got %v", err)
	}

	if w := env.do(t, http.MethodGet, "/api/health", "", nil, ""); w.Code != http.StatusOK {
		t.Errorf("health should be public, got %d", w.Code)
	}
}

func TestLogin(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/login", "", strings.NewReader(`{"user":"carol"}`), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	tok := decode[map[string]any](t, w)["token"].(string)
	owner, err := ParseToken(testSecret, tok)
	if err != nil || owner != "carol" {
		t.Errorf("ParseToken = %q, %v", owner, err)
	}

	if w := env.do(t, http.MethodPost, "/api/login", "", strings.NewReader(`{"user":""}`), "application/json"); w.Code != http.StatusBadRequest {
		t.Errorf("blank user: expected 400, got %d", w.Code)
	}
}

func TestQuestionsFlow(t *testing.T) {
	env := setupTestRouter(t)
	jobID := decode[map[string]any](t, env.upload(t, "alice", "palm.png", "png", ""))["job_id"].(string)
	path := "/api/analyses/" + jobID + "/questions"

	w := env.do(t, http.MethodPost, path, "alice", strings.NewReader(`{"question":"early?"}`), "application/json")
	if w.Code != http.StatusConflict {
		t.Errorf("question before completion: expected 409, got %d", w.Code)
	}

	_ = env.jobs.Complete(context.Background(), uuid.MustParse(jobID), []byte(`{"summary":"s"}`))
	for i := 0; i < 3; i++ {
		w = env.do(t, http.MethodPost, path, "alice", strings.NewReader(`{"question":"love?"}`), "application/json")
		if w.Code != http.StatusCreated {
			t.Fatalf("question %d: expected 201, got %d: %s", i, w.Code, w.Body.String())
		}
	}
	if decode[entity.FollowUp](t, w).Answer != "re: love?" {
		t.Errorf("unexpected answer %s", w.Body.String())
	}
	w = env.do(t, http.MethodPost, path, "alice", strings.NewReader(`{"question":"more?"}`), "application/json")
	if w.Code != http.StatusConflict {
		t.Errorf("fourth question: expected 409, got %d", w.Code)
	}

	list := decode[map[string][]entity.FollowUp](t, env.do(t, http.MethodGet, path, "alice", nil, ""))
	if len(list["questions"]) != 3 {
		t.Errorf("expected 3 questions, got %d", len(list["questions"]))
	}

	detail := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/analyses/"+jobID, "alice", nil, ""))
	if detail["questions_remaining"] != float64(0) || detail["status"] != "completed" {
		t.Errorf("unexpected detail %v", detail)
	}
}

func TestListDashboardExport(t *testing.T) {
	env := setupTestRouter(t)
	env.upload(t, "alice", "a.png", "one", "")
	env.upload(t, "alice", "b.png", "two", "")

	list := decode[map[string][]entity.AnalysisJob](t, env.do(t, http.MethodGet, "/api/analyses?limit=1", "alice", nil, ""))
	if len(list["analyses"]) != 1 {
		t.Errorf("limit=1 returned %d", len(list["analyses"]))
	}
	if w := env.do(t, http.MethodGet, "/api/analyses?limit=abc", "alice", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", w.Code)
	}

	stats := decode[entity.DashboardStats](t, env.do(t, http.MethodGet, "/api/dashboard", "alice", nil, ""))
	if stats.Total != 2 || stats.Queued != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	w := env.do(t, http.MethodGet, "/api/export.xlsx", "alice", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("export body should be a zip container")
	}
	if w := env.do(t, http.MethodGet, "/api/export.xlsx?from=yesterday", "alice", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad date: expected 400, got %d", w.Code)
	}
}
