package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/poller"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// compile-time check
var _ poller.Fetcher = (*Client)(nil)

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"no bearer token"}`))
			return
		}
		switch r.URL.Path {
		case "/api/analyses/job-1/status":
			_, _ = w.Write([]byte(`{"status":"processing","progress":40}`))
		case "/api/analyses/job-2/status":
			_, _ = w.Write([]byte(`{"status":"completed","result":{"summary":"s"}}`))
		case "/api/analyses/bad/status":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"analysis not found"}`))
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Token: "tok"}, testLogger())
	ctx := context.Background()

	v, err := c.FetchStatus(ctx, "job-1")
	if err != nil {
		t.Fatalf("FetchStatus failed: %v", err)
	}
	if v.Status != "processing" || v.Progress == nil || *v.Progress != 40 {
		t.Errorf("unexpected view %+v", v)
	}

	v, err = c.FetchStatus(ctx, "job-2")
	if err != nil || string(v.Result) != `{"summary":"s"}` {
		t.Errorf("unexpected completed view %+v, %v", v, err)
	}

	if _, err := c.FetchStatus(ctx, "bad"); err == nil || !strings.Contains(err.Error(), "decode") {
		t.Errorf("expected decode error, got %v", err)
	}

	_, err = c.FetchStatus(ctx, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound || apiErr.Message != "analysis not found" {
		t.Errorf("expected 404 APIError, got %v", err)
	}

	if _, err := c.WithToken("").FetchStatus(ctx, "job-1"); !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %v", err)
	}

	if _, err := c.FetchStatus(ctx, " "); !errors.Is(err, ErrEmptyJobID) {
		t.Errorf("expected ErrEmptyJobID, got %v", err)
	}
}

func TestUploadImage(t *testing.T) {
	var gotHand, gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/analyses" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fh, hdr, err := r.FormFile("image")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(fh)
		gotBody, gotName, gotHand = string(b), hdr.Filename, r.FormValue("hand")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"job_id": "j1", "status": "queued", "deduplicated": false})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "Palm.JPG")
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(Config{BaseURL: srv.URL, Token: "tok"}, testLogger())

	res, err := c.UploadImage(context.Background(), path, "")
	if err != nil {
		t.Fatalf("UploadImage failed: %v", err)
	}
	if res.JobID != "j1" || gotBody != "jpeg" || gotName != "Palm.JPG" || gotHand != "right" {
		t.Errorf("res=%+v body=%q name=%q hand=%q", res, gotBody, gotName, gotHand)
	}

	if _, err := c.UploadReader(context.Background(), "x.png", strings.NewReader("png"), constants.HandLeft); err != nil || gotHand != "left" {
		t.Errorf("UploadReader: %v hand=%q", err, gotHand)
	}
}

func TestUploadRejectsUnsupportedBeforeRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, testLogger())
	_, err := c.UploadImage(context.Background(), "/nope/notes.txt", constants.HandRight)
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("no request should be made, got %d", calls.Load())
	}
}

func TestListAskExportLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/analyses" && r.URL.Query().Get("limit") == "2":
			_, _ = w.Write([]byte(`{"analyses":[{"id":"00000000-0000-0000-0000-000000000001","status":"queued"}]}`))
		case r.URL.Path == "/api/dashboard":
			_, _ = w.Write([]byte(`{"total":3,"completed":2,"failed":1}`))
		case r.URL.Path == "/api/analyses/j1/questions" && r.Method == http.MethodPost:
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"question": body["question"], "answer": "yes"})
		case r.URL.Path == "/api/analyses/j1/questions":
			_, _ = w.Write([]byte(`{"questions":[{"question":"q","answer":"a"}]}`))
		case r.URL.Path == "/api/export.xlsx":
			if r.URL.Query().Get("from") != "2024-01-01" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte("PKxlsx"))
		case r.URL.Path == "/api/login":
			_, _ = w.Write([]byte(`{"token":"abc","expires_at":"2030-01-01T00:00:00Z"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Token: "tok"}, testLogger())
	ctx := context.Background()

	list, err := c.ListAnalyses(ctx, 2)
	if err != nil || len(list) != 1 || list[0].Status != constants.JobStatusQueued {
		t.Errorf("ListAnalyses = %+v, %v", list, err)
	}
	stats, err := c.Dashboard(ctx)
	if err != nil || stats.Total != 3 || stats.Failed != 1 {
		t.Errorf("Dashboard = %+v, %v", stats, err)
	}
	f, err := c.AskQuestion(ctx, "j1", "luck?")
	if err != nil || f.Question != "luck?" || f.Answer != "yes" {
		t.Errorf("AskQuestion = %+v, %v", f, err)
	}
	qs, err := c.ListQuestions(ctx, "j1")
	if err != nil || len(qs) != 1 {
		t.Errorf("ListQuestions = %+v, %v", qs, err)
	}
	data, err := c.ExportXLSX(ctx, "2024-01-01", "")
	if err != nil || string(data) != "PKxlsx" {
		t.Errorf("ExportXLSX = %q, %v", data, err)
	}
	tok, exp, err := c.Login(ctx, "alice")
	if err != nil || tok != "abc" || exp.Year() != 2030 {
		t.Errorf("Login = %q %v %v", tok, exp, err)
	}
}
