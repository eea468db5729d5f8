package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joseph-ayodele/palmistry/internal/analysis"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"content": content}}},
	})
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, lenient bool) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		Model:           "test-vision",
		LenientOptional: lenient,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const reading = `{"hand":"left","life_line":"long","heart_line":"curved","head_line":"straight","personality":"calm","summary":"ok","confidence":0.7}`

func TestAnalyzeSendsImageAndParsesReading(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, completion(reading))
	}, false)

	out, raw, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{
		Image:    []byte("jpeg"),
		MimeType: "image/jpeg",
		Hand:     "left",
	})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if out.Hand != "left" || out.Confidence != 0.7 {
		t.Errorf("unexpected reading %+v", out)
	}
	if string(raw) != reading {
		t.Errorf("raw content mismatch: %s", raw)
	}

	if got["model"] != "test-vision" {
		t.Errorf("model not sent: %v", got["model"])
	}
	body, _ := json.Marshal(got)
	if !strings.Contains(string(body), "data:image/jpeg;base64,") {
		t.Error("image data url missing from request")
	}
}

func TestAnalyzeLenientSanitize(t *testing.T) {
	messy := strings.Replace(reading, `"confidence":0.7`, `"confidence":"70%","fate_line":"","extra":1`, 1)
	handler := func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, completion(messy)) }

	strict := newTestClient(t, handler, false)
	if _, _, err := strict.Analyze(context.Background(), analysis.AnalyzeRequest{Image: []byte("x")}); err == nil {
		t.Error("strict client should reject messy output")
	}

	lenient := newTestClient(t, handler, true)
	out, _, err := lenient.Analyze(context.Background(), analysis.AnalyzeRequest{Image: []byte("x")})
	if err != nil {
		t.Fatalf("lenient Analyze failed: %v", err)
	}
	if out.Confidence < 0.69 || out.Confidence > 0.71 {
		t.Errorf("confidence = %v, want 0.7", out.Confidence)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"rate limited"}`)
	}, true)

	_, _, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{Image: []byte("x")})
	var se *analysis.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Errorf("expected StatusError 429, got %v", err)
	}

	if _, _, err := c.Analyze(context.Background(), analysis.AnalyzeRequest{}); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("expected ErrEmptyImage, got %v", err)
	}

	empty := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, `{"choices":[]}`) }, true)
	if _, _, err := empty.Analyze(context.Background(), analysis.AnalyzeRequest{Image: []byte("x")}); !errors.Is(err, ErrNoChoices) {
		t.Errorf("expected ErrNoChoices, got %v", err)
	}

	small := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("oversized image must not reach the API")
	}, true)
	small.cfg.MaxImageBytes = 4
	if _, _, err := small.Analyze(context.Background(), analysis.AnalyzeRequest{Image: []byte("12345")}); !errors.Is(err, ErrImageTooBig) {
		t.Errorf("expected ErrImageTooBig, got %v", err)
	}

	noKey := &Client{cfg: Config{BaseURL: "http://127.0.0.1:1"}, http: http.DefaultClient, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	if _, err := noKey.Answer(context.Background(), analysis.AnswerRequest{Question: "?"}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestAnswerIncludesHistory(t *testing.T) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, completion("  Your head line favors patience.  "))
	}, true)

	answer, err := c.Answer(context.Background(), analysis.AnswerRequest{
		Reading:  json.RawMessage(reading),
		Hand:     "left",
		Question: "What about my career?",
		History:  []analysis.FollowUpTurn{{Question: "Love?", Answer: "Warm heart line."}},
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if answer != "Your head line favors patience." {
		t.Errorf("unexpected answer %q", answer)
	}
	if len(req.Messages) != 4 || req.Messages[1].Content != "Love?" || req.Messages[3].Content != "What about my career?" {
		t.Errorf("unexpected messages %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, `"life_line":"long"`) {
		t.Error("system prompt should carry the stored reading")
	}
}
