package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/palmistry/internal/entity"
)

// FetchStatus reads the current status of one job. It satisfies the poller's
// Fetcher interface.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (entity.StatusView, error) {
	var v entity.StatusView
	path, err := jobPath(jobID, "/status")
	if err != nil {
		return v, err
	}
	if err := c.getJSON(ctx, path, &v); err != nil {
		return entity.StatusView{}, err
	}
	if v.Status == "" {
		return entity.StatusView{}, fmt.Errorf("decode response: missing status")
	}
	return v, nil
}

// Detail mirrors the analysis detail endpoint.
type Detail struct {
	entity.AnalysisJob
	Filename           string `json:"filename"`
	Hand               string `json:"hand"`
	QuestionsAsked     int    `json:"questions_asked"`
	QuestionsRemaining int    `json:"questions_remaining"`
}

func (c *Client) GetAnalysis(ctx context.Context, jobID string) (*Detail, error) {
	path, err := jobPath(jobID, "")
	if err != nil {
		return nil, err
	}
	var d Detail
	if err := c.getJSON(ctx, path, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListAnalyses returns the caller's analyses, newest first. limit <= 0 uses
// the server default.
func (c *Client) ListAnalyses(ctx context.Context, limit int) ([]entity.AnalysisJob, error) {
	path := "/api/analyses"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out struct {
		Analyses []entity.AnalysisJob `json:"analyses"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Analyses, nil
}

func (c *Client) Dashboard(ctx context.Context) (entity.DashboardStats, error) {
	var s entity.DashboardStats
	err := c.getJSON(ctx, "/api/dashboard", &s)
	return s, err
}

func (c *Client) AskQuestion(ctx context.Context, jobID, question string) (*entity.FollowUp, error) {
	path, err := jobPath(jobID, "/questions")
	if err != nil {
		return nil, err
	}
	var f entity.FollowUp
	if err := c.postJSON(ctx, path, map[string]string{"question": question}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) ListQuestions(ctx context.Context, jobID string) ([]entity.FollowUp, error) {
	path, err := jobPath(jobID, "/questions")
	if err != nil {
		return nil, err
	}
	var out struct {
		Questions []entity.FollowUp `json:"questions"`
	}
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

// ExportXLSX downloads the workbook. from and to are optional YYYY-MM-DD.
func (c *Client) ExportXLSX(ctx context.Context, from, to string) ([]byte, error) {
	q := url.Values{}
	if s := strings.TrimSpace(from); s != "" {
		q.Set("from", s)
	}
	if s := strings.TrimSpace(to); s != "" {
		q.Set("to", s)
	}
	path := "/api/export.xlsx"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, "")
}

// Login asks the server for a development token.
func (c *Client) Login(ctx context.Context, user string) (string, time.Time, error) {
	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.postJSON(ctx, "/api/login", map[string]string{"user": user}, &out); err != nil {
		return "", time.Time{}, err
	}
	return out.Token, out.ExpiresAt, nil
}
