package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/internal/analysis"
)

var (
	ErrNoAPIKey    = fmt.Errorf("openai api key missing: %w", analysis.ErrNotConfigured)
	ErrNoChoices   = errors.New("no choices in openai response")
	ErrEmptyImage  = errors.New("image is empty")
	ErrEmptyAnswer = errors.New("empty answer from model")
	ErrImageTooBig = errors.New("image too large for the model")
)

type chatCompletion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze implements analysis.Analyzer with a vision chat/completions call.
func (c *Client) Analyze(ctx context.Context, req analysis.AnalyzeRequest) (analysis.PalmReading, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("analysis.analyze.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"image_bytes", len(req.Image),
		"mime", req.MimeType,
		"hand", req.Hand,
	)
	if len(req.Image) == 0 {
		return analysis.PalmReading{}, nil, ErrEmptyImage
	}
	if int64(len(req.Image)) > c.cfg.MaxImageBytes {
		c.logger.Warn("analysis.analyze.image_too_large", "req_id", rid, "image_bytes", len(req.Image), "max", c.cfg.MaxImageBytes)
		return analysis.PalmReading{}, nil, fmt.Errorf("%w: %d bytes", ErrImageTooBig, len(req.Image))
	}

	schema := analysis.BuildReadingJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": analysis.BuildSystemPrompt(req.Hand)},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": analysis.BuildUserPrompt(req) + "\n\nReturn ONLY JSON that matches the provided schema."},
				{"type": "image_url", "image_url": map[string]any{"url": analysis.DataURL(req.Image, req.MimeType), "detail": "high"}},
			}},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	content, err := c.complete(ctx, rid, body)
	if err != nil {
		c.logger.Error("analysis.analyze.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return analysis.PalmReading{}, nil, err
	}
	rawContent := []byte(content)

	// Validate strictly first.
	if err := analysis.ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		if !c.cfg.LenientOptional {
			c.logger.Error("analysis.analyze.schema_validation_failed",
				"req_id", rid, "error", err, "content", analysis.Truncate(content, 2000),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return analysis.PalmReading{}, rawContent, fmt.Errorf("%w: schema validation failed: %w", analysis.ErrInvalidReading, err)
		}
		cleaned, dropped, sErr := analysis.SanitizeOptionalFields(rawContent)
		if sErr != nil {
			c.logger.Error("analysis.analyze.sanitize_failed", "req_id", rid, "error", sErr)
			return analysis.PalmReading{}, rawContent, fmt.Errorf("%w: sanitize failed: %w", analysis.ErrInvalidReading, sErr)
		}
		if vErr := analysis.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.logger.Error("analysis.analyze.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", analysis.Truncate(content, 2000),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return analysis.PalmReading{}, rawContent, fmt.Errorf("%w: schema validation failed: %w", analysis.ErrInvalidReading, vErr)
		}
		c.logger.Warn("analysis.analyze.lenient_sanitize_applied", "req_id", rid, "dropped", dropped)
		rawContent = cleaned
	}

	var out analysis.PalmReading
	if err := json.Unmarshal(rawContent, &out); err != nil {
		c.logger.Error("analysis.analyze.unmarshal_failed", "req_id", rid, "error", err)
		return analysis.PalmReading{}, rawContent, fmt.Errorf("%w: unmarshal reading: %w", analysis.ErrInvalidReading, err)
	}

	c.logger.Info("analysis.analyze.ok",
		"req_id", rid,
		"hand", out.Hand,
		"confidence", out.Confidence,
		"mounts", len(out.Mounts),
		"has_fate_line", out.FateLine != "",
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, rawContent, nil
}

// Answer implements analysis.Answerer.
func (c *Client) Answer(ctx context.Context, req analysis.AnswerRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("analysis.answer.start", "req_id", rid, "model", c.cfg.Model, "history", len(req.History))

	messages := []map[string]any{
		{"role": "system", "content": analysis.BuildAnswerSystemPrompt(req)},
	}
	for _, turn := range req.History {
		messages = append(messages,
			map[string]any{"role": "user", "content": turn.Question},
			map[string]any{"role": "assistant", "content": turn.Answer},
		)
	}
	messages = append(messages, map[string]any{"role": "user", "content": req.Question})

	content, err := c.complete(ctx, rid, map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
	})
	if err != nil {
		c.logger.Error("analysis.answer.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	if content == "" {
		return "", ErrEmptyAnswer
	}
	c.logger.Info("analysis.answer.ok", "req_id", rid, "chars", len(content), "elapsed_ms", time.Since(start).Milliseconds())
	return content, nil
}

// complete posts to chat/completions and returns the first choice's content.
func (c *Client) complete(ctx context.Context, rid string, body map[string]any) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNoAPIKey
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, _, err := analysis.SendJSON(ctx, c.http, endpoint, body,
		map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}, c.logger)
	if err != nil {
		return "", err
	}

	var cc chatCompletion
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("analysis.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("analysis.no_choices", "req_id", rid, "raw", analysis.Truncate(string(raw), 500))
		return "", ErrNoChoices
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
