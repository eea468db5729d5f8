// palmread runs the analyzer on a local palm photo without the server, for
// prompt tuning.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/analysis"
	"github.com/joseph-ayodele/palmistry/internal/analysis/openai"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/core"
	"github.com/joseph-ayodele/palmistry/internal/entity"
	"github.com/joseph-ayodele/palmistry/internal/imageprep"
)

func main() {
	_ = godotenv.Load()
	cfg := common.LoadConfig()
	logger := common.NewLogger(os.Stderr, cfg.Log)
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: palmread <image> [left|right] [times]")
		os.Exit(2)
	}
	path := os.Args[1]
	hand := constants.HandRight
	if len(os.Args) >= 3 {
		h, ok := constants.CanonicalizeHand(os.Args[2])
		if !ok {
			logger.Error("invalid hand", "arg", os.Args[2])
			os.Exit(2)
		}
		hand = h
	}
	times := 1
	if len(os.Args) >= 4 {
		if n, err := strconv.Atoi(os.Args[3]); err == nil && n > 0 {
			times = n
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read image", "path", path, "error", err)
		os.Exit(1)
	}
	sum := sha256.Sum256(raw)
	img := &entity.PalmImage{
		Filename:    filepath.Base(path),
		FileExt:     strings.TrimPrefix(filepath.Ext(path), "."),
		ContentHash: sum[:],
		SizeBytes:   int64(len(raw)),
		StoragePath: path,
		Hand:        string(hand),
	}

	preparer := imageprep.NewPreparer(cfg.Storage.HeicConverter, cfg.Storage.CacheDir, logger)
	client := openai.NewClient(openai.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		Timeout:         cfg.LLM.Timeout,
		LenientOptional: true,
	}, logger)

	ctx := context.Background()
	prepared, err := preparer.Load(ctx, img)
	if err != nil {
		logger.Error("prepare image", "error", err)
		os.Exit(1)
	}

	failures := 0
	for i := 1; i <= times; i++ {
		runCtx, cancel := context.WithTimeout(ctx, cfg.Queue.JobTimeout)
		start := time.Now()
		_, out, err := client.Analyze(runCtx, analysis.AnalyzeRequest{
			Image:        prepared.Data,
			MimeType:     prepared.MimeType,
			Hand:         img.Hand,
			FilenameHint: img.Filename,
		})
		cancel()
		if err != nil {
			failures++
			logger.Error("palmread.run.error", "iter", i, "user_message", core.UserMessage(err), "error", err)
			continue
		}
		logger.Info("palmread.run.ok", "iter", i, "elapsed_ms", time.Since(start).Milliseconds())
		var pretty any
		if json.Unmarshal(out, &pretty) == nil {
			b, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(b))
		}
	}
	if failures == times {
		os.Exit(1)
	}
}
