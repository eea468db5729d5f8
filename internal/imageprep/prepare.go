// Package imageprep turns a stored palm image into bytes a vision model accepts.
package imageprep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/entity"
)

var ErrUnsupportedConverter = errors.New("HEIC not supported: set HEIC_CONVERTER to one of: heif-convert | magick | sips")

// Image is a model-ready image.
type Image struct {
	Data     []byte
	MimeType string
	Path     string
}

type Preparer struct {
	Runner    Runner
	Converter string
	CacheDir  string
	Logger    *slog.Logger
}

func NewPreparer(converter, cacheDir string, logger *slog.Logger) *Preparer {
	return &Preparer{Runner: ExecRunner{}, Converter: converter, CacheDir: cacheDir, Logger: logger}
}

// Load reads the image, converting HEIC to PNG first. Converted files are
// cached as CacheDir/<hash>.png.
func (p *Preparer) Load(ctx context.Context, img *entity.PalmImage) (Image, error) {
	path := img.StoragePath
	ext := constants.NormalizeExt(img.FileExt)
	if ext == "heic" {
		out, err := p.convertHEIC(ctx, path, fmt.Sprintf("%x", img.ContentHash))
		if err != nil {
			return Image{}, err
		}
		path, ext = out, "png"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		p.Logger.Error("imageprep.read_failed", "image_id", img.ID, "path", path, "error", err)
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	return Image{Data: data, MimeType: constants.MimeTypeForExt(ext), Path: path}, nil
}

func (p *Preparer) convertHEIC(ctx context.Context, in, hashHex string) (string, error) {
	cached := ""
	if p.CacheDir != "" && hashHex != "" {
		cached = filepath.Join(p.CacheDir, hashHex+".png")
		if st, err := os.Stat(cached); err == nil && !st.IsDir() {
			p.Logger.Debug("imageprep.heic_cache_hit", "cache", cached)
			return cached, nil
		}
		if err := os.MkdirAll(p.CacheDir, 0o755); err != nil {
			return "", err
		}
	}

	tmpDir, err := os.MkdirTemp("", "palm-heic-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)
	out := filepath.Join(tmpDir, "palm.png")

	var errb []byte
	switch p.Converter {
	case "heif-convert":
		_, errb, err = p.Runner.Run(ctx, "heif-convert", p.Logger, in, out)
	case "magick":
		_, errb, err = p.Runner.Run(ctx, "magick", p.Logger, in, out)
	case "sips":
		_, errb, err = p.Runner.Run(ctx, "sips", p.Logger, "-s", "format", "png", in, "--out", out)
	default:
		return "", ErrUnsupportedConverter
	}
	if err != nil {
		return "", fmt.Errorf("%s failed: %w: %s", p.Converter, err, truncate(string(errb), 512))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("HEIC conversion produced no output: %w", err)
	}
	if cached == "" {
		// no cache: keep a copy next to the original
		cached = in + ".png"
	}
	if err := os.WriteFile(cached, data, 0o644); err != nil {
		return "", err
	}
	p.Logger.Debug("imageprep.heic_converted", "in", in, "out", cached)
	return cached, nil
}
