package imageprep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-ayodele/palmistry/internal/entity"
)

type fakeRunner struct {
	calls int
	fail  bool
}

// Run writes a fake PNG to the last argument, which is the output path for every converter.
func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.calls++
	if f.fail {
		return nil, []byte("bad file"), errors.New("exit status 1")
	}
	return nil, nil, os.WriteFile(args[len(args)-1], []byte("png:"+name), 0o644)
}

func newPreparer(t *testing.T, r Runner, converter string) *Preparer {
	return &Preparer{
		Runner:    r,
		Converter: converter,
		CacheDir:  filepath.Join(t.TempDir(), "cache"),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeImage(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadPassesThroughJPEG(t *testing.T) {
	r := &fakeRunner{}
	p := newPreparer(t, r, "heif-convert")
	path := writeImage(t, "palm.jpg", "jpeg-bytes")

	img, err := p.Load(context.Background(), &entity.PalmImage{StoragePath: path, FileExt: "jpg"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(img.Data) != "jpeg-bytes" || img.MimeType != "image/jpeg" {
		t.Errorf("unexpected image %q %q", img.Data, img.MimeType)
	}
	if r.calls != 0 {
		t.Errorf("converter should not run for jpeg, ran %d times", r.calls)
	}
}

func TestLoadConvertsAndCachesHEIC(t *testing.T) {
	r := &fakeRunner{}
	p := newPreparer(t, r, "sips")
	path := writeImage(t, "palm.heic", "heic-bytes")
	src := &entity.PalmImage{StoragePath: path, FileExt: "heic", ContentHash: []byte{0xab, 0xcd}}

	for i := 0; i < 2; i++ {
		img, err := p.Load(context.Background(), src)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if string(img.Data) != "png:sips" || img.MimeType != "image/png" {
			t.Errorf("unexpected image %q %q", img.Data, img.MimeType)
		}
		if img.Path != filepath.Join(p.CacheDir, "abcd.png") {
			t.Errorf("unexpected cache path %q", img.Path)
		}
	}
	if r.calls != 1 {
		t.Errorf("expected one conversion, got %d", r.calls)
	}
}

func TestLoadHEICErrors(t *testing.T) {
	path := writeImage(t, "palm.heic", "heic-bytes")
	src := &entity.PalmImage{StoragePath: path, FileExt: "heic", ContentHash: []byte{1}}

	if _, err := newPreparer(t, &fakeRunner{}, "paint").Load(context.Background(), src); !errors.Is(err, ErrUnsupportedConverter) {
		t.Errorf("expected ErrUnsupportedConverter, got %v", err)
	}
	if _, err := newPreparer(t, &fakeRunner{fail: true}, "magick").Load(context.Background(), src); err == nil {
		t.Error("expected conversion failure")
	}
}
