package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/common"
)

// UploadResult is the server's answer to an accepted upload.
type UploadResult struct {
	JobID        string `json:"job_id"`
	ImageID      string `json:"image_id"`
	Status       string `json:"status"`
	Deduplicated bool   `json:"deduplicated"`
}

// UploadImage uploads the image at path. Files that are not an allowed image
// type are rejected before any request is made.
func (c *Client) UploadImage(ctx context.Context, path string, hand constants.Hand) (UploadResult, error) {
	if err := checkExt(path); err != nil {
		return UploadResult{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return UploadResult{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return c.UploadReader(ctx, filepath.Base(path), f, hand)
}

// UploadReader streams r as a multipart upload named filename.
func (c *Client) UploadReader(ctx context.Context, filename string, r io.Reader, hand constants.Hand) (UploadResult, error) {
	if err := checkExt(filename); err != nil {
		return UploadResult{}, err
	}
	if hand == "" {
		hand = constants.HandRight
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("image", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.WriteField("hand", string(hand))
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	raw, err := c.do(ctx, http.MethodPost, "/api/analyses", pr, mw.FormDataContentType())
	// unblock the writer if the request ended early
	_ = pr.Close()
	if err != nil {
		return UploadResult{}, err
	}
	var out UploadResult
	if err := decode(raw, &out); err != nil {
		return UploadResult{}, err
	}
	if out.JobID == "" {
		return UploadResult{}, fmt.Errorf("decode response: missing job_id")
	}
	c.logger.Info("client.upload.accepted", "file", filename, "job_id", out.JobID, "deduplicated", out.Deduplicated)
	return out, nil
}

func checkExt(name string) error {
	ext := constants.NormalizeExt(filepath.Ext(name))
	if !constants.IsAllowedExt(ext) {
		return common.NewAppError("UNSUPPORTED_FILE",
			fmt.Sprintf("%s is not a supported image (jpg, jpeg, png, webp, heic)", filepath.Base(name)), common.ErrInvalidInput)
	}
	return nil
}
