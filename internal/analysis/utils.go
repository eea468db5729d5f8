package analysis

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// DataURL encodes an image as a data URL for vision requests. When mimeType
// is empty it is sniffed from the bytes.
func DataURL(image []byte, mimeType string) string {
	mt := strings.TrimSpace(mimeType)
	if mt == "" || mt == "application/octet-stream" {
		mt = http.DetectContentType(image)
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(image)
}

// Truncate shortens s to at most n runes, marking the cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
