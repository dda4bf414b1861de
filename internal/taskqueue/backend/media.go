package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decode reference images saved as PNG
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

const defaultMaxImageKB = 256

// jpegQualityLadder is tried in order until the encoded size fits the
// budget; if even the lowest quality doesn't fit, the image is downscaled
// and re-encoded once at quality 85.
var jpegQualityLadder = []int{85, 75, 65, 55, 45, 35}

// CompressImageIfNeeded reads a reference image from disk and returns it as
// base64, re-encoding to JPEG under maxKB when the original exceeds it.
// maxKB <= 0 uses the default 256KB budget used for image generation
// references (video references use a looser 768KB budget).
func CompressImageIfNeeded(path string, maxKB int) (string, error) {
	if maxKB <= 0 {
		maxKB = defaultMaxImageKB
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("backend: read reference image: %w", err)
	}
	if len(raw)/1024 <= maxKB {
		return base64.StdEncoding.EncodeToString(raw), nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		// Not a format we can re-encode; ship the original rather than fail
		// the task over a cosmetic size limit.
		return base64.StdEncoding.EncodeToString(raw), nil
	}

	for _, quality := range jpegQualityLadder {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			continue
		}
		if buf.Len()/1024 <= maxKB {
			return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
		}
	}

	downscaled := downscaleToFit(img, maxKB)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, downscaled, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("backend: encode downscaled image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// downscaleToFit shrinks img by roughly the square root of how far over
// budget its quality-85 encoding landed, matching the reference
// implementation's single-pass resize heuristic rather than iterating to
// convergence.
func downscaleToFit(img image.Image, maxKB int) image.Image {
	var probe bytes.Buffer
	if err := jpeg.Encode(&probe, img, &jpeg.Options{Quality: 85}); err != nil || probe.Len() == 0 {
		return img
	}

	scale := fitScale(probe.Len()/1024, maxKB)
	b := img.Bounds()
	newW := int(float64(b.Dx()) * scale)
	newH := int(float64(b.Dy()) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return nearestNeighborResize(img, newW, newH)
}

func fitScale(currentKB, maxKB int) float64 {
	if currentKB <= 0 {
		return 1
	}
	ratio := float64(maxKB) / float64(currentKB)
	if ratio <= 0 {
		return 1
	}
	return math.Sqrt(ratio)
}

func nearestNeighborResize(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	b := src.Bounds()
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*b.Dx()/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// EstimateAudioDurationMs estimates playback duration from a WAV header
// when present, falling back to a rough 16kHz/16-bit/mono assumption
// (bytes / 32 == milliseconds) for anything else.
func EstimateAudioDurationMs(audio []byte) int {
	if ms, ok := wavDurationMs(audio); ok {
		return ms
	}
	return len(audio) / 32
}

// wavDurationMs reads the "fmt " and "data" chunks of a canonical RIFF/WAVE
// file to compute an exact duration; ok is false for anything that isn't a
// well-formed WAV.
func wavDurationMs(b []byte) (int, bool) {
	if len(b) < 44 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return 0, false
	}

	var byteRate uint32
	var dataSize uint32
	offset := 12
	for offset+8 <= len(b) {
		chunkID := string(b[offset : offset+4])
		chunkSize := le32(b[offset+4 : offset+8])
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(b) {
				return 0, false
			}
			byteRate = le32(b[body+8 : body+12])
		case "data":
			dataSize = chunkSize
		}

		offset = body + int(chunkSize) + int(chunkSize)%2
	}

	if byteRate == 0 || dataSize == 0 {
		return 0, false
	}
	return int(uint64(dataSize) * 1000 / uint64(byteRate)), true
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// DownloadFile fetches url and writes it atomically to destPath (no
// extension resolution — callers choose the final name).
func DownloadFile(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("backend: create output dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("backend: build download request: %w", err)
	}

	client := newHTTPClient(defaultTimeout)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("backend: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend: download status %d", resp.StatusCode)
	}

	pending, err := renameio.NewPendingFile(destPath)
	if err != nil {
		return fmt.Errorf("backend: open pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, resp.Body); err != nil {
		return fmt.Errorf("backend: write download: %w", err)
	}
	return pending.CloseAtomicallyReplace()
}

// ExtensionFromURL returns the file extension implied by a result URL's
// path, or fallback when the URL has none or an unrecognized one.
func ExtensionFromURL(url string, allowed []string, fallback string) string {
	path := url
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, a := range allowed {
		if ext == a {
			return ext
		}
	}
	return fallback
}
