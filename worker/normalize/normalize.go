package normalize

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	// TargetSize is the canvas edge every published image ends up with.
	TargetSize = 800
	// MinDimension is the validation floor for both axes.
	MinDimension = 800
	// Quality is the fixed canonical encode quality.
	Quality = 90
	// CanonicalExt is the extension of the canonical codec.
	CanonicalExt = ".jpg"
)

type Normalizer struct {
	logger *zap.Logger
	http   *http.Client
}

func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{
		logger: logger,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Normalize converts one source image, local path or URL, into the
// canonical published form: flattened onto white, resized so the longer
// edge is TargetSize, centered on a TargetSize square white canvas, encoded
// as JPEG at the fixed quality. The same input always yields the same
// output.
func (n *Normalizer) Normalize(ctx context.Context, input, outputPath string) error {
	path := input
	if isRemote(input) {
		downloaded, err := n.download(ctx, input)
		if err != nil {
			return fmt.Errorf("download %s: %w", input, err)
		}
		defer os.Remove(downloaded)
		path = downloaded
	}

	src, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", path, err)
	}

	flattened := flattenOntoWhite(src)

	width := flattened.Bounds().Dx()
	height := flattened.Bounds().Dy()

	var newWidth, newHeight int
	if width > height {
		newWidth = TargetSize
		newHeight = TargetSize * height / width
	} else {
		newHeight = TargetSize
		newWidth = TargetSize * width / height
	}

	resized := imaging.Resize(flattened, newWidth, newHeight, imaging.Lanczos)

	canvas := imaging.New(TargetSize, TargetSize, color.White)
	offset := image.Pt((TargetSize-newWidth)/2, (TargetSize-newHeight)/2)
	final := imaging.Paste(canvas, resized, offset)

	if err := imaging.Save(final, outputPath, imaging.JPEGQuality(Quality)); err != nil {
		return fmt.Errorf("failed to save %s: %w", outputPath, err)
	}

	n.logger.Debug("Normalized image",
		zap.String("input", input),
		zap.String("output", outputPath),
		zap.Int("width", newWidth),
		zap.Int("height", newHeight),
	)

	return nil
}

// ConvertToCanonical re-encodes a freshly acquired image into the canonical
// codec next to the original, removes the original, and returns the new
// path. Already-canonical files are returned unchanged.
func (n *Normalizer) ConvertToCanonical(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), CanonicalExt) {
		return path, nil
	}

	src, err := imaging.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image %s: %w", path, err)
	}

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + CanonicalExt
	if err := imaging.Save(flattenOntoWhite(src), outPath, imaging.JPEGQuality(Quality)); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", outPath, err)
	}

	if err := os.Remove(path); err != nil {
		n.logger.Warn("Failed to remove original after conversion",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	return outPath, nil
}

// Validate reads just enough of the file to check its dimensions against
// the minimum threshold. Undecodable files fail validation with zero
// dimensions; Validate never returns an error.
func (n *Normalizer) Validate(path string) (width, height int, ok bool) {
	file, err := os.Open(path)
	if err != nil {
		n.logger.Debug("Validation open failed", zap.String("path", path), zap.Error(err))
		return 0, 0, false
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		n.logger.Debug("Validation decode failed", zap.String("path", path), zap.Error(err))
		return 0, 0, false
	}

	return cfg.Width, cfg.Height, cfg.Width >= MinDimension && cfg.Height >= MinDimension
}

// flattenOntoWhite composites any transparency over an opaque white
// background; published images never carry alpha.
func flattenOntoWhite(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	white := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(white, src, image.Pt(0, 0), 1.0)
}

func isRemote(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

func (n *Normalizer) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "curation-download-*")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	return tmp.Name(), nil
}
