package normalize

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func createJPEG(t *testing.T, width, height int, c color.Color, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}

func createTransparentPNG(t *testing.T, width, height int, path string) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	// Left half opaque red, right half fully transparent.
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.NRGBA{255, 0, 0, 255})
			} else {
				img.Set(x, y, color.NRGBA{0, 0, 0, 0})
			}
		}
	}

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}

func decodeJPEG(t *testing.T, path string) image.Image {
	t.Helper()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer file.Close()

	img, err := jpeg.Decode(file)
	if err != nil {
		t.Fatalf("Failed to decode output: %v", err)
	}
	return img
}

func isNearWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 > 245 && g>>8 > 245 && b>>8 > 245
}

func TestNormalizer_Normalize_LandscapeLetterboxed(t *testing.T) {
	n := NewNormalizer(zaptest.NewLogger(t))

	tmpDir := t.TempDir()
	inputPath := filepath.Join(tmpDir, "input.jpg")
	outputPath := filepath.Join(tmpDir, "output.jpg")

	createJPEG(t, 2000, 500, color.RGBA{0, 0, 200, 255}, inputPath)

	if err := n.Normalize(context.Background(), inputPath, outputPath); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	img := decodeJPEG(t, outputPath)
	bounds := img.Bounds()
	if bounds.Dx() != TargetSize || bounds.Dy() != TargetSize {
		t.Fatalf("Expected %dx%d canvas, got %dx%d", TargetSize, TargetSize, bounds.Dx(), bounds.Dy())
	}

	// 2000x500 resizes to 800x200, pasted at y=300: white bands above and
	// below, content across the middle.
	if !isNearWhite(img.At(400, 100)) {
		t.Error("Expected white band above the content")
	}
	if !isNearWhite(img.At(400, 700)) {
		t.Error("Expected white band below the content")
	}
	if isNearWhite(img.At(400, 400)) {
		t.Error("Expected content at the canvas center")
	}
}

func TestNormalizer_Normalize_PortraitPillarboxed(t *testing.T) {
	n := NewNormalizer(zaptest.NewLogger(t))

	tmpDir := t.TempDir()
	inputPath := filepath.Join(tmpDir, "input.jpg")
	outputPath := filepath.Join(tmpDir, "output.jpg")

	createJPEG(t, 500, 2000, color.RGBA{0, 150, 0, 255}, inputPath)

	if err := n.Normalize(context.Background(), inputPath, outputPath); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	img := decodeJPEG(t, outputPath)

	// 500x2000 resizes to 200x800, pasted at x=300.
	if !isNearWhite(img.At(100, 400)) {
		t.Error("Expected white band left of the content")
	}
	if !isNearWhite(img.At(700, 400)) {
		t.Error("Expected white band right of the content")
	}
	if isNearWhite(img.At(400, 400)) {
		t.Error("Expected content at the canvas center")
	}
}

func TestNormalizer_Normalize_Deterministic(t *testing.T) {
	n := NewNormalizer(zaptest.NewLogger(t))

	tmpDir := t.TempDir()
	inputPath := filepath.Join(tmpDir, "input.jpg")
	createJPEG(t, 1200, 900, color.RGBA{120, 80, 40, 255}, inputPath)

	out1 := filepath.Join(tmpDir, "out1.jpg")
	out2 := filepath.Join(tmpDir, "out2.jpg")

	if err := n.Normalize(context.Background(), inputPath, out1); err != nil {
		t.Fatalf("First normalize failed: %v", err)
	}
	if err := n.Normalize(context.Background(), inputPath, out2); err != nil {
		t.Fatalf("Second normalize failed: %v", err)
	}

	b1, err := os.ReadFile(out1)
	if err != nil {
		t.Fatalf("Failed to read first output: %v", err)
	}
	b2, err := os.ReadFile(out2)
	if err != nil {
		t.Fatalf("Failed to read second output: %v", err)
	}

	if !bytes.Equal(b1, b2) {
		t.Error("Expected identical bytes for identical input")
	}
}

func TestNormalizer_Normalize_FlattensTransparency(t *testing.T) {
	n := NewNormalizer(zaptest.NewLogger(t))

	tmpDir := t.TempDir()
	inputPath := filepath.Join(tmpDir, "input.png")
	outputPath := filepath.Join(tmpDir, "output.jpg")

	createTransparentPNG(t, 1000, 1000, inputPath)

	if err := n.Normalize(context.Background(), inputPath, outputPath); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	img := decodeJPEG(t, outputPath)

	// The transparent right half must come out white, not black.
	if !isNearWhite(img.At(700, 400)) {
		t.Error("Expected transparent region flattened to white")
	}
	if isNearWhite(img.At(100, 400)) {
		t.Error("Expected opaque region to keep its color")
	}
}

func TestNormalizer_Normalize_MissingInput(t *testing.T) {
	n := NewNormalizer(zaptest.NewLogger(t))

	tmpDir := t.TempDir()
	err := n.Normalize(context.Background(), filepath.Join(tmpDir, "missing.jpg"), filepath.Join(tmpDir, "out.jpg"))
	if err == nil {
		t.Fatal("Expected error for missing input, got nil")
	}
}

func TestNormalizer_ConvertToCanonical_PNG(t *testing.T) {
	n := NewNormalizer(zaptest.NewLogger(t))

	tmpDir := t.TempDir()
	inputPath := filepath.Join(tmpDir, "input.png")
	createTransparentPNG(t, 300, 300, inputPath)

	outPath, err := n.ConvertToCanonical(inputPath)
	if err != nil {
		t.Fatalf("ConvertToCanonical failed: %v", err)
	}

	if filepath.Ext(outPath) != CanonicalExt {
		t.Errorf("Expected %s extension, got %s", CanonicalExt, filepath.Ext(outPath))
	}
	if _, err := os.Stat(inputPath); !os.IsNotExist(err) {
		t.Error("Expected original file removed after conversion")
	}
	decodeJPEG(t, outPath)
}

func TestNormalizer_ConvertToCanonical_AlreadyCanonical(t *testing.T) {
	n := NewNormalizer(zaptest.NewLogger(t))

	tmpDir := t.TempDir()
	inputPath := filepath.Join(tmpDir, "input.jpg")
	createJPEG(t, 100, 100, color.White, inputPath)

	outPath, err := n.ConvertToCanonical(inputPath)
	if err != nil {
		t.Fatalf("ConvertToCanonical failed: %v", err)
	}
	if outPath != inputPath {
		t.Errorf("Expected path unchanged, got %s", outPath)
	}
}

func TestNormalizer_Validate(t *testing.T) {
	n := NewNormalizer(zaptest.NewLogger(t))
	tmpDir := t.TempDir()

	bigPath := filepath.Join(tmpDir, "big.jpg")
	createJPEG(t, 800, 800, color.White, bigPath)
	if w, h, ok := n.Validate(bigPath); !ok || w != 800 || h != 800 {
		t.Errorf("Expected 800x800 valid, got %dx%d ok=%v", w, h, ok)
	}

	smallPath := filepath.Join(tmpDir, "small.jpg")
	createJPEG(t, 799, 800, color.White, smallPath)
	if _, _, ok := n.Validate(smallPath); ok {
		t.Error("Expected 799x800 to fail validation")
	}
}

func TestNormalizer_Validate_CorruptFile(t *testing.T) {
	n := NewNormalizer(zaptest.NewLogger(t))

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "corrupt.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	w, h, ok := n.Validate(path)
	if ok || w != 0 || h != 0 {
		t.Errorf("Expected corrupt file to fail validation, got %dx%d ok=%v", w, h, ok)
	}
}
