package nomadlabs

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
)

const (
	maxImageWidth = 1200
	jpegQuality   = 82
	maxUploadSize = 10 << 20 // 10MB
)

// processImage decodes an image from src, resizes it to maxImageWidth when
// wider, and encodes it as JPEG. Returns metadata and the encoded bytes.
func processImage(src io.Reader, originalName string, now time.Time) (Image, []byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return Image{}, nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w = maxImageWidth
		h = newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Image{}, nil, fmt.Errorf("encode jpeg: %w", err)
	}

	base := slugifyFilename(originalName)
	if base == "" {
		base = "cover"
	}

	return Image{
		Filename:     base + ".jpg",
		OriginalName: originalName,
		Width:        w,
		Height:       h,
		Size:         buf.Len(),
		UploadedAt:   now.UTC().Format(time.RFC3339),
	}, buf.Bytes(), nil
}

// slugifyFilename converts a filename (without extension) to a URL-safe slug.
func slugifyFilename(name string) string {
	name = filepath.Base(name)
	return Slugify(strings.TrimSuffix(name, filepath.Ext(name)))
}

// ensureUniqueFilename appends a counter if filename already exists in the
// upload directory or the database.
func (a *App) ensureUniqueFilename(img *Image) error {
	base := strings.TrimSuffix(img.Filename, ".jpg")
	candidate := img.Filename
	for counter := 2; ; counter++ {
		_, statErr := os.Stat(filepath.Join(a.Config.UploadDir, candidate))
		exists, err := a.Store.ImageExists(candidate)
		if err != nil {
			return err
		}
		if statErr != nil && !exists {
			break
		}
		candidate = fmt.Sprintf("%s-%d.jpg", base, counter)
	}
	img.Filename = candidate
	return nil
}

func (a *App) handleImageUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return fmt.Errorf("%w: no image file provided", ErrInvalidInput)
	}
	if file.Size > maxUploadSize {
		return fmt.Errorf("%w: file too large (max 10MB)", ErrInvalidInput)
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	img, data, err := processImage(io.LimitReader(src, maxUploadSize), file.Filename, time.Now())
	if err != nil {
		return fmt.Errorf("%w: invalid image: %v", ErrInvalidInput, err)
	}

	if err := os.MkdirAll(a.Config.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	if err := a.ensureUniqueFilename(&img); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(a.Config.UploadDir, img.Filename), data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := a.Store.SaveImage(img); err != nil {
		return err
	}
	img.URL = imageURL(img.Filename)
	return c.JSON(http.StatusCreated, img)
}

func (a *App) handleImageDelete(c echo.Context) error {
	filename := filepath.Base(c.Param("filename"))
	if filename == "" || filename == "." || filename == "/" {
		return fmt.Errorf("%w: filename required", ErrInvalidInput)
	}
	if err := a.Store.DeleteImage(filename); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(a.Config.UploadDir, filename)); err != nil && !os.IsNotExist(err) {
		c.Logger().Warnf("remove image %s: %v", filename, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleImageList(c echo.Context) error {
	images, err := a.Store.ListImages()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, images)
}
