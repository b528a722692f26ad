package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
)

// ImageCache keeps decoded images keyed by path.
//
// Template sets are decoded once and may be re-encoded with different
// settings, and the server re-reads the same frame for detection and overlay
// rendering, so both go through a cache. Paths are used verbatim: a relative
// and an absolute path to the same file are separate entries.
//
// ImageCache is safe for concurrent use. Two goroutines missing on the same
// path may both decode it; the last one stored wins, which is harmless since
// both decoded the same file.
//
// Entries stay until Evict or Clear.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewImageCache returns an empty cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]image.Image),
	}
}

// Load returns the cached image for path, decoding it on first use.
//
// PNG, JPEG, GIF, BMP and TIFF are supported. The concrete image type is
// whatever the decoder produced (*image.Gray, *image.NRGBA, *image.YCbCr,
// ...). Returns an error if the file cannot be opened or decoded; failures
// are not cached.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	img, ok := c.images[path]
	c.mu.RUnlock()
	if ok {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err = image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()
	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear drops every cached image.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Evict drops the image cached for path, if any.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// ImageInfo describes an image file.
type ImageInfo struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Format is derived from the extension: "png", "jpeg", "gif", "bmp",
	// "tiff" or "unknown".
	Format string `json:"format"`

	// ColorDepth is "8-bit" or "16-bit" per channel.
	ColorDepth string `json:"color_depth"`

	HasAlpha bool `json:"has_alpha"`

	// Grayscale is true for single-channel sources, which the matcher uses
	// without conversion.
	Grayscale bool `json:"grayscale"`

	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads path through the cache and describes it.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	info := &ImageInfo{
		Width:         img.Bounds().Dx(),
		Height:        img.Bounds().Dy(),
		Format:        formatFromPath(path),
		ColorDepth:    "8-bit",
		FileSizeBytes: stat.Size(),
	}
	switch img.(type) {
	case *image.RGBA, *image.NRGBA:
		info.HasAlpha = true
	case *image.RGBA64, *image.NRGBA64:
		info.HasAlpha = true
		info.ColorDepth = "16-bit"
	case *image.Gray:
		info.Grayscale = true
	case *image.Gray16:
		info.Grayscale = true
		info.ColorDepth = "16-bit"
	}
	return info, nil
}

// LoadGray loads an image through the cache and converts it to an 8-bit Gray
// view. *image.Gray sources are shared with the cache, not copied; callers
// must not modify the result.
func LoadGray(cache *ImageCache, path string) (Gray, error) {
	img, err := cache.Load(path)
	if err != nil {
		return Gray{}, err
	}
	g := FromImage(img)
	if err := g.Valid(); err != nil {
		return Gray{}, fmt.Errorf("failed to convert %s: %w", path, err)
	}
	return g, nil
}

// IsImageFile reports whether the path has an extension the loader can decode.
func IsImageFile(path string) bool {
	return formatFromPath(path) != "unknown"
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".gif":
		return "gif"
	case ".bmp":
		return "bmp"
	case ".tif", ".tiff":
		return "tiff"
	}
	return "unknown"
}
