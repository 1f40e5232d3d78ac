package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"imagecurator/worker/normalize"
	"imagecurator/worker/repository"
)

var (
	ErrNoSelection = errors.New("nothing selected for publication")
	// ErrNoImages means nothing reached durable storage; publication cannot
	// proceed with an empty image set.
	ErrNoImages          = errors.New("no images uploaded")
	ErrUploadFailed      = errors.New("upload to blob storage failed")
	ErrCatalogSyncFailed = errors.New("catalog image sync failed")
)

// Uploader stores a named byte stream durably and returns a retrievable URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, key, contentType string) (string, error)
}

// CatalogWriter replaces a catalog product's image set.
type CatalogWriter interface {
	ReplaceProductImages(ctx context.Context, productID, thumbnailURL string, imageURLs []string) error
}

// Coordinator turns a human-approved selection into the published catalog
// state. Publish leaves the working directory intact on any failure so a
// retry can reuse the already-normalized files; only Teardown removes it.
type Coordinator struct {
	store   Uploader
	catalog CatalogWriter
	norm    *normalize.Normalizer
	logger  *zap.Logger
}

func NewCoordinator(store Uploader, catalog CatalogWriter, norm *normalize.Normalizer, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		catalog: catalog,
		norm:    norm,
		logger:  logger,
	}
}

// FinalName is the published naming convention for non-thumbnail images,
// numbered in selection order from 1.
func FinalName(productID string, n int) string {
	return fmt.Sprintf("%s-image%d%s", productID, n, normalize.CanonicalExt)
}

func ThumbnailName(productID string) string {
	return productID + "-thumbnail" + normalize.CanonicalExt
}

// Publish runs the finalization pipeline: normalize the selection into the
// final naming convention, purge everything else, upload, resolve the
// thumbnail URL, and sync the catalog. It returns the uploaded URLs on
// success.
func (c *Coordinator) Publish(ctx context.Context, task *repository.Task, dir string, selected []string, thumbnail string) ([]string, error) {
	if len(selected) == 0 {
		return nil, ErrNoSelection
	}

	finalized, err := c.normalizeSelection(ctx, dir, task.ProductID, selected, thumbnail)
	if err != nil {
		return nil, err
	}

	c.purgeRejected(dir, finalized)

	urls := make([]string, 0, len(finalized))
	for _, name := range finalized {
		key := task.ProductID + "/" + name
		url, err := c.store.Upload(ctx, filepath.Join(dir, name), key, "image/jpeg")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		urls = append(urls, url)
	}

	thumbnailURL, err := resolveThumbnailURL(urls)
	if err != nil {
		return nil, err
	}

	if err := c.catalog.ReplaceProductImages(ctx, task.ProductID, thumbnailURL, urls); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogSyncFailed, err)
	}

	c.logger.Info("Publication synced to catalog",
		zap.String("task_id", task.ProductID),
		zap.Int("images", len(urls)),
		zap.String("thumbnail", thumbnailURL),
	)

	return urls, nil
}

// Teardown removes the working directory after a committed publication.
// Best-effort: the task is already done, so a leftover directory is only
// worth a log line.
func (c *Coordinator) Teardown(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		c.logger.Warn("Failed to remove working directory",
			zap.String("dir", dir),
			zap.Error(err),
		)
	}
}

// normalizeSelection converts each kept candidate into the canonical
// published form under its final name. The designated thumbnail gets the
// thumbnail name; the rest are numbered in selection order.
func (c *Coordinator) normalizeSelection(ctx context.Context, dir, productID string, selected []string, thumbnail string) ([]string, error) {
	finalized := make([]string, 0, len(selected))
	n := 1
	for _, name := range selected {
		var outName string
		if name == thumbnail {
			outName = ThumbnailName(productID)
		} else {
			outName = FinalName(productID, n)
			n++
		}

		src := filepath.Join(dir, name)
		if err := c.norm.Normalize(ctx, src, filepath.Join(dir, outName)); err != nil {
			return nil, fmt.Errorf("normalize %s: %w", name, err)
		}

		if name != outName {
			if err := os.Remove(src); err != nil {
				c.logger.Warn("Failed to remove pre-normalization file",
					zap.String("path", src),
					zap.Error(err),
				)
			}
		}

		finalized = append(finalized, outName)
	}

	return finalized, nil
}

// purgeRejected deletes everything in the working directory that is not
// part of the finalized selection. Individual failures are logged, never
// fatal.
func (c *Coordinator) purgeRejected(dir string, finalized []string) {
	keep := make(map[string]bool, len(finalized))
	for _, name := range finalized {
		keep[name] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		c.logger.Warn("Failed to list working directory for purge",
			zap.String("dir", dir),
			zap.Error(err),
		)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || keep[entry.Name()] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			c.logger.Warn("Failed to delete rejected candidate",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
}

func resolveThumbnailURL(urls []string) (string, error) {
	if len(urls) == 0 {
		return "", ErrNoImages
	}

	for _, url := range urls {
		if strings.Contains(url, "-thumbnail.") {
			return url, nil
		}
	}

	// Should not happen given the renaming step, but an arbitrary thumbnail
	// beats a failed publication.
	return urls[0], nil
}
