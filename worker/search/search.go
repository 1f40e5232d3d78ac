package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Searcher finds candidate images for a text query and materializes them as
// files in destDir. Implementations report which files are new; callers
// never learn how results were fetched or named.
type Searcher interface {
	Search(ctx context.Context, query, site string, max int, destDir string) ([]string, error)
}

type searchResult struct {
	URL string `json:"url"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// HTTPSearcher queries a web image-search endpoint and downloads each
// result stream into the destination directory. The provider does not
// return predictable filenames, so new files are detected by diffing the
// directory listing before and after the fetch; that technique stays
// isolated behind this type.
type HTTPSearcher struct {
	http   *resty.Client
	url    string
	apiKey string
	logger *zap.Logger
}

func NewHTTPSearcher(url, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPSearcher {
	http := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &HTTPSearcher{
		http:   http,
		url:    url,
		apiKey: apiKey,
		logger: logger,
	}
}

func (s *HTTPSearcher) Search(ctx context.Context, query, site string, max int, destDir string) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}

	if site != "" {
		query = query + " site:" + site
	}

	before, err := listDir(destDir)
	if err != nil {
		return nil, err
	}

	var result searchResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("X-API-Key", s.apiKey).
		SetQueryParams(map[string]string{
			"q":   query,
			"max": strconv.Itoa(max),
		}).
		SetResult(&result).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("image search %q: %w", query, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("image search %q: status %d", query, resp.StatusCode())
	}

	downloaded := 0
	for _, r := range result.Results {
		if downloaded >= max {
			break
		}
		if err := s.downloadResult(ctx, r.URL, destDir); err != nil {
			s.logger.Warn("Skipping search result",
				zap.String("url", r.URL),
				zap.Error(err),
			)
			continue
		}
		downloaded++
	}

	after, err := listDir(destDir)
	if err != nil {
		return nil, err
	}

	var newFiles []string
	for name := range after {
		if !before[name] {
			newFiles = append(newFiles, filepath.Join(destDir, name))
		}
	}

	s.logger.Debug("Search pass finished",
		zap.String("query", query),
		zap.Int("requested", max),
		zap.Int("new_files", len(newFiles)),
	)

	return newFiles, nil
}

func (s *HTTPSearcher) downloadResult(ctx context.Context, url, destDir string) error {
	ext := strings.ToLower(filepath.Ext(url))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
	default:
		ext = ".jpg"
	}

	path := filepath.Join(destDir, uuid.New().String()+ext)

	resp, err := s.http.R().
		SetContext(ctx).
		SetOutput(path).
		Get(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		os.Remove(path)
		return fmt.Errorf("status %d", resp.StatusCode())
	}

	return nil
}

func listDir(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names[entry.Name()] = true
		}
	}

	return names, nil
}
