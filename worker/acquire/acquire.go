package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagecurator/worker/catalog"
	"imagecurator/worker/normalize"
	"imagecurator/worker/repository"
	"imagecurator/worker/search"
)

const (
	// ProvenanceExisting labels images already attached to the catalog record.
	ProvenanceExisting = "existing"
	// ProvenanceSearch labels general web-search results.
	ProvenanceSearch = "google"

	// storePassLimit bounds each per-store supplementary pass.
	storePassLimit = 10
)

// Candidate pairs a working-directory file with its structured provenance
// record, so nothing downstream has to infer meaning from the filename.
type Candidate struct {
	FileName   string `json:"file_name"`
	Provenance string `json:"provenance"`
	Ordinal    int    `json:"ordinal"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Valid      bool   `json:"valid"`
}

// ProductSource is the slice of the catalog client acquisition needs.
type ProductSource interface {
	GetProduct(ctx context.Context, productID string) (*catalog.Product, error)
}

// Orchestrator fills a task's working directory with labeled candidate
// images from every configured source. Sources are independent: one failing
// never aborts the others, and an all-sources failure just yields an empty
// candidate set.
type Orchestrator struct {
	catalog ProductSource
	search  search.Searcher
	norm    *normalize.Normalizer
	http    *http.Client
	logger  *zap.Logger
	baseDir string
	target  int
	stores  []string
}

func NewOrchestrator(catalog ProductSource, searcher search.Searcher, norm *normalize.Normalizer, baseDir string, target int, stores []string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		catalog: catalog,
		search:  searcher,
		norm:    norm,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		baseDir: baseDir,
		target:  target,
		stores:  stores,
	}
}

// WorkingDirName derives the filesystem-safe directory name for a task.
func WorkingDirName(title string) string {
	return strings.ToLower(strings.ReplaceAll(title, " ", "_"))
}

// ProvenanceSlug makes a domain usable inside the candidate naming contract.
func ProvenanceSlug(domain string) string {
	return strings.ReplaceAll(domain, ".", "_")
}

// CandidateName implements the naming contract
// {task_id}-{provenance_slug}-{ordinal}.{ext}.
func CandidateName(productID, slug string, ordinal int) string {
	return fmt.Sprintf("%s-%s-%d%s", productID, slug, ordinal, normalize.CanonicalExt)
}

func (o *Orchestrator) WorkingDir(title string) string {
	return filepath.Join(o.baseDir, WorkingDirName(title))
}

// Gather resets the task's working directory and populates it: existing
// catalog images first, then general search up to the target count, then a
// supplementary pass per configured store. Every file is converted to the
// canonical codec as it arrives and measured against the dimension
// threshold before the set is returned.
func (o *Orchestrator) Gather(ctx context.Context, task *repository.Task) ([]Candidate, error) {
	dir := o.WorkingDir(task.Title)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("reset working dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create working dir %s: %w", dir, err)
	}

	var candidates []Candidate
	candidates = append(candidates, o.seedExisting(ctx, dir, task)...)

	needed := o.target - len(candidates)
	if needed > 0 {
		newFiles, err := o.search.Search(ctx, task.Title, "", needed, dir)
		if err != nil {
			o.logger.Warn("General search failed",
				zap.String("task_id", task.ProductID),
				zap.Error(err),
			)
		}
		candidates = append(candidates, o.labelNewFiles(task.ProductID, ProvenanceSearch, newFiles)...)
	}

	for _, store := range o.stores {
		newFiles, err := o.search.Search(ctx, task.Title, store, storePassLimit, dir)
		if err != nil {
			o.logger.Warn("Store search failed",
				zap.String("task_id", task.ProductID),
				zap.String("store", store),
				zap.Error(err),
			)
			continue
		}
		candidates = append(candidates, o.labelNewFiles(task.ProductID, ProvenanceSlug(store), newFiles)...)
	}

	for i := range candidates {
		width, height, ok := o.norm.Validate(filepath.Join(dir, candidates[i].FileName))
		candidates[i].Width = width
		candidates[i].Height = height
		candidates[i].Valid = ok
	}

	o.logger.Info("Acquisition finished",
		zap.String("task_id", task.ProductID),
		zap.Int("candidates", len(candidates)),
	)

	return candidates, nil
}

// seedExisting downloads each image already on the catalog record. A bad
// URL skips only that image.
func (o *Orchestrator) seedExisting(ctx context.Context, dir string, task *repository.Task) []Candidate {
	product, err := o.catalog.GetProduct(ctx, task.ProductID)
	if err != nil {
		o.logger.Warn("Could not fetch catalog record for existing images",
			zap.String("task_id", task.ProductID),
			zap.Error(err),
		)
		return nil
	}

	var candidates []Candidate
	ordinal := 1
	for _, img := range product.Images {
		if img.URL == "" {
			continue
		}

		name, err := o.fetchExisting(ctx, dir, task.ProductID, img.URL, ordinal)
		if err != nil {
			o.logger.Warn("Skipping existing image",
				zap.String("task_id", task.ProductID),
				zap.String("url", img.URL),
				zap.Error(err),
			)
			continue
		}

		candidates = append(candidates, Candidate{
			FileName:   name,
			Provenance: ProvenanceExisting,
			Ordinal:    ordinal,
		})
		ordinal++
	}

	return candidates
}

func (o *Orchestrator) fetchExisting(ctx context.Context, dir, productID, url string, ordinal int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tempPath := filepath.Join(dir, fmt.Sprintf("temp_existing_%d.img", ordinal))
	file, err := os.Create(tempPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(tempPath)
		return "", err
	}
	file.Close()

	canonical, err := o.norm.ConvertToCanonical(tempPath)
	if err != nil {
		os.Remove(tempPath)
		return "", err
	}

	name := CandidateName(productID, ProvenanceExisting, ordinal)
	if err := os.Rename(canonical, filepath.Join(dir, name)); err != nil {
		os.Remove(canonical)
		return "", err
	}

	return name, nil
}

// labelNewFiles converts freshly downloaded files to the canonical codec
// and renames them per the naming contract, one ordinal sequence per
// provenance bucket.
func (o *Orchestrator) labelNewFiles(productID, slug string, paths []string) []Candidate {
	var candidates []Candidate
	ordinal := 1
	for _, path := range paths {
		canonical, err := o.norm.ConvertToCanonical(path)
		if err != nil {
			o.logger.Warn("Skipping undecodable download",
				zap.String("path", path),
				zap.Error(err),
			)
			os.Remove(path)
			continue
		}

		name := CandidateName(productID, slug, ordinal)
		if err := os.Rename(canonical, filepath.Join(filepath.Dir(path), name)); err != nil {
			o.logger.Warn("Failed to label download",
				zap.String("path", canonical),
				zap.Error(err),
			)
			os.Remove(canonical)
			continue
		}

		candidates = append(candidates, Candidate{
			FileName:   name,
			Provenance: slug,
			Ordinal:    ordinal,
		})
		ordinal++
	}

	return candidates
}
