package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	ErrAuthFailed      = errors.New("catalog authentication failed")
	ErrProductNotFound = errors.New("product not found in catalog")
)

const tokenTTL = 10 * time.Minute

type ProductImage struct {
	URL string `json:"url"`
}

type Product struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Handle    string         `json:"handle"`
	Thumbnail string         `json:"thumbnail"`
	Images    []ProductImage `json:"images"`
}

type productResponse struct {
	Product *Product `json:"product"`
}

type authResponse struct {
	Token string `json:"token"`
}

// Client talks to the commerce catalog: product reads through the store
// API with a publishable key, image replacement through the admin API with
// a short-lived bearer token cached until expiry.
type Client struct {
	http           *resty.Client
	storeURL       string
	adminURL       string
	publishableKey string
	email          string
	password       string
	logger         *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(storeURL, adminURL, publishableKey, email, password string, timeout time.Duration, logger *zap.Logger) *Client {
	http := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Client{
		http:           http,
		storeURL:       storeURL,
		adminURL:       adminURL,
		publishableKey: publishableKey,
		email:          email,
		password:       password,
		logger:         logger,
	}
}

func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var auth authResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": c.email, "password": c.password}).
		SetResult(&auth).
		Post(c.adminURL + "/auth/user/emailpass")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if resp.IsError() || auth.Token == "" {
		return "", fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode())
	}

	c.token = auth.Token
	c.tokenExpiry = time.Now().Add(tokenTTL)

	return c.token, nil
}

// GetProduct reads the product record, including its current image URLs.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var result productResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-publishable-api-key", c.publishableKey).
		SetResult(&result).
		Get(c.storeURL + "/products/" + productID)
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", productID, err)
	}
	if resp.StatusCode() == 404 {
		return nil, ErrProductNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch product %s: status %d", productID, resp.StatusCode())
	}
	if result.Product == nil {
		return nil, ErrProductNotFound
	}

	return result.Product, nil
}

// ReplaceProductImages swaps the product's thumbnail and image list for the
// published set and flips the product live.
func (c *Client) ReplaceProductImages(ctx context.Context, productID, thumbnailURL string, imageURLs []string) error {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}

	images := make([]ProductImage, 0, len(imageURLs))
	for _, url := range imageURLs {
		images = append(images, ProductImage{URL: url})
	}

	body := map[string]interface{}{
		"thumbnail": thumbnailURL,
		"images":    images,
		"status":    "published",
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		Post(c.adminURL + "/admin/products/" + productID)
	if err != nil {
		return fmt.Errorf("update product %s images: %w", productID, err)
	}
	if resp.StatusCode() == 404 {
		return ErrProductNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("update product %s images: status %d", productID, resp.StatusCode())
	}

	c.logger.Info("Replaced catalog product images",
		zap.String("product_id", productID),
		zap.Int("images", len(imageURLs)),
	)

	return nil
}
