package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrAuthFailed = errors.New("catalog authentication failed")

const (
	listPageSize = 50
	tokenTTL     = 10 * time.Minute
)

// Product is the slice of the catalog record the registry needs.
type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	Thumbnail   string `json:"thumbnail"`
	Description string `json:"description"`
}

type authResponse struct {
	Token string `json:"token"`
}

type listResponse struct {
	Products []Product `json:"products"`
}

// Client reads the commerce catalog's admin API. Bearer tokens are
// short-lived; the client caches one and re-authenticates on expiry.
type Client struct {
	http     *resty.Client
	adminURL string
	email    string
	password string
	logger   *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(adminURL, email, password string, timeout time.Duration, logger *zap.Logger) *Client {
	http := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Client{
		http:     http,
		adminURL: adminURL,
		email:    email,
		password: password,
		logger:   logger,
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

// ListProposedProducts pages through every catalog product awaiting
// curation.
func (c *Client) ListProposedProducts(ctx context.Context) ([]Product, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var products []Product
	offset := 0

	for {
		var batch listResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParams(map[string]string{
				"offset":   strconv.Itoa(offset),
				"limit":    strconv.Itoa(listPageSize),
				"status[]": "proposed",
			}).
			SetResult(&batch).
			Get(c.adminURL + "/admin/products")
		if err != nil {
			return nil, fmt.Errorf("list products at offset %d: %w", offset, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("list products at offset %d: status %d", offset, resp.StatusCode())
		}

		if len(batch.Products) == 0 {
			break
		}
		products = append(products, batch.Products...)
		offset += listPageSize
	}

	c.logger.Debug("Fetched catalog products", zap.Int("count", len(products)))

	return products, nil
}
