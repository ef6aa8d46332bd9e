// Package source implements the client for the external product catalog
// API: paginated listing with skip/limit semantics and single-item lookup.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/domain"
)

// Client fetches products from the source-of-truth API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Config holds source API connection settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient creates a source API client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// GetPage fetches one page of products using skip/limit pagination.
// An empty page signals exhaustion.
func (c *Client) GetPage(ctx context.Context, skip, limit int) ([]domain.Product, error) {
	url := fmt.Sprintf("%s/?skip=%d&limit=%d", c.baseURL, skip, limit)

	var dtos []productDTO
	if err := c.getJSON(ctx, url, &dtos); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(dtos))
	for _, dto := range dtos {
		p := dto.toDomain()
		if err := p.Validate(); err != nil {
			c.logger.Warn("skipping malformed source product",
				zap.String("id", p.ID), zap.Error(err))
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

// GetByID fetches a single product. Returns domain.ErrProductNotFound on 404.
func (c *Client) GetByID(ctx context.Context, id string) (domain.Product, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, id)

	var dto productDTO
	if err := c.getJSON(ctx, url, &dto); err != nil {
		return domain.Product{}, err
	}
	return dto.toDomain(), nil
}

// HealthCheck probes the API with a one-item page and reports latency.
func (c *Client) HealthCheck(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	_, err := c.GetPage(ctx, 0, 1)
	return time.Since(start), err
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, domain.ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrProductNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("get %s: status %d: %w", url, resp.StatusCode, domain.ErrSourceUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, domain.ErrSourceUnavailable)
	}
	return nil
}

// productDTO mirrors the source API wire format. The id is accepted both
// as string and number, since upstream catalogs differ on this.
type productDTO struct {
	ID          flexibleID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Price       float64    `json:"price"`
	Stock       int        `json:"stock"`
	ImageURL    string     `json:"image_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (d *productDTO) toDomain() domain.Product {
	return domain.Product{
		ID:          string(d.ID),
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Price:       d.Price,
		Stock:       d.Stock,
		ImageURL:    d.ImageURL,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexibleID(s)
	return nil
}
