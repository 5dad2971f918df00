// Package catalog resolves product codes to their metadata through the
// external product catalog, with an in-process TTL cache in front.
package catalog

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/coocood/freecache"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// ProductInformation is the catalog's metadata document for one product.
type ProductInformation struct {
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
	MetaTitle   string `json:"metaTitle,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// Lookuper resolves a product code to its display name. An empty name with a
// nil error means the code cannot be resolved; callers treat such codes as
// not watchable.
type Lookuper interface {
	Lookup(ctx context.Context, code string) (string, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch retrieves the full metadata document for a product code. A nil
// document with a nil error means the catalog has no usable answer.
func (c *Client) Fetch(ctx context.Context, code string) (*ProductInformation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metadata/productDetails?code="+url.QueryEscape(code), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("code", code).Msg("Catalog lookup rejected")
		return nil, nil
	}

	info := &ProductInformation{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) Lookup(ctx context.Context, code string) (string, error) {
	info, err := c.Fetch(ctx, code)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return info.MetaTitle, nil
}

// Cache wraps a Lookuper with a freecache-backed TTL cache so repeated
// additions of the same code hit the catalog once. Only resolved names are
// cached.
type Cache struct {
	inner      Lookuper
	cache      *freecache.Cache
	ttlSeconds int
}

func NewCache(inner Lookuper, sizeBytes int, ttl time.Duration) *Cache {
	return &Cache{
		inner:      inner,
		cache:      freecache.NewCache(sizeBytes),
		ttlSeconds: int(ttl.Seconds()),
	}
}

func (c *Cache) Lookup(ctx context.Context, code string) (string, error) {
	if cached, err := c.cache.Get([]byte(code)); err == nil {
		return string(cached), nil
	}

	name, err := c.inner.Lookup(ctx, code)
	if err != nil {
		return "", err
	}
	if name != "" {
		if err := c.cache.Set([]byte(code), []byte(name), c.ttlSeconds); err != nil {
			log.Warn().Err(err).Str("code", code).Msg("Failed to cache product name")
		}
	}
	return name, nil
}
