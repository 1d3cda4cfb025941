// Package catalog reads product delivery policies from the catalog service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
	"github.com/bigandbest/admin-deployed-sub000/pkg/httpclient"
)

// Catalog returns the delivery policy of a product. An unknown product is
// reported as apperrors.ErrNotFound.
type Catalog interface {
	Policy(ctx context.Context, productID int64) (*domain.DeliveryPolicy, error)
}

// JSONGetter fetches and decodes a JSON document.
// httpclient.CircuitBreakerClient satisfies this.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, dst any) error
}

// productResponse is the subset of the catalog's product envelope used here.
type productResponse struct {
	Data *struct {
		ID             int64               `json:"id"`
		DeliveryType   domain.DeliveryType `json:"delivery_type"`
		AllowedZoneIDs []int64             `json:"allowed_zone_ids"`
		Variants       []struct {
			ID int64 `json:"id"`
		} `json:"variants"`
	} `json:"data"`
}

// HTTPCatalog reads policies from the catalog service's product endpoint.
type HTTPCatalog struct {
	client  JSONGetter
	baseURL string
}

// NewHTTPCatalog creates a catalog reader rooted at baseURL.
func NewHTTPCatalog(client JSONGetter, baseURL string) *HTTPCatalog {
	return &HTTPCatalog{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *HTTPCatalog) Policy(ctx context.Context, productID int64) (*domain.DeliveryPolicy, error) {
	url := c.baseURL + "/api/v1/products/" + strconv.FormatInt(productID, 10)

	var resp productResponse
	if err := c.client.GetJSON(ctx, url, &resp); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("product", strconv.FormatInt(productID, 10))
		}
		if errors.Is(err, httpclient.ErrCircuitOpen) {
			return nil, apperrors.ServiceUnavailable("catalog is temporarily unavailable")
		}
		return nil, fmt.Errorf("fetch product %d: %w", productID, err)
	}
	if resp.Data == nil {
		return nil, apperrors.NotFound("product", strconv.FormatInt(productID, 10))
	}

	p := &domain.DeliveryPolicy{
		ProductID:      resp.Data.ID,
		DeliveryType:   resp.Data.DeliveryType,
		AllowedZoneIDs: resp.Data.AllowedZoneIDs,
	}
	for _, v := range resp.Data.Variants {
		p.VariantIDs = append(p.VariantIDs, v.ID)
	}
	return p, nil
}

// StaticCatalog serves policies held in memory. It backs local runs without
// a catalog service and tests.
type StaticCatalog struct {
	mu       sync.RWMutex
	policies map[int64]domain.DeliveryPolicy
}

// NewStaticCatalog creates a catalog holding policies.
func NewStaticCatalog(policies ...domain.DeliveryPolicy) *StaticCatalog {
	c := &StaticCatalog{policies: make(map[int64]domain.DeliveryPolicy, len(policies))}
	for _, p := range policies {
		c.policies[p.ProductID] = p
	}
	return c
}

// Put adds or replaces a policy.
func (c *StaticCatalog) Put(p domain.DeliveryPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies[p.ProductID] = p
}

// Remove forgets a product.
func (c *StaticCatalog) Remove(productID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.policies, productID)
}

func (c *StaticCatalog) Policy(_ context.Context, productID int64) (*domain.DeliveryPolicy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.policies[productID]
	if !ok {
		return nil, apperrors.NotFound("product", strconv.FormatInt(productID, 10))
	}
	return &p, nil
}
