package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigandbest/admin-deployed-sub000/internal/domain"
	apperrors "github.com/bigandbest/admin-deployed-sub000/pkg/errors"
	"github.com/bigandbest/admin-deployed-sub000/pkg/httpclient"
)

func newClient(t *testing.T, handler http.HandlerFunc) *HTTPCatalog {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := httpclient.New(httpclient.Config{Timeout: time.Second, MaxRetries: 0})
	cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("catalog-test"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewHTTPCatalog(cb, srv.URL+"/")
}

func TestHTTPCatalog_Policy(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/500", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"id":500,"name":"Mango","delivery_type":"zonal",
			"allowed_zone_ids":[2,3],"variants":[{"id":7},{"id":8}]}}`)
	})

	p, err := c.Policy(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryZonal, p.DeliveryType)
	assert.Equal(t, []int64{2, 3}, p.AllowedZoneIDs)
	assert.Equal(t, []int64{7, 8}, p.VariantIDs)
}

func TestHTTPCatalog_Policy_UnknownProduct(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":"NOT_FOUND","message":"product not found"}}`)
	})

	_, err := c.Policy(context.Background(), 404)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPCatalog_Policy_ServerError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Policy(context.Background(), 500)
	require.Error(t, err)
	assert.False(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "fetch product 500")
}

func TestStaticCatalog(t *testing.T) {
	c := NewStaticCatalog(domain.DeliveryPolicy{ProductID: 1, DeliveryType: domain.DeliveryNationwide})

	p, err := c.Policy(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryNationwide, p.DeliveryType)

	c.Put(domain.DeliveryPolicy{ProductID: 2, DeliveryType: domain.DeliveryZonal})
	_, err = c.Policy(context.Background(), 2)
	require.NoError(t, err)

	c.Remove(1)
	_, err = c.Policy(context.Background(), 1)
	assert.True(t, apperrors.IsNotFound(err))
}
