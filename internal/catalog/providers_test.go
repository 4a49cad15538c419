package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/marketplace-catalog/internal/catalog"
	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/internal/config"
)

func TestInitializeAppServesCatalog(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/products", r.URL.Path)
		_ = json.NewEncoder(w).Encode(domain.ListResponse{
			Success: true,
			Items: []domain.Product{
				{ID: 1, Slug: "desk", Title: "Desk", Category: "Furniture", Price: 20000, SellerID: "s1", CreatedAt: time.Now()},
				{ID: 2, Slug: "chair", Title: "Chair", Category: "Furniture", Price: 8000, SellerID: "s2", CreatedAt: time.Now()},
			},
		})
	}))
	defer upstream.Close()

	cfg := config.Config{
		Service:  config.ServiceConfig{Name: "catalog-test"},
		Catalog:  config.CatalogConfig{StalenessWindow: time.Minute, FetchTimeout: time.Second, SimilarLimit: 6},
		Upstream: config.UpstreamConfig{BaseURL: upstream.URL, MaxFailures: 3, BreakerCoolDown: time.Second},
		Snapshot: config.SnapshotConfig{Backend: config.BackendMemory},
	}
	require.NoError(t, cfg.Validate())

	app, cleanup, err := catalog.InitializeApp(context.Background(), cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, app.Consumer)
	assert.NotNil(t, app.Snapshots)

	n, err := app.Fetcher.Hydrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	router := mux.NewRouter()
	app.Handler.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/products/desk/similar", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []domain.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, int64(2), body.Data[0].ID)
	assert.Equal(t, 2, app.Store.Len())
}

func TestInitializeAppTwiceInOneProcess(t *testing.T) {
	cfg := config.Config{
		Service:  config.ServiceConfig{Name: "catalog-test"},
		Catalog:  config.CatalogConfig{StalenessWindow: time.Minute, FetchTimeout: time.Second, SimilarLimit: 6},
		Upstream: config.UpstreamConfig{BaseURL: "http://127.0.0.1:0", MaxFailures: 3, BreakerCoolDown: time.Second},
		Snapshot: config.SnapshotConfig{Backend: config.BackendMemory},
	}

	for i := 0; i < 2; i++ {
		app, cleanup, err := catalog.InitializeApp(context.Background(), cfg, prometheus.NewRegistry())
		require.NoError(t, err)
		require.NotNil(t, app.Fetcher)
		cleanup()
	}
}
