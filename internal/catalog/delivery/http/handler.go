package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tair/marketplace-catalog/internal/catalog/domain"
	"github.com/tair/marketplace-catalog/internal/catalog/fetcher"
	"github.com/tair/marketplace-catalog/internal/catalog/query"
	"github.com/tair/marketplace-catalog/internal/catalog/similar"
	"github.com/tair/marketplace-catalog/internal/catalog/store"
	"github.com/tair/marketplace-catalog/pkg/logger"
)

const maxPageSize = 200

// CatalogHandler serves the cached catalog over HTTP
type CatalogHandler struct {
	fetcher      *fetcher.Fetcher
	store        *store.Store
	tokens       TokenValidator
	adminRole    string
	similarLimit int

	requestCounter *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// Options tunes a CatalogHandler. A nil Tokens disables the admin routes.
type Options struct {
	Tokens       TokenValidator
	AdminRole    string
	SimilarLimit int
}

func NewCatalogHandler(f *fetcher.Fetcher, s *store.Store, opts Options, reg prometheus.Registerer) *CatalogHandler {
	factory := promauto.With(reg)
	if opts.SimilarLimit <= 0 {
		opts.SimilarLimit = similar.DefaultLimit
	}
	if opts.AdminRole == "" {
		opts.AdminRole = "admin"
	}

	return &CatalogHandler{
		fetcher:      f,
		store:        s,
		tokens:       opts.Tokens,
		adminRole:    opts.AdminRole,
		similarLimit: opts.SimilarLimit,
		requestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_service_requests_total",
				Help: "Total number of requests to catalog service",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_service_request_duration_seconds",
				Help:    "Duration of catalog service requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	// Stale is set when the data is a fallback for a failed refresh; Error then
	// carries the reason so clients can show a hint or offer a retry.
	Stale bool `json:"stale,omitempty"`
}

type listData struct {
	Products  []domain.Product `json:"products"`
	Total     int              `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
	Source    fetcher.Source   `json:"source"`
	FetchedAt *time.Time       `json:"fetchedAt,omitempty"`
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (h *CatalogHandler) metricsMiddleware(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		h.requestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(rw.statusCode)).Inc()
		h.requestLatency.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func (h *CatalogHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/catalog/products", h.metricsMiddleware("/api/catalog/products", h.ListProducts)).Methods("GET")
	router.HandleFunc("/api/catalog/facets", h.metricsMiddleware("/api/catalog/facets", h.GetFacets)).Methods("GET")
	router.HandleFunc("/api/catalog/products/{slug}", h.metricsMiddleware("/api/catalog/products/{slug}", h.GetProduct)).Methods("GET")
	router.HandleFunc("/api/catalog/products/{slug}/similar", h.metricsMiddleware("/api/catalog/products/{slug}/similar", h.GetSimilar)).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	if h.tokens == nil {
		logger.Logger.Warn().Msg("No token validator configured, admin catalog routes disabled")
		return
	}
	admin := AdminMiddleware(h.tokens, h.adminRole)
	router.HandleFunc("/api/catalog/refresh", h.metricsMiddleware("/api/catalog/refresh", admin(h.Refresh))).Methods("POST")
	router.HandleFunc("/api/admin/catalog/products", h.metricsMiddleware("/api/admin/catalog/products", admin(h.AdminSearch))).Methods("GET")
}

// ListProducts handles GET /api/catalog/products
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, query.SearchOptions{})
}

// AdminSearch handles GET /api/admin/catalog/products. Unlike the public
// listing, the search term also matches categories.
func (h *CatalogHandler) AdminSearch(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, query.SearchOptions{IncludeCategory: true})
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request, opts query.SearchOptions) {
	res, ok := h.fetch(w, r, false)
	if !ok {
		return
	}

	q := parseQuery(r)
	q.Search = opts
	page := query.Apply(res.Products, q)

	respond(w, http.StatusOK, res, listData{
		Products:  page.Items,
		Total:     page.Total,
		Limit:     q.Limit,
		Offset:    q.Offset,
		Source:    res.Source,
		FetchedAt: fetchedAt(res),
	})
}

// GetFacets handles GET /api/catalog/facets. Filters narrow the facet base
// the same way they narrow a listing; paging and sorting are ignored.
func (h *CatalogHandler) GetFacets(w http.ResponseWriter, r *http.Request) {
	res, ok := h.fetch(w, r, false)
	if !ok {
		return
	}

	q := parseQuery(r)
	matched := query.Filter(query.Search(res.Products, q.Term, q.Search), q.Filters)
	respond(w, http.StatusOK, res, query.BuildFacets(matched))
}

// GetProduct handles GET /api/catalog/products/{slug}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	res, ok := h.fetch(w, r, false)
	if !ok {
		return
	}

	product, found := h.store.GetBySlug(mux.Vars(r)["slug"])
	if !found {
		respondError(w, http.StatusNotFound, "Product not found")
		return
	}
	respond(w, http.StatusOK, res, product)
}

// GetSimilar handles GET /api/catalog/products/{slug}/similar
func (h *CatalogHandler) GetSimilar(w http.ResponseWriter, r *http.Request) {
	res, ok := h.fetch(w, r, false)
	if !ok {
		return
	}

	anchor, found := h.store.GetBySlug(mux.Vars(r)["slug"])
	if !found {
		respondError(w, http.StatusNotFound, "Product not found")
		return
	}

	limit := h.similarLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n < limit {
		limit = n
	}
	respond(w, http.StatusOK, res, similar.FindSimilar(anchor, res.Products, limit))
}

// Refresh handles POST /api/catalog/refresh
func (h *CatalogHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	res, ok := h.fetch(w, r, true)
	if !ok {
		return
	}

	if !res.Stale() {
		userID, _ := r.Context().Value(UserIDKey).(string)
		logger.Info(r.Context()).
			Str("user_id", userID).
			Int("count", len(res.Products)).
			Msg("Catalog refreshed by admin")
	}
	respond(w, http.StatusOK, res, map[string]interface{}{
		"count":     len(res.Products),
		"source":    res.Source,
		"fetchedAt": fetchedAt(res),
	})
}

// HealthCheck reports unhealthy only when there is no catalog to serve
func (h *CatalogHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	data := map[string]interface{}{
		"products": len(snap.Products),
		"loading":  snap.Loading,
	}
	if last := h.fetcher.LastFetchedAt(); !last.IsZero() {
		data["lastFetchedAt"] = last
	}

	if len(snap.Products) == 0 && snap.Error != "" {
		respondJSON(w, http.StatusServiceUnavailable, Response{
			Success: false,
			Data:    data,
			Error:   snap.Error,
		})
		return
	}
	respondJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Catalog service is healthy",
		Data:    data,
	})
}

// fetch loads the catalog, writing a 503 when there is nothing to serve
func (h *CatalogHandler) fetch(w http.ResponseWriter, r *http.Request, force bool) (fetcher.Result, bool) {
	res, err := h.fetcher.Fetch(r.Context(), force)
	if err != nil {
		msg := "Catalog unavailable"
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			msg = fe.Message
		}
		logger.Warn(r.Context()).Err(err).Msg("Catalog fetch failed with nothing cached")
		respondError(w, http.StatusServiceUnavailable, msg)
		return fetcher.Result{}, false
	}
	return res, true
}

func parseQuery(r *http.Request) query.Query {
	v := r.URL.Query()
	q := query.Query{
		Term: v.Get("q"),
		Filters: query.ParseFilters(
			v.Get("category"),
			v.Get("school"),
			v.Get("condition"),
			v.Get("minPrice"),
			v.Get("maxPrice"),
		),
		Sort: query.SortKey(v.Get("sort")),
	}
	if n, err := strconv.Atoi(v.Get("limit")); err == nil && n > 0 {
		q.Limit = min(n, maxPageSize)
	}
	if n, err := strconv.Atoi(v.Get("offset")); err == nil && n > 0 {
		q.Offset = n
	}
	return q
}

func fetchedAt(res fetcher.Result) *time.Time {
	if res.FetchedAt.IsZero() {
		return nil
	}
	t := res.FetchedAt
	return &t
}

func respond(w http.ResponseWriter, status int, res fetcher.Result, data interface{}) {
	out := Response{Success: true, Data: data}
	if res.Stale() && res.Warning != nil {
		out.Stale = true
		out.Error = res.Warning.Message
	}
	respondJSON(w, status, out)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to encode response")
	}
}
