package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asquebay/storefront-service/internal/auth"
	"github.com/asquebay/storefront-service/internal/config"
	"github.com/asquebay/storefront-service/internal/dashboard"
	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/lib/logger"
	"github.com/asquebay/storefront-service/internal/lib/metrics"
	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/ratelimit"
	"github.com/asquebay/storefront-service/internal/repository/cache"
	"github.com/asquebay/storefront-service/internal/repository/memory"
	"github.com/asquebay/storefront-service/internal/service"
	"github.com/asquebay/storefront-service/internal/storage"
	httptransport "github.com/asquebay/storefront-service/internal/transport/http"
)

const adminID = "admin-1"

type testServer struct {
	srv       *httptest.Server
	store     *memory.Store
	authn     *auth.Authenticator
	uploadDir string
	token     string
}

var testTimes = config.QueryTimes{StaleTime: time.Minute, GCTime: 5 * time.Minute}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()

	store := memory.New()
	store.PutAdmin(model.AdminUser{ID: adminID, Email: "admin@example.com"})
	authn := auth.New("test-secret", "storefront", store, log)

	limits := config.RateLimit{
		PhoneSearch: config.Limit{MaxRequests: 2, Window: time.Minute},
		OrderNumber: config.Limit{MaxRequests: 2, Window: time.Minute},
	}
	collector := metrics.New()
	orders := service.NewOrderService(store, authn, ratelimit.New(), limits, config.Search{MaxResults: 1000}, log).
		WithRateObserver(collector)

	uploadDir := t.TempDir()
	catalog := service.NewCatalogService(store, authn, storage.NewLocal(uploadDir, "/uploads"), log)

	c := cache.New(log,
		cache.WithObserver(collector),
		cache.WithRetryPolicy(func(err error) bool { return apperr.Is(err, apperr.Internal) }),
	)
	t.Cleanup(c.Wait)
	times := config.Cache{Stats: testTimes, Orders: testTimes, Search: testTimes, Categories: testTimes, Products: testTimes}
	d := dashboard.New(c, orders, catalog, times, config.Search{PageSize: 50}, log)

	h := httptransport.NewHandler(orders, d, authn, log,
		httptransport.WithMetrics("/metrics", collector.Handler(), collector),
		httptransport.WithUploads("/uploads", uploadDir),
	)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	token, err := authn.IssueToken(adminID, "admin@example.com", time.Hour)
	require.NoError(t, err)

	return &testServer{srv: srv, store: store, authn: authn, uploadDir: uploadDir, token: token}
}

func (s *testServer) seed(n int) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		s.store.PutOrder(model.Order{
			OrderNumber:     fmt.Sprintf("ORD-%03d", i),
			CustomerName:    fmt.Sprintf("Customer %d", i),
			CustomerPhone:   fmt.Sprintf("900%07d", i),
			Status:          model.StatusPending,
			TotalPrice:      10,
			ShippingAddress: "Main st",
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
			Items:           []model.OrderItem{{ProductName: "Cap", Quantity: 1, UnitPrice: 10, Subtotal: 10}},
		})
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) admin(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	ct := ""
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
		ct = "application/json"
	}
	return s.do(t, method, path, s.token, r, ct)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ordersBody struct {
	Success    bool          `json:"success"`
	Mode       string        `json:"mode"`
	Orders     []model.Order `json:"orders"`
	TotalCount int           `json:"totalCount"`
	HasMore    bool          `json:"hasMore"`
	NextPage   *int          `json:"nextPage"`
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	s := newTestServer(t)
	notAdmin, err := s.authn.IssueToken("customer-7", "c7@example.com", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "no token", token: "", want: auth.MsgNotAuthenticated},
		{name: "garbage token", token: "not-a-jwt", want: auth.MsgNotAuthenticated},
		{name: "user outside registry", token: notAdmin, want: auth.MsgAdminRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodGet, "/api/admin/orders/stats", tt.token, nil, "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body := decode[errorBody](t, resp)
			assert.False(t, body.Success)
			assert.Equal(t, tt.want, body.Error)
		})
	}
}

func TestListOrders_InfinitePages(t *testing.T) {
	s := newTestServer(t)
	s.seed(60)

	first := decode[ordersBody](t, s.admin(t, http.MethodGet, "/api/admin/orders", nil))
	assert.Equal(t, string(dashboard.ModeInfinite), first.Mode)
	assert.Len(t, first.Orders, 50)
	assert.Equal(t, 60, first.TotalCount)
	assert.True(t, first.HasMore)
	require.NotNil(t, first.NextPage)
	assert.Equal(t, 1, *first.NextPage)
	assert.Equal(t, "ORD-060", first.Orders[0].OrderNumber, "newest order goes first")

	second := decode[ordersBody](t, s.admin(t, http.MethodGet, "/api/admin/orders?page=1", nil))
	assert.Len(t, second.Orders, 10)
	assert.False(t, second.HasMore)
	assert.Nil(t, second.NextPage)
}

func TestListOrders_PageOutOfOrderStillServed(t *testing.T) {
	s := newTestServer(t)
	s.seed(120)

	body := decode[ordersBody](t, s.admin(t, http.MethodGet, "/api/admin/orders?page=2", nil))
	assert.Len(t, body.Orders, 20)
	assert.Equal(t, 120, body.TotalCount)
	assert.False(t, body.HasMore)
}

func TestListOrders_SearchMode(t *testing.T) {
	s := newTestServer(t)
	s.seed(30)

	body := decode[ordersBody](t, s.admin(t, http.MethodGet, "/api/admin/orders?search=ORD-007", nil))
	assert.Equal(t, string(dashboard.ModeSearch), body.Mode)
	require.Len(t, body.Orders, 1)
	assert.Equal(t, "Customer 7", body.Orders[0].CustomerName)
	assert.Equal(t, 1, body.TotalCount)
	assert.Nil(t, body.NextPage)
}

func TestListOrders_BadInput(t *testing.T) {
	s := newTestServer(t)

	resp := s.admin(t, http.MethodGet, "/api/admin/orders?page=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.admin(t, http.MethodGet, "/api/admin/orders?search=x&status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid status filter", decode[errorBody](t, resp).Error)
}

func TestUpdateOrderStatus(t *testing.T) {
	s := newTestServer(t)
	s.seed(3)

	resp := s.admin(t, http.MethodPatch, "/api/admin/orders/2/status", map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Order model.Order `json:"order"`
	}](t, resp)
	assert.Equal(t, model.StatusConfirmed, body.Order.Status)

	stored, err := s.store.GetByID(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stored.Status)

	resp = s.admin(t, http.MethodPatch, "/api/admin/orders/2/status", map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.admin(t, http.MethodPatch, "/api/admin/orders/abc/status", map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.admin(t, http.MethodPatch, "/api/admin/orders/99/status", map[string]string{"status": "confirmed"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteOrder(t *testing.T) {
	s := newTestServer(t)
	s.seed(3)

	resp := s.admin(t, http.MethodDelete, "/api/admin/orders/3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.admin(t, http.MethodGet, "/api/admin/orders/3", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	stats := decode[struct {
		Stats model.OrderStats `json:"stats"`
	}](t, s.admin(t, http.MethodGet, "/api/admin/orders/stats", nil))
	assert.Equal(t, 2, stats.Stats.Total)
}

func TestPublicLookups_RateLimited(t *testing.T) {
	s := newTestServer(t)
	s.seed(1)

	for i := 0; i < 2; i++ {
		resp := s.do(t, http.MethodGet, "/api/orders/phone/9000000001", "", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
		body := decode[ordersBody](t, resp)
		assert.Len(t, body.Orders, 1)
	}

	resp := s.do(t, http.MethodGet, "/api/orders/phone/9000000001", "", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.False(t, decode[errorBody](t, resp).Success)

	// у поиска по номеру свой счётчик
	resp = s.do(t, http.MethodGet, "/api/orders/number/ord-001", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Order model.Order `json:"order"`
	}](t, resp)
	assert.Equal(t, "ORD-001", body.Order.OrderNumber)

	resp = s.do(t, http.MethodGet, "/api/orders/number/ORD-404", "", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Order not found", decode[errorBody](t, resp).Error)
}

func TestPublicLookups_InvalidPhone(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/orders/phone/12345", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Please enter a valid phone number", decode[errorBody](t, resp).Error)
}

func TestCategories(t *testing.T) {
	s := newTestServer(t)

	resp := s.admin(t, http.MethodPost, "/api/admin/categories", model.NewCategory{Name: "Summer Shirts"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[struct {
		Category model.Category `json:"category"`
	}](t, resp)
	assert.Equal(t, "summer-shirts", created.Category.Slug)

	resp = s.admin(t, http.MethodPost, "/api/admin/categories", model.NewCategory{Name: "Summer shirts!"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.admin(t, http.MethodPost, "/api/admin/categories", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown fields are rejected")

	list := decode[struct {
		Categories []model.Category `json:"categories"`
	}](t, s.admin(t, http.MethodGet, "/api/admin/categories", nil))
	require.Len(t, list.Categories, 1)

	resp = s.admin(t, http.MethodDelete, fmt.Sprintf("/api/admin/categories/%d", created.Category.ID), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	list = decode[struct {
		Categories []model.Category `json:"categories"`
	}](t, s.admin(t, http.MethodGet, "/api/admin/categories", nil))
	assert.Empty(t, list.Categories)
}

func productForm(t *testing.T, product model.NewProduct, files map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	raw, err := json.Marshal(product)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("product", string(raw)))

	for name, content := range files {
		fw, err := mw.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestAddProduct_Multipart(t *testing.T) {
	s := newTestServer(t)

	resp := s.admin(t, http.MethodPost, "/api/admin/categories", model.NewCategory{Name: "Shirts"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	category := decode[struct {
		Category model.Category `json:"category"`
	}](t, resp).Category

	in := model.NewProduct{
		Name:        "Linen shirt",
		Description: "Loose fit summer shirt",
		Price:       49.9,
		Color:       "white",
		CategoryID:  category.ID,
		SizeType:    model.SizeAlpha,
		Status:      model.ProductActive,
		Variants:    []model.Variant{{Size: "XL", Stock: 1}, {Size: "S", Stock: 2}},
	}

	body, ct := productForm(t, in, map[string]string{"front.png": "png-bytes"})
	resp = s.do(t, http.MethodPost, "/api/admin/products", s.token, body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	product := decode[struct {
		Product model.Product `json:"product"`
	}](t, resp).Product

	require.Len(t, product.Images, 1)
	assert.True(t, strings.HasPrefix(product.Images[0], "/uploads/"))
	assert.Equal(t, "S", product.Variants[0].Size)

	stored, err := os.ReadFile(filepath.Join(s.uploadDir, strings.TrimPrefix(product.Images[0], "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(stored))

	// картинка раздаётся статикой
	img := s.do(t, http.MethodGet, product.Images[0], "", nil, "")
	assert.Equal(t, http.StatusOK, img.StatusCode)

	list := decode[struct {
		Products []model.Product `json:"products"`
	}](t, s.admin(t, http.MethodGet, "/api/admin/products", nil))
	assert.Len(t, list.Products, 1)

	body, ct = productForm(t, in, map[string]string{"notes.txt": "hello"})
	resp = s.do(t, http.MethodPost, "/api/admin/products", s.token, body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Only image files are allowed", decode[errorBody](t, resp).Error)

	body, ct = productForm(t, in, nil)
	resp = s.do(t, http.MethodPost, "/api/admin/products", s.token, body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "At least one product image is required", decode[errorBody](t, resp).Error)
}

func TestMetrics_RecordRoutePattern(t *testing.T) {
	s := newTestServer(t)
	s.seed(1)

	s.admin(t, http.MethodGet, "/api/admin/orders/1", nil)
	s.do(t, http.MethodGet, "/nowhere", "", nil, "")

	resp := s.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, `route="GET /api/admin/orders/{id}"`)
	assert.Contains(t, text, `route="unmatched"`)
	assert.Contains(t, text, "storefront_cache_requests_total")
}
