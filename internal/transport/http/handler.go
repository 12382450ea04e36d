package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/asquebay/storefront-service/internal/auth"
	"github.com/asquebay/storefront-service/internal/config"
	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/repository/cache"
	"github.com/asquebay/storefront-service/internal/storage"
)

// PublicOrders — публичные поиски заказов покупателем
// хэндлер не зависит от конкретной реализации сервиса
type PublicOrders interface {
	GetOrdersByPhone(ctx context.Context, phone string) ([]model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (model.Order, error)
	Limits() config.RateLimit
}

// Admin — закэшированные чтения и мутации админки
type Admin interface {
	OrdersPage(ctx context.Context, status string, page int) (cache.Page, error)
	SearchOrders(ctx context.Context, query, status string) ([]model.Order, error)
	OrderStats(ctx context.Context) (model.OrderStats, error)
	Order(ctx context.Context, id int64) (model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	Categories(ctx context.Context) ([]model.Category, error)
	AddCategory(ctx context.Context, in model.NewCategory) (model.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	Products(ctx context.Context) ([]model.Product, error)
	AddProduct(ctx context.Context, in model.NewProduct, images []storage.Image) (model.Product, error)
}

// Authenticator проверяет администратора и запоминает его в контексте
type Authenticator interface {
	Authenticate(ctx context.Context) (context.Context, auth.Result)
}

// Observer учитывает обработанные запросы (метрики)
type Observer interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// Handler обрабатывает HTTP-запросы
type Handler struct {
	public PublicOrders
	admin  Admin
	authn  Authenticator
	obs    Observer
	log    *slog.Logger
	mux    *http.ServeMux
}

// Option подключает к хэндлеру необязательные части
type Option func(*Handler)

// WithMetrics отдаёт метрики по path и учитывает каждый запрос
func WithMetrics(path string, metrics http.Handler, obs Observer) Option {
	return func(h *Handler) {
		h.obs = obs
		h.mux.Handle("GET "+path, metrics)
	}
}

// WithUploads раздаёт загруженные картинки из локального каталога
func WithUploads(urlPrefix, dir string) Option {
	return func(h *Handler) {
		prefix := "/" + strings.Trim(urlPrefix, "/") + "/"
		h.mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(dir))))
	}
}

// NewHandler создает новый экземпляр Handler
func NewHandler(public PublicOrders, admin Admin, authn Authenticator, log *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		public: public,
		admin:  admin,
		authn:  authn,
		log:    log,
		mux:    http.NewServeMux(),
	}
	h.registerRoutes()
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP делает Handler совместимым с http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.obs == nil {
		h.mux.ServeHTTP(w, r)
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)

	// шаблон маршрута мукс проставляет в тот же запрос
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	h.obs.ObserveHTTP(r.Method, route, rec.status, time.Since(start))
}

// registerRoutes регистрирует все эндпоинты
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /healthz", h.healthz)

	// публичные поиски, ограничены лимитером
	h.mux.HandleFunc("GET /api/orders/phone/{phone}", h.ordersByPhone)
	h.mux.HandleFunc("GET /api/orders/number/{number}", h.orderByNumber)

	// админка, только для администраторов
	h.mux.Handle("GET /api/admin/orders", h.requireAdmin(h.listOrders))
	h.mux.Handle("GET /api/admin/orders/stats", h.requireAdmin(h.orderStats))
	h.mux.Handle("GET /api/admin/orders/{id}", h.requireAdmin(h.orderByID))
	h.mux.Handle("PATCH /api/admin/orders/{id}/status", h.requireAdmin(h.updateOrderStatus))
	h.mux.Handle("DELETE /api/admin/orders/{id}", h.requireAdmin(h.deleteOrder))

	h.mux.Handle("GET /api/admin/categories", h.requireAdmin(h.listCategories))
	h.mux.Handle("POST /api/admin/categories", h.requireAdmin(h.addCategory))
	h.mux.Handle("DELETE /api/admin/categories/{id}", h.requireAdmin(h.deleteCategory))

	h.mux.Handle("GET /api/admin/products", h.requireAdmin(h.listProducts))
	h.mux.Handle("POST /api/admin/products", h.requireAdmin(h.addProduct))
}

// requireAdmin пропускает только администраторов
// проверенный администратор кладётся в контекст, сервис повторно его не ищет
func (h *Handler) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithToken(r.Context(), auth.BearerToken(r.Header.Get("Authorization")))
		ctx, res := h.authn.Authenticate(ctx)
		if !res.Authorized {
			h.respondError(w, r, res.Err())
			return
		}
		next(w, r.WithContext(ctx))
	})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	h.respondOK(w, http.StatusOK, envelope{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
