package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/asquebay/storefront-service/internal/config"
	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/repository/postgres"
)

// классы лимитов публичных эндпоинтов
const (
	RateClassPhone = "phone"
	RateClassOrder = "order"
)

// OrderService — функции доступа к заказам
// каждая возвращает либо результат, либо *apperr.Error; админские функции
// сначала проверяют права, публичные сначала проверяют ввод, затем лимит
type OrderService struct {
	repo       OrderRepository
	authz      Authorizer
	limiter    Limiter
	limits     config.RateLimit
	maxResults uint64
	events     EventPublisher
	rateObs    RateObserver
	log        *slog.Logger
}

// NewOrderService создаёт новый экземпляр сервиса заказов
func NewOrderService(repo OrderRepository, authz Authorizer, limiter Limiter, limits config.RateLimit, search config.Search, log *slog.Logger) *OrderService {
	return &OrderService{
		repo:       repo,
		authz:      authz,
		limiter:    limiter,
		limits:     limits,
		maxResults: search.MaxResults,
		log:        log,
	}
}

// WithEvents подключает публикацию событий о заказах
func (s *OrderService) WithEvents(p EventPublisher) *OrderService {
	s.events = p
	return s
}

// WithRateObserver подключает учёт отказов лимитера
func (s *OrderService) WithRateObserver(o RateObserver) *OrderService {
	s.rateObs = o
	return s
}

// Limits возвращает бюджеты публичных эндпоинтов
func (s *OrderService) Limits() config.RateLimit { return s.limits }

// GetOrdersByPhone — публичный поиск заказов покупателя по телефону
func (s *OrderService) GetOrdersByPhone(ctx context.Context, phone string) ([]model.Order, error) {
	const op = "service.OrderService.GetOrdersByPhone"

	if !IsValidPhone(phone) {
		return nil, apperr.ValidationErr("Please enter a valid phone number")
	}
	sanitized := SanitizePhone(phone)
	log := s.log.With(slog.String("op", op), slog.String("phone", sanitized))

	if err := s.allow(log, RateClassPhone, "phone:"+sanitized, s.limits.PhoneSearch); err != nil {
		return nil, err
	}

	orders, err := s.repo.ListByPhone(ctx, sanitized)
	if err != nil {
		log.Error("failed to fetch orders by phone", slog.String("error", err.Error()))
		return nil, apperr.Wrap(fmt.Errorf("%s: %w", op, err), "Unable to fetch orders. Please try again later.")
	}
	return orders, nil
}

// GetOrderByNumber — публичный поиск заказа по номеру
func (s *OrderService) GetOrderByNumber(ctx context.Context, number string) (model.Order, error) {
	const op = "service.OrderService.GetOrderByNumber"

	normalized := NormalizeOrderNumber(number)
	if normalized == "" {
		return model.Order{}, apperr.ValidationErr("Please enter an order number")
	}
	log := s.log.With(slog.String("op", op), slog.String("order_number", normalized))

	if err := s.allow(log, RateClassOrder, "order:"+normalized, s.limits.OrderNumber); err != nil {
		return model.Order{}, err
	}

	order, err := s.repo.GetByNumber(ctx, normalized)
	if err != nil {
		if errors.Is(err, postgres.ErrOrderNotFound) {
			return model.Order{}, apperr.NotFoundErr("Order not found")
		}
		log.Error("failed to fetch order by number", slog.String("error", err.Error()))
		return model.Order{}, apperr.Wrap(fmt.Errorf("%s: %w", op, err), "Unable to fetch order. Please try again later.")
	}
	return order, nil
}

// ListOrders — страница заказов для бесконечного списка админки
func (s *OrderService) ListOrders(ctx context.Context, q model.PageQuery) (model.OrderPage, error) {
	const op = "service.OrderService.ListOrders"

	if err := s.authorize(ctx); err != nil {
		return model.OrderPage{}, err
	}
	if err := q.Validate(); err != nil {
		return model.OrderPage{}, validationErr(err)
	}

	page, err := s.repo.ListPage(ctx, q)
	if err != nil {
		s.log.Error("failed to fetch orders page",
			slog.String("op", op),
			slog.Int("page", q.Page),
			slog.String("status", q.Status),
			slog.String("error", err.Error()),
		)
		return model.OrderPage{}, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to fetch orders")
	}
	return page, nil
}

// SearchOrders ищет заказы по тексту; результат не постраничный, размер ограничен
func (s *OrderService) SearchOrders(ctx context.Context, query, status string) ([]model.Order, error) {
	const op = "service.OrderService.SearchOrders"

	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if status != "" && status != model.StatusAll && !model.OrderStatus(status).Valid() {
		return nil, apperr.ValidationErr("Invalid status filter")
	}

	orders, err := s.repo.Search(ctx, strings.TrimSpace(query), status, s.maxResults)
	if err != nil {
		s.log.Error("failed to search orders", slog.String("op", op), slog.String("error", err.Error()))
		return nil, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to search orders")
	}
	return orders, nil
}

// GetOrderStats — агрегаты по всем заказам
func (s *OrderService) GetOrderStats(ctx context.Context) (model.OrderStats, error) {
	const op = "service.OrderService.GetOrderStats"

	if err := s.authorize(ctx); err != nil {
		return model.OrderStats{}, err
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.log.Error("failed to fetch order stats", slog.String("op", op), slog.String("error", err.Error()))
		return model.OrderStats{}, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to fetch statistics")
	}
	return stats, nil
}

// GetOrderByID — заказ со всеми позициями
func (s *OrderService) GetOrderByID(ctx context.Context, id int64) (model.Order, error) {
	const op = "service.OrderService.GetOrderByID"

	if err := s.authorize(ctx); err != nil {
		return model.Order{}, err
	}
	if id <= 0 {
		return model.Order{}, apperr.ValidationErr("Invalid order id")
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		// не логируем как ошибку, если просто не найдено
		if errors.Is(err, postgres.ErrOrderNotFound) {
			return model.Order{}, apperr.NotFoundErr("Order not found")
		}
		s.log.Error("failed to fetch order", slog.String("op", op), slog.Int64("order_id", id), slog.String("error", err.Error()))
		return model.Order{}, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to fetch order")
	}
	return order, nil
}

// UpdateOrderStatus меняет статус заказа
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error) {
	const op = "service.OrderService.UpdateOrderStatus"

	if err := s.authorize(ctx); err != nil {
		return model.Order{}, err
	}
	if err := (model.StatusUpdate{OrderID: id, Status: status}).Validate(); err != nil {
		return model.Order{}, validationErr(err)
	}
	log := s.log.With(slog.String("op", op), slog.Int64("order_id", id), slog.String("status", string(status)))

	order, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, postgres.ErrOrderNotFound) {
			return model.Order{}, apperr.NotFoundErr("Order not found")
		}
		log.Error("failed to update order status", slog.String("error", err.Error()))
		return model.Order{}, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to update order status")
	}
	log.Info("order status updated")

	if s.events != nil {
		if err := s.events.OrderStatusChanged(ctx, order); err != nil {
			log.Warn("failed to publish status change", slog.String("error", err.Error()))
		}
	}
	return order, nil
}

// DeleteOrder удаляет заказ вместе с позициями
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	const op = "service.OrderService.DeleteOrder"

	if err := s.authorize(ctx); err != nil {
		return err
	}
	if id <= 0 {
		return apperr.ValidationErr("Invalid order id")
	}
	log := s.log.With(slog.String("op", op), slog.Int64("order_id", id))

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrOrderNotFound) {
			return apperr.NotFoundErr("Order not found")
		}
		log.Error("failed to delete order", slog.String("error", err.Error()))
		return apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to delete order")
	}
	log.Info("order deleted")

	if s.events != nil {
		if err := s.events.OrderDeleted(ctx, id); err != nil {
			log.Warn("failed to publish order deletion", slog.String("error", err.Error()))
		}
	}
	return nil
}

// IngestOrder сохраняет заказ, пришедший из checkout
// заказ без статуса считается новым (pending)
func (s *OrderService) IngestOrder(ctx context.Context, order model.Order) (int64, error) {
	const op = "service.OrderService.IngestOrder"

	order.OrderNumber = NormalizeOrderNumber(order.OrderNumber)
	if order.Status == "" {
		order.Status = model.StatusPending
	}
	if err := order.Validate(); err != nil {
		return 0, validationErr(err)
	}
	log := s.log.With(slog.String("op", op), slog.String("order_number", order.OrderNumber))

	id, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		if errors.Is(err, postgres.ErrOrderExists) {
			return 0, apperr.ConflictErr("Order already exists")
		}
		log.Error("failed to save order to repository", slog.String("error", err.Error()))
		return 0, apperr.Wrap(fmt.Errorf("%s: %w", op, err), "Failed to save order")
	}
	log.Info("order stored", slog.Int64("order_id", id))
	return id, nil
}

func (s *OrderService) authorize(ctx context.Context) error {
	return s.authz.CheckAdminAuth(ctx).Err()
}

// allow учитывает запрос в лимитере; при превышении возвращает RateLimited
func (s *OrderService) allow(log *slog.Logger, class, identity string, limit config.Limit) error {
	res := s.limiter.Check(identity, limit.MaxRequests, limit.Window)
	if res.Allowed {
		return nil
	}

	log.Warn("rate limit exceeded",
		slog.String("class", class),
		slog.Int("count", res.Count),
		slog.Int("retry_after", res.RetryAfterSeconds),
	)
	if s.rateObs != nil {
		s.rateObs.RateLimited(class)
	}
	return apperr.RateLimitedErr(res.RetryAfterSeconds)
}
