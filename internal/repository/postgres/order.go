package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asquebay/storefront-service/internal/model"
)

var orderColumns = []string{
	"id", "order_number", "customer_name", "customer_phone", "status", "total_price",
	"shipping_address", "COALESCE(notes, '')", "created_at", "updated_at",
}

// querier — общий интерфейс пула и транзакции
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OrderRepository инкапсулирует логику работы с заказами в БД
type OrderRepository struct {
	db *pgxpool.Pool
	sq squirrel.StatementBuilderType
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{
		db: db,
		// использую плейсхолдеры в стиле PostgreSQL ($1, $2, $3,...)
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// statusFilter не фильтрует по статусу для пустого значения и "all"
func statusFilter(b squirrel.SelectBuilder, status string) squirrel.SelectBuilder {
	if status == "" || status == model.StatusAll {
		return b
	}
	return b.Where(squirrel.Eq{"status": status})
}

// ListPage возвращает страницу заказов, новые первыми
func (r *OrderRepository) ListPage(ctx context.Context, q model.PageQuery) (model.OrderPage, error) {
	const op = "repository.postgres.order.ListPage"

	sql, args, err := statusFilter(r.sq.Select("COUNT(*)").From("orders"), q.Status).ToSql()
	if err != nil {
		return model.OrderPage{}, fmt.Errorf("%s: failed to build count query: %w", op, err)
	}
	var total int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return model.OrderPage{}, fmt.Errorf("%s: failed to count orders: %w", op, err)
	}

	from := q.Page * q.Limit
	sql, args, err = statusFilter(r.sq.Select(orderColumns...).From("orders"), q.Status).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(q.Limit)).
		Offset(uint64(from)).
		ToSql()
	if err != nil {
		return model.OrderPage{}, fmt.Errorf("%s: failed to build page query: %w", op, err)
	}

	orders, err := r.queryOrders(ctx, sql, args...)
	if err != nil {
		return model.OrderPage{}, fmt.Errorf("%s: %w", op, err)
	}

	page := model.OrderPage{Orders: orders, TotalCount: total}
	// последняя строка страницы: from+limit-1; дальше есть данные, если она не последняя
	if to := from + q.Limit - 1; to < total-1 {
		next := q.Page + 1
		page.HasMore = true
		page.NextPage = &next
	}
	return page, nil
}

// Search ищет заказы по имени, номеру и телефону без учёта регистра
func (r *OrderRepository) Search(ctx context.Context, query, status string, maxResults uint64) ([]model.Order, error) {
	const op = "repository.postgres.order.Search"

	b := statusFilter(r.sq.Select(orderColumns...).From("orders"), status).
		OrderBy("created_at DESC", "id DESC").
		Limit(maxResults)
	if text := strings.TrimSpace(query); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		b = b.Where(squirrel.Or{
			squirrel.ILike{"customer_name": pattern},
			squirrel.ILike{"order_number": pattern},
			squirrel.ILike{"customer_phone": pattern},
		})
	}

	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build search query: %w", op, err)
	}
	orders, err := r.queryOrders(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// Stats считает заказы по статусам и выручку без отменённых заказов
func (r *OrderRepository) Stats(ctx context.Context) (model.OrderStats, error) {
	const op = "repository.postgres.order.Stats"

	sql, args, err := r.sq.Select("status", "COUNT(*)", "COALESCE(SUM(total_price), 0)").
		From("orders").
		GroupBy("status").
		ToSql()
	if err != nil {
		return model.OrderStats{}, fmt.Errorf("%s: failed to build stats query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return model.OrderStats{}, fmt.Errorf("%s: failed to query stats: %w", op, err)
	}
	defer rows.Close()

	var stats model.OrderStats
	for rows.Next() {
		var (
			status  model.OrderStatus
			count   int
			revenue float64
		)
		if err := rows.Scan(&status, &count, &revenue); err != nil {
			return model.OrderStats{}, fmt.Errorf("%s: failed to scan stats row: %w", op, err)
		}
		stats.Add(status, count)
		if status != model.StatusCancelled {
			stats.TotalRevenue += revenue
		}
	}
	if err := rows.Err(); err != nil {
		return model.OrderStats{}, fmt.Errorf("%s: %w", op, err)
	}
	return stats, nil
}

// GetByID извлекает один заказ вместе с позициями
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (model.Order, error) {
	const op = "repository.postgres.order.GetByID"
	return r.getOne(ctx, op, squirrel.Eq{"id": id})
}

// GetByNumber ищет заказ по номеру (номер уже приведён к верхнему регистру)
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (model.Order, error) {
	const op = "repository.postgres.order.GetByNumber"
	return r.getOne(ctx, op, squirrel.Eq{"order_number": number})
}

func (r *OrderRepository) getOne(ctx context.Context, op string, where squirrel.Eq) (model.Order, error) {
	sql, args, err := r.sq.Select(orderColumns...).From("orders").Where(where).ToSql()
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	order, err := scanOrder(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		return model.Order{}, fmt.Errorf("%s: failed to query order: %w", op, err)
	}

	orders := []model.Order{order}
	if err := r.attachItems(ctx, r.db, orders); err != nil {
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return orders[0], nil
}

// ListByPhone возвращает заказы покупателя, новые первыми
func (r *OrderRepository) ListByPhone(ctx context.Context, phone string) ([]model.Order, error) {
	const op = "repository.postgres.order.ListByPhone"

	sql, args, err := r.sq.Select(orderColumns...).
		From("orders").
		Where(squirrel.Eq{"customer_phone": phone}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}
	orders, err := r.queryOrders(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orders, nil
}

// UpdateStatus меняет статус заказа и возвращает обновлённый заказ
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) (model.Order, error) {
	const op = "repository.postgres.order.UpdateStatus"

	sql, args, err := r.sq.Update("orders").
		Set("status", status).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(orderColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Order{}, fmt.Errorf("%s: failed to build update query: %w", op, err)
	}

	order, err := scanOrder(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		return model.Order{}, fmt.Errorf("%s: failed to update order: %w", op, err)
	}

	orders := []model.Order{order}
	if err := r.attachItems(ctx, r.db, orders); err != nil {
		return model.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return orders[0], nil
}

// Delete удаляет заказ вместе с позициями в одной транзакции
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	const op = "repository.postgres.order.Delete"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback(ctx)

	sql, args, err := r.sq.Delete("order_items").Where(squirrel.Eq{"order_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build items delete query: %w", op, err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%s: failed to delete order items: %w", op, err)
	}

	sql, args, err = r.sq.Delete("orders").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build order delete query: %w", op, err)
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: failed to delete order: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
	}

	return tx.Commit(ctx)
}

// CreateOrder сохраняет заказ из checkout вместе с позициями в одной транзакции
// повторная доставка того же номера заказа возвращает ErrOrderExists
func (r *OrderRepository) CreateOrder(ctx context.Context, order model.Order) (int64, error) {
	const op = "repository.postgres.order.CreateOrder"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	// гарантируем откат транзакции в случае любой ошибки
	defer tx.Rollback(ctx)

	sql, args, err := r.sq.Insert("orders").
		Columns("order_number", "customer_name", "customer_phone", "status", "total_price", "shipping_address", "notes").
		Values(order.OrderNumber, order.CustomerName, order.CustomerPhone, order.Status, order.TotalPrice, order.ShippingAddress, order.Notes).
		Suffix("ON CONFLICT (order_number) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build orders insert query: %w", op, err)
	}

	var id int64
	if err := tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%s: %s: %w", op, order.OrderNumber, ErrOrderExists)
		}
		return 0, fmt.Errorf("%s: failed to insert into orders: %w", op, err)
	}

	items := r.sq.Insert("order_items").Columns(
		"order_id", "product_id", "product_name", "product_color", "product_sku",
		"size", "quantity", "unit_price", "discount", "subtotal",
	)
	for _, item := range order.Items {
		items = items.Values(
			id, item.ProductID, item.ProductName, item.ProductColor, item.ProductSKU,
			item.Size, item.Quantity, item.UnitPrice, item.Discount, item.Subtotal,
		)
	}
	sql, args, err = items.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to build items insert query: %w", op, err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return 0, fmt.Errorf("%s: failed to insert order items: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s: failed to commit: %w", op, err)
	}
	return id, nil
}

func (r *OrderRepository) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.attachItems(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems одним запросом подгружает позиции для всех заказов
func (r *OrderRepository) attachItems(ctx context.Context, q querier, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
		orders[i].Items = []model.OrderItem{}
	}

	sql, args, err := r.sq.Select(
		"order_id", "id", "COALESCE(product_id, 0)", "product_name", "COALESCE(product_color, '')",
		"COALESCE(product_sku, '')", "COALESCE(size, '')", "quantity", "unit_price", "discount", "subtotal",
	).
		From("order_items").
		Where("order_id = ANY(?)", ids).
		OrderBy("id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build items query: %w", err)
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			item    model.OrderItem
		)
		err := rows.Scan(
			&orderID, &item.ID, &item.ProductID, &item.ProductName, &item.ProductColor,
			&item.ProductSKU, &item.Size, &item.Quantity, &item.UnitPrice, &item.Discount, &item.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("failed to scan item row: %w", err)
		}
		if i, ok := byID[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerName, &o.CustomerPhone, &o.Status, &o.TotalPrice,
		&o.ShippingAddress, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}
