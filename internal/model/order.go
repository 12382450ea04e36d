package model

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// OrderStatus — статус заказа, набор значений фиксирован
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// StatusAll используется фильтрами как "без фильтра по статусу"
const StatusAll = "all"

// OrderStatuses перечисляет статусы в порядке жизненного цикла
var OrderStatuses = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

// Valid сообщает, входит ли статус в допустимый набор
func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Order представляет заказ вместе с позициями
// заказы создаются снаружи (checkout), здесь меняются только статус и удаление
type Order struct {
	ID              int64       `json:"id"`
	OrderNumber     string      `json:"order_number" validate:"required"`
	CustomerName    string      `json:"customer_name" validate:"required"`
	CustomerPhone   string      `json:"customer_phone" validate:"required"`
	Status          OrderStatus `json:"status" validate:"required,oneof=pending confirmed out_for_delivery delivered cancelled"`
	TotalPrice      float64     `json:"total_price" validate:"gte=0"`
	ShippingAddress string      `json:"shipping_address" validate:"required"`
	Notes           string      `json:"notes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	Items           []OrderItem `json:"order_items" validate:"required,gt=0,dive"`
}

// OrderItem — позиция заказа, после создания не меняется
type OrderItem struct {
	ID           int64   `json:"id"`
	ProductID    int64   `json:"product_id"`
	ProductName  string  `json:"product_name" validate:"required"`
	ProductColor string  `json:"product_color"`
	ProductSKU   string  `json:"product_sku"`
	Size         string  `json:"size"`
	Quantity     int     `json:"quantity" validate:"gt=0"`
	UnitPrice    float64 `json:"unit_price" validate:"gte=0"`
	Discount     int     `json:"discount" validate:"gte=0,lte=100"`
	Subtotal     float64 `json:"subtotal" validate:"gte=0"`
}

// OrderStats — агрегаты по всем заказам, считаются на стороне БД
type OrderStats struct {
	Total          int     `json:"total"`
	Pending        int     `json:"pending"`
	Confirmed      int     `json:"confirmed"`
	OutForDelivery int     `json:"out_for_delivery"`
	Delivered      int     `json:"delivered"`
	Cancelled      int     `json:"cancelled"`
	TotalRevenue   float64 `json:"totalRevenue"`
}

// Add учитывает в статистике count заказов со статусом status
func (s *OrderStats) Add(status OrderStatus, count int) {
	s.Total += count
	switch status {
	case StatusPending:
		s.Pending += count
	case StatusConfirmed:
		s.Confirmed += count
	case StatusOutForDelivery:
		s.OutForDelivery += count
	case StatusDelivered:
		s.Delivered += count
	case StatusCancelled:
		s.Cancelled += count
	}
}

// OrderPage — одна страница постраничной выборки заказов
type OrderPage struct {
	Orders     []Order `json:"orders"`
	TotalCount int     `json:"totalCount"`
	HasMore    bool    `json:"hasMore"`
	NextPage   *int    `json:"nextPage"`
}

// PageQuery — параметры постраничной выборки
type PageQuery struct {
	Page   int    `validate:"gte=0"`
	Limit  int    `validate:"gt=0"`
	Status string `validate:"omitempty,oneof=all pending confirmed out_for_delivery delivered cancelled"`
}

// StatusUpdate — запрос на смену статуса заказа
type StatusUpdate struct {
	OrderID int64       `validate:"gt=0"`
	Status  OrderStatus `validate:"required,oneof=pending confirmed out_for_delivery delivered cancelled"`
}

var validate = validator.New()

// Validate проверяет корректность структуры Order на основе тегов validate
func (o *Order) Validate() error {
	return validate.Struct(o)
}

// Validate проверяет параметры страницы
func (q PageQuery) Validate() error {
	return validate.Struct(q)
}

// Validate проверяет запрос на смену статуса
func (u StatusUpdate) Validate() error {
	return validate.Struct(u)
}
