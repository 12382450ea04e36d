package main

import (
	"fmt"
	"time"

	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/repository/memory"
)

const demoAdminID = "demo-admin"

var demoNames = []string{
	"Anna Petrova", "Ivan Sidorov", "Maria Volkova", "Oleg Smirnov",
	"Elena Kuznetsova", "Dmitry Popov", "Olga Morozova", "Sergey Lebedev",
}

// seedDemo заполняет хранилище заказами, категориями и товарами
// и возвращает id демо-администратора
func seedDemo(store *memory.Store) string {
	store.PutAdmin(model.AdminUser{ID: demoAdminID, Email: "admin@example.com", FullName: "Demo Admin"})

	base := time.Now().Add(-120 * time.Hour)
	for i := 1; i <= 120; i++ {
		qty := 1 + i%3
		price := float64(20 + (i*7)%80)
		store.PutOrder(model.Order{
			OrderNumber:     fmt.Sprintf("ORD-%04d", i),
			CustomerName:    demoNames[i%len(demoNames)],
			CustomerPhone:   fmt.Sprintf("+7 900 %03d-%02d-%02d", i%1000, i%100, (i*3)%100),
			Status:          model.OrderStatuses[i%len(model.OrderStatuses)],
			TotalPrice:      price * float64(qty),
			ShippingAddress: fmt.Sprintf("Lenina st, %d", i),
			CreatedAt:       base.Add(time.Duration(i) * time.Hour),
			Items: []model.OrderItem{{
				ProductName: "Linen shirt",
				Size:        "M",
				Quantity:    qty,
				UnitPrice:   price,
				Subtotal:    price * float64(qty),
			}},
		})
	}

	categories := []model.Category{
		{ID: 1, Name: "Shirts", Slug: "shirts"},
		{ID: 2, Name: "Trousers", Slug: "trousers"},
		{ID: 3, Name: "Accessories", Slug: "accessories"},
	}
	for _, c := range categories {
		store.PutCategory(c)
	}

	store.PutProduct(model.Product{
		Name: "Linen shirt", Description: "Loose fit summer shirt", Price: 49.9,
		Color: "white", CategoryID: 1, SizeType: model.SizeAlpha, Status: model.ProductActive,
		Images:   []string{"/uploads/linen-shirt.jpg"},
		Variants: []model.Variant{{ID: 1, Size: "S", Stock: 2}, {ID: 2, Size: "M", Stock: 1}},
	})
	store.PutProduct(model.Product{
		Name: "Chino trousers", Description: "Straight cut cotton chinos", Price: 69,
		Color: "beige", CategoryID: 2, SizeType: model.SizeNumeric, Status: model.ProductActive,
		Images:   []string{"/uploads/chinos.jpg"},
		Variants: []model.Variant{{ID: 3, Size: "30", Stock: 10}, {ID: 4, Size: "32", Stock: 7}},
	})
	return demoAdminID
}
