package querykey

import "strconv"

// ключи заказов; общий префикс Orders позволяет снять снимок
// или инвалидировать все заказы разом

func OrdersAll() Key { return Prefix(Orders) }

func OrdersInfinitePrefix() Key { return Prefix(Orders, string(Infinite)) }

func OrdersSearchPrefix() Key { return Prefix(Orders, string(Search)) }

// OrdersInfinite — постраничный список с фильтром по статусу
func OrdersInfinite(status string) Key {
	return Make(Orders, Infinite, Filters{"status": status})
}

// OrdersSearch — поиск по тексту; текст не нормализуется по регистру
func OrdersSearch(query, status string) Key {
	return Make(Orders, Search, Filters{"status": status}, query)
}

func OrderDetail(id int64) Key {
	return Make(Orders, Detail, nil, strconv.FormatInt(id, 10))
}

func OrdersByPhone(phone string) Key {
	return Make(Orders, Customer, nil, "phone", phone)
}

func OrderByNumber(number string) Key {
	return Make(Orders, Customer, nil, "orderNumber", number)
}

// OrderStatsKey — агрегаты по заказам; производные данные,
// инвалидируются любой мутацией заказов
func OrderStatsKey() Key {
	return Make(OrderStats, Stats, nil)
}

func CategoriesAll() Key { return Prefix(Categories) }

func CategoriesList() Key {
	return Make(Categories, List, nil)
}

func ProductsAll() Key { return Prefix(Products) }

func ProductsList(filters Filters) Key {
	return Make(Products, List, filters)
}

func ProductDetail(id int64) Key {
	return Make(Products, Detail, nil, strconv.FormatInt(id, 10))
}
