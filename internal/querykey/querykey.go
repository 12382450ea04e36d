// Package querykey строит стабильные иерархические ключи для кэша запросов.
//
// Ключ — упорядоченный набор частей: сущность, вариант запроса,
// позиционные параметры и нормализованные фильтры. Логически одинаковые
// запросы всегда дают равные ключи, разные запросы не пересекаются.
package querykey

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Entity — вид кэшируемых данных
type Entity string

const (
	Orders     Entity = "orders"
	OrderStats Entity = "order-stats"
	Categories Entity = "categories"
	Products   Entity = "products"
)

// Variant — вид запроса внутри сущности
type Variant string

const (
	List     Variant = "list"
	Infinite Variant = "infinite"
	Search   Variant = "search"
	Detail   Variant = "detail"
	Stats    Variant = "stats"
	Customer Variant = "customer"
)

// Filters — фильтры запроса; nil, пустая строка и nil-указатель
// считаются одним и тем же "не задано"
type Filters map[string]any

// Key — ключ кэша; сравнивается через String или Equal
type Key struct {
	parts []string
}

// Make строит ключ вида (entity, variant, params..., filters)
// фильтры включаются всегда, даже пустые, чтобы ключи с фильтрами и без
// не отличались по длине
func Make(entity Entity, variant Variant, filters Filters, params ...string) Key {
	parts := make([]string, 0, 3+len(params))
	parts = append(parts, string(entity), string(variant))
	parts = append(parts, params...)
	parts = append(parts, normalize(filters))
	return Key{parts: parts}
}

// Prefix строит ключ-префикс для групповых операций (инвалидация, снимки)
func Prefix(entity Entity, rest ...string) Key {
	parts := make([]string, 0, 1+len(rest))
	parts = append(parts, string(entity))
	parts = append(parts, rest...)
	return Key{parts: parts}
}

// Entity возвращает сущность ключа
func (k Key) Entity() Entity {
	if len(k.parts) == 0 {
		return ""
	}
	return Entity(k.parts[0])
}

// Variant возвращает вариант запроса, если он есть
func (k Key) Variant() Variant {
	if len(k.parts) < 2 {
		return ""
	}
	return Variant(k.parts[1])
}

// HasPrefix сообщает, начинается ли ключ с частей prefix
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix.parts) > len(k.parts) {
		return false
	}
	for i, p := range prefix.parts {
		if k.parts[i] != p {
			return false
		}
	}
	return true
}

// Equal сравнивает ключи поэлементно
func (k Key) Equal(other Key) bool {
	return len(k.parts) == len(other.parts) && k.HasPrefix(other)
}

// IsZero сообщает, что ключ пустой
func (k Key) IsZero() bool {
	return len(k.parts) == 0
}

// String возвращает однозначное представление ключа, пригодное как ключ map
func (k Key) String() string {
	b, _ := json.Marshal(k.parts)
	return string(b)
}

// normalize кодирует фильтры детерминированно:
// незаданные значения выкидываются, имена сортируются,
// типы значений сохраняются, поэтому 5 и "5" дают разные ключи
func normalize(filters Filters) string {
	names := make([]string, 0, len(filters))
	for name, v := range filters {
		if unset(v) != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(name))
		sb.WriteByte(':')
		sb.WriteString(encode(unset(filters[name])))
	}
	sb.WriteByte('}')
	return sb.String()
}

func unset(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return nil
		}
		return s
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return unset(rv.Elem().Interface())
	case reflect.Slice, reflect.Map:
		// nil-срез и nil-карта — тоже "не задано"; пустые, но не nil, остаются значениями
		if rv.IsNil() {
			return nil
		}
	}
	if rv.Kind() == reflect.String && rv.Len() == 0 {
		return nil
	}
	return v
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return strconv.Quote(fmt.Sprintf("%T:%v", v, v))
	}
	return string(b)
}
