package model

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Category — категория товаров
// ProductCount вычисляется сервером и отдельно не хранится
type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	ProductCount int       `json:"productCount"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewCategory — данные для создания категории
type NewCategory struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
	Slug string `json:"slug" validate:"omitempty,max=100"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize заполняет slug из имени, если он не задан, и приводит его к виду [a-z0-9-]
func (c *NewCategory) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	src := c.Slug
	if strings.TrimSpace(src) == "" {
		src = c.Name
	}
	slug := nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(src)), "-")
	c.Slug = strings.Trim(slug, "-")
}

// Validate проверяет данные новой категории
func (c NewCategory) Validate() error {
	return validate.Struct(c)
}

// SizeType определяет, как интерпретировать размеры вариантов
type SizeType string

const (
	SizeAlpha   SizeType = "alpha"
	SizeNumeric SizeType = "numeric"
)

// ProductStatus — статус товара на витрине
type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

// LowStockThreshold — при остатке не выше этого значения товар считается заканчивающимся
const LowStockThreshold = 5

// CategoryRef — краткая ссылка на категорию внутри товара
type CategoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Variant — размерный вариант товара
type Variant struct {
	ID    int64  `json:"id"`
	Size  string `json:"size" validate:"required"`
	Stock int    `json:"stock" validate:"gte=0"`
}

// Product — товар каталога
type Product struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       float64       `json:"price"`
	Discount    int           `json:"discount"`
	Color       string        `json:"color"`
	CategoryID  int64         `json:"category_id"`
	Category    *CategoryRef  `json:"category,omitempty"`
	SizeType    SizeType      `json:"size_type"`
	Status      ProductStatus `json:"status"`
	SKU         string        `json:"sku"`
	Images      []string      `json:"images"`
	Variants    []Variant     `json:"variants"`
	CreatedAt   time.Time     `json:"created_at"`
}

// TotalStock — сумма остатков по всем вариантам
func (p Product) TotalStock() int {
	total := 0
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// StockLevel возвращает "out", "low" или "in"
func (p Product) StockLevel() string {
	switch total := p.TotalStock(); {
	case total == 0:
		return "out"
	case total <= LowStockThreshold:
		return "low"
	default:
		return "in"
	}
}

// NewProduct — данные для создания товара, картинки загружаются отдельно
type NewProduct struct {
	Name        string        `json:"name" validate:"required,min=3"`
	Description string        `json:"description" validate:"required,min=10"`
	Price       float64       `json:"price" validate:"gt=0"`
	Discount    int           `json:"discount" validate:"gte=0,lte=100"`
	Color       string        `json:"color" validate:"required"`
	CategoryID  int64         `json:"category_id" validate:"gt=0"`
	SizeType    SizeType      `json:"size_type" validate:"required,oneof=alpha numeric"`
	Status      ProductStatus `json:"status" validate:"required,oneof=active inactive"`
	SKU         string        `json:"sku"`
	Variants    []Variant     `json:"variants" validate:"required,gt=0,dive"`
	Images      []string      `json:"-"`
}

// Validate проверяет данные нового товара
func (p NewProduct) Validate() error {
	return validate.Struct(p)
}

var alphaRank = map[string]int{
	"XXS": 0, "XS": 1, "S": 2, "M": 3, "L": 4, "XL": 5, "XXL": 6, "XXXL": 7,
}

// SortVariants упорядочивает варианты согласно типу размеров
// числовые размеры идут по значению, буквенные — по шкале XXS..XXXL
// нераспознанные размеры уходят в конец в лексическом порядке
func SortVariants(sizeType SizeType, variants []Variant) {
	rank := func(size string) (float64, bool) {
		size = strings.ToUpper(strings.TrimSpace(size))
		if sizeType == SizeNumeric {
			f, err := strconv.ParseFloat(size, 64)
			return f, err == nil
		}
		r, ok := alphaRank[size]
		return float64(r), ok
	}

	sort.SliceStable(variants, func(i, j int) bool {
		ri, oki := rank(variants[i].Size)
		rj, okj := rank(variants[j].Size)
		switch {
		case oki && okj:
			return ri < rj
		case oki != okj:
			return oki
		default:
			return variants[i].Size < variants[j].Size
		}
	})
}
