package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asquebay/storefront-service/internal/model"
)

// CatalogRepository — категории и товары
type CatalogRepository struct {
	db *pgxpool.Pool
	sq squirrel.StatementBuilderType
}

func NewCatalogRepository(db *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ListCategories возвращает категории по имени вместе с числом товаров
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	const op = "repository.postgres.catalog.ListCategories"

	sql, args, err := r.sq.Select("c.id", "c.name", "c.slug", "c.created_at", "COUNT(p.id)").
		From("categories c").
		LeftJoin("products p ON p.category_id = c.id").
		GroupBy("c.id").
		OrderBy("c.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query categories: %w", op, err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt, &c.ProductCount); err != nil {
			return nil, fmt.Errorf("%s: failed to scan category row: %w", op, err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return categories, nil
}

// AddCategory создаёт категорию; slug уникален
func (r *CatalogRepository) AddCategory(ctx context.Context, in model.NewCategory) (model.Category, error) {
	const op = "repository.postgres.catalog.AddCategory"

	sql, args, err := r.sq.Insert("categories").
		Columns("name", "slug").
		Values(in.Name, in.Slug).
		Suffix("RETURNING id, name, slug, created_at").
		ToSql()
	if err != nil {
		return model.Category{}, fmt.Errorf("%s: failed to build insert query: %w", op, err)
	}

	var c model.Category
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
		if pgCode(err) == codeUniqueViolation {
			return model.Category{}, fmt.Errorf("%s: %s: %w", op, in.Slug, ErrCategoryExists)
		}
		return model.Category{}, fmt.Errorf("%s: failed to insert category: %w", op, err)
	}
	return c, nil
}

// DeleteCategory удаляет категорию, если её не использует ни один товар
// проверка и удаление идут в одной транзакции
func (r *CatalogRepository) DeleteCategory(ctx context.Context, id int64) error {
	const op = "repository.postgres.catalog.DeleteCategory"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback(ctx)

	sql, args, err := r.sq.Select("COUNT(*)").From("products").Where(squirrel.Eq{"category_id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build count query: %w", op, err)
	}
	var count int
	if err := tx.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return fmt.Errorf("%s: failed to count products: %w", op, err)
	}
	if count > 0 {
		return fmt.Errorf("%s: %w", op, &CategoryInUseError{Count: count})
	}

	sql, args, err = r.sq.Delete("categories").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("%s: failed to build delete query: %w", op, err)
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return fmt.Errorf("%s: %w", op, &CategoryInUseError{Count: 1})
		}
		return fmt.Errorf("%s: failed to delete category: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrCategoryNotFound)
	}

	return tx.Commit(ctx)
}

// ListProducts возвращает товары, новые первыми, с категорией и вариантами
func (r *CatalogRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	const op = "repository.postgres.catalog.ListProducts"

	sql, args, err := r.sq.Select(
		"p.id", "p.name", "p.description", "p.price", "p.discount", "p.color", "p.category_id",
		"p.size_type", "p.status", "COALESCE(p.sku, '')", "p.images", "p.created_at",
		"c.id", "c.name", "c.slug",
	).
		From("products p").
		LeftJoin("categories c ON c.id = p.category_id").
		OrderBy("p.created_at DESC", "p.id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to query products: %w", op, err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		var (
			p       model.Product
			catID   *int64
			catName *string
			catSlug *string
		)
		err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Price, &p.Discount, &p.Color, &p.CategoryID,
			&p.SizeType, &p.Status, &p.SKU, &p.Images, &p.CreatedAt,
			&catID, &catName, &catSlug,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan product row: %w", op, err)
		}
		if catID != nil {
			p.Category = &model.CategoryRef{ID: *catID, Name: deref(catName), Slug: deref(catSlug)}
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rows.Close()

	if err := r.attachVariants(ctx, products); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return products, nil
}

// CreateProduct сохраняет товар и его варианты в одной транзакции
// картинки к этому моменту уже загружены
func (r *CatalogRepository) CreateProduct(ctx context.Context, in model.NewProduct) (model.Product, error) {
	const op = "repository.postgres.catalog.CreateProduct"

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Product{}, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback(ctx)

	sql, args, err := r.sq.Insert("products").
		Columns("name", "description", "price", "discount", "color", "category_id", "size_type", "status", "sku", "images").
		Values(in.Name, in.Description, in.Price, in.Discount, in.Color, in.CategoryID, in.SizeType, in.Status, in.SKU, in.Images).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return model.Product{}, fmt.Errorf("%s: failed to build product insert query: %w", op, err)
	}

	p := model.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Discount:    in.Discount,
		Color:       in.Color,
		CategoryID:  in.CategoryID,
		SizeType:    in.SizeType,
		Status:      in.Status,
		SKU:         in.SKU,
		Images:      in.Images,
	}
	if err := tx.QueryRow(ctx, sql, args...).Scan(&p.ID, &p.CreatedAt); err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return model.Product{}, fmt.Errorf("%s: %w", op, ErrCategoryNotFound)
		}
		return model.Product{}, fmt.Errorf("%s: failed to insert product: %w", op, err)
	}

	variants := r.sq.Insert("product_variants").Columns("product_id", "size", "stock").Suffix("RETURNING id, size, stock")
	for _, v := range in.Variants {
		variants = variants.Values(p.ID, v.Size, v.Stock)
	}
	sql, args, err = variants.ToSql()
	if err != nil {
		return model.Product{}, fmt.Errorf("%s: failed to build variants insert query: %w", op, err)
	}
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return model.Product{}, fmt.Errorf("%s: failed to insert variants: %w", op, err)
	}
	for rows.Next() {
		var v model.Variant
		if err := rows.Scan(&v.ID, &v.Size, &v.Stock); err != nil {
			rows.Close()
			return model.Product{}, fmt.Errorf("%s: failed to scan variant: %w", op, err)
		}
		p.Variants = append(p.Variants, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Product{}, fmt.Errorf("%s: failed to insert variants: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Product{}, fmt.Errorf("%s: failed to commit: %w", op, err)
	}
	model.SortVariants(p.SizeType, p.Variants)
	return p, nil
}

func (r *CatalogRepository) attachVariants(ctx context.Context, products []model.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]int64, len(products))
	byID := make(map[int64]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		byID[p.ID] = i
		products[i].Variants = []model.Variant{}
	}

	sql, args, err := r.sq.Select("product_id", "id", "size", "stock").
		From("product_variants").
		Where("product_id = ANY(?)", ids).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build variants query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int64
			v         model.Variant
		)
		if err := rows.Scan(&productID, &v.ID, &v.Size, &v.Stock); err != nil {
			return fmt.Errorf("failed to scan variant row: %w", err)
		}
		if i, ok := byID[productID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range products {
		model.SortVariants(products[i].SizeType, products[i].Variants)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
