package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/repository/postgres"
	"github.com/asquebay/storefront-service/internal/storage"
)

// CatalogService — категории и товары админки
type CatalogService struct {
	repo   CatalogRepository
	authz  Authorizer
	images storage.Storage
	log    *slog.Logger
}

func NewCatalogService(repo CatalogRepository, authz Authorizer, images storage.Storage, log *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		authz:  authz,
		images: images,
		log:    log,
	}
}

// ListCategories возвращает категории с числом товаров
func (s *CatalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	const op = "service.CatalogService.ListCategories"

	if err := s.authz.CheckAdminAuth(ctx).Err(); err != nil {
		return nil, err
	}

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		s.log.Error("failed to fetch categories", slog.String("op", op), slog.String("error", err.Error()))
		return nil, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to fetch categories")
	}
	return categories, nil
}

// AddCategory создаёт категорию; slug по умолчанию выводится из имени
func (s *CatalogService) AddCategory(ctx context.Context, in model.NewCategory) (model.Category, error) {
	const op = "service.CatalogService.AddCategory"

	if err := s.authz.CheckAdminAuth(ctx).Err(); err != nil {
		return model.Category{}, err
	}
	in.Normalize()
	if err := in.Validate(); err != nil {
		return model.Category{}, validationErr(err)
	}
	if in.Slug == "" {
		return model.Category{}, apperr.ValidationErr("Slug must contain letters or digits")
	}
	log := s.log.With(slog.String("op", op), slog.String("slug", in.Slug))

	category, err := s.repo.AddCategory(ctx, in)
	if err != nil {
		if errors.Is(err, postgres.ErrCategoryExists) {
			return model.Category{}, apperr.ConflictErr("A category with this slug already exists")
		}
		log.Error("failed to add category", slog.String("error", err.Error()))
		return model.Category{}, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to add category")
	}
	log.Info("category added", slog.Int64("category_id", category.ID))
	return category, nil
}

// DeleteCategory удаляет категорию, если к ней не привязан ни один товар
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	const op = "service.CatalogService.DeleteCategory"

	if err := s.authz.CheckAdminAuth(ctx).Err(); err != nil {
		return err
	}
	if id <= 0 {
		return apperr.ValidationErr("Invalid category id")
	}
	log := s.log.With(slog.String("op", op), slog.Int64("category_id", id))

	err := s.repo.DeleteCategory(ctx, id)
	var inUse *postgres.CategoryInUseError
	switch {
	case err == nil:
		log.Info("category deleted")
		return nil
	case errors.As(err, &inUse):
		return apperr.ConflictErr(fmt.Sprintf("Cannot delete category. %d product(s) are using it.", inUse.Count))
	case errors.Is(err, postgres.ErrCategoryNotFound):
		return apperr.NotFoundErr("Category not found")
	default:
		log.Error("failed to delete category", slog.String("error", err.Error()))
		return apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to delete category")
	}
}

// ListProducts возвращает товары, новые первыми
func (s *CatalogService) ListProducts(ctx context.Context) ([]model.Product, error) {
	const op = "service.CatalogService.ListProducts"

	if err := s.authz.CheckAdminAuth(ctx).Err(); err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		s.log.Error("failed to fetch products", slog.String("op", op), slog.String("error", err.Error()))
		return nil, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to fetch products")
	}
	return products, nil
}

// AddProduct загружает картинки и сохраняет товар с вариантами
// если не загрузилась хотя бы одна картинка, товар не создаётся
func (s *CatalogService) AddProduct(ctx context.Context, in model.NewProduct, images []storage.Image) (model.Product, error) {
	const op = "service.CatalogService.AddProduct"

	if err := s.authz.CheckAdminAuth(ctx).Err(); err != nil {
		return model.Product{}, err
	}
	if len(images) == 0 {
		return model.Product{}, apperr.ValidationErr("At least one product image is required")
	}
	if err := in.Validate(); err != nil {
		return model.Product{}, validationErr(err)
	}
	model.SortVariants(in.SizeType, in.Variants)
	log := s.log.With(slog.String("op", op), slog.String("name", in.Name))

	urls, err := storage.UploadAll(ctx, s.images, images)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedImage) {
			return model.Product{}, apperr.ValidationErr("Only image files are allowed")
		}
		log.Error("failed to upload product images", slog.String("error", err.Error()))
		return model.Product{}, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to upload images")
	}
	in.Images = urls

	product, err := s.repo.CreateProduct(ctx, in)
	if err != nil {
		// загруженные картинки остаются в хранилище, их подберёт ручная чистка
		if errors.Is(err, postgres.ErrCategoryNotFound) {
			return model.Product{}, apperr.ValidationErr("Category not found")
		}
		log.Error("failed to create product", slog.String("error", err.Error()))
		return model.Product{}, apperr.Cause(fmt.Errorf("%s: %w", op, err), "Failed to create product")
	}
	log.Info("product created", slog.Int64("product_id", product.ID), slog.Int("images", len(urls)))
	return product, nil
}
