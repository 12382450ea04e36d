package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/asquebay/storefront-service/internal/config"
)

// ErrUnsupportedImage — расширение файла не похоже на картинку
var ErrUnsupportedImage = errors.New("unsupported image type")

// Image — загружаемый файл картинки товара
type Image struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploaded — ключ объекта в хранилище и его публичный адрес
type Uploaded struct {
	Key string
	URL string
}

// Storage — хранилище картинок товаров
type Storage interface {
	Put(ctx context.Context, img Image) (Uploaded, error)
	Delete(ctx context.Context, key string) error
}

// FromConfig выбирает драйвер хранилища по конфигу
func FromConfig(ctx context.Context, cfg config.Storage) (Storage, error) {
	const op = "storage.FromConfig"

	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.LocalDir, cfg.LocalURL), nil
	case "s3":
		if cfg.S3Region == "" || cfg.S3Bucket == "" || cfg.PublicBaseURL == "" {
			return nil, fmt.Errorf("%s: s3 driver requires region, bucket and public base url", op)
		}
		s, err := NewS3(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix, cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
	}
}

// UploadAll загружает все картинки или ни одной:
// при первой ошибке уже загруженные файлы удаляются
func UploadAll(ctx context.Context, s Storage, images []Image) ([]string, error) {
	const op = "storage.UploadAll"

	uploaded := make([]Uploaded, 0, len(images))
	for _, img := range images {
		res, err := s.Put(ctx, img)
		if err != nil {
			for _, u := range uploaded {
				_ = s.Delete(context.WithoutCancel(ctx), u.Key)
			}
			return nil, fmt.Errorf("%s: upload failed for %s: %w", op, img.Filename, err)
		}
		uploaded = append(uploaded, res)
	}

	urls := make([]string, len(uploaded))
	for i, u := range uploaded {
		urls[i] = u.URL
	}
	return urls, nil
}

// objectName даёт файлу уникальное имя с исходным расширением
func objectName(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".avif":
		return uuid.NewString() + ext, nil
	default:
		return "", fmt.Errorf("%s: %w", filename, ErrUnsupportedImage)
	}
}
