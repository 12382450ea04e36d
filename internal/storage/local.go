package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local складывает картинки в каталог, отдаваемый статикой
type Local struct {
	dir       string
	urlPrefix string
}

func NewLocal(dir, urlPrefix string) *Local {
	return &Local{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}
}

func (l *Local) Put(ctx context.Context, img Image) (Uploaded, error) {
	const op = "storage.Local.Put"

	name, err := objectName(img.Filename)
	if err != nil {
		return Uploaded{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return Uploaded{}, fmt.Errorf("%s: %w", op, err)
	}

	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return Uploaded{}, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, img.Body); err != nil {
		return Uploaded{}, fmt.Errorf("%s: %w", op, err)
	}
	return Uploaded{Key: name, URL: l.urlPrefix + "/" + name}, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	const op = "storage.Local.Delete"

	// ключ не должен выводить за пределы каталога
	if err := os.Remove(filepath.Join(l.dir, filepath.Base(key))); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (l *Local) String() string { return "local:" + l.dir }
