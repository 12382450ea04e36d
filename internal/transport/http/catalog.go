package http

import (
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/storage"
)

// maxUploadBytes — предел multipart-формы с картинками товара
const maxUploadBytes = 32 << 20

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.admin.Categories(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusOK, envelope{"categories": categories})
}

func (h *Handler) addCategory(w http.ResponseWriter, r *http.Request) {
	var in model.NewCategory
	if err := decodeJSON(r, &in); err != nil {
		h.respondError(w, r, err)
		return
	}

	category, err := h.admin.AddCategory(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusCreated, envelope{"category": category})
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.admin.DeleteCategory(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusOK, envelope{})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.admin.Products(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondOK(w, http.StatusOK, envelope{"products": products})
}

// addProduct принимает multipart-форму: поле product с JSON товара и файлы images
func (h *Handler) addProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.respondError(w, r, &apperr.Error{Kind: apperr.Validation, Message: "Invalid multipart form", Err: err})
		return
	}
	defer r.MultipartForm.RemoveAll()

	var in model.NewProduct
	if err := json.Unmarshal([]byte(r.FormValue("product")), &in); err != nil {
		h.respondError(w, r, &apperr.Error{Kind: apperr.Validation, Message: "Invalid product data", Err: err})
		return
	}

	images, closeAll, err := openImages(r.MultipartForm.File["images"])
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	defer closeAll()

	product, err := h.admin.AddProduct(r.Context(), in, images)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.log.Debug("product added over http", slog.Int64("product_id", product.ID), slog.Int("images", len(images)))
	h.respondOK(w, http.StatusCreated, envelope{"product": product})
}

func openImages(headers []*multipart.FileHeader) ([]storage.Image, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	images := make([]storage.Image, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, &apperr.Error{Kind: apperr.Validation, Message: "Unable to read uploaded image", Err: err}
		}
		files = append(files, f)
		images = append(images, storage.Image{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
	}
	return images, closeAll, nil
}
