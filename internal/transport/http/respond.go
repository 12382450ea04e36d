package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/asquebay/storefront-service/internal/lib/apperr"
)

// envelope — тело ответа: success плюс поля с данными или error
type envelope map[string]any

func (h *Handler) respondOK(w http.ResponseWriter, status int, fields envelope) {
	fields["success"] = true
	h.respondJSON(w, status, fields)
}

// respondError отдаёт конверт с ошибкой; внутренние ошибки логируются,
// наружу уходит только пользовательское сообщение
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	msg := apperr.Message(err)

	if ae, ok := apperr.As(err); ok && ae.Kind == apperr.RateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(ae.RetryAfter))
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Duration(ae.RetryAfter)*time.Second).Unix(), 10))
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		if _, ok := apperr.As(err); !ok {
			msg = "internal server error"
		}
	}

	h.respondJSON(w, status, envelope{"success": false, "error": msg})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal JSON response", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success": false, "error": "internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(response)
}

// maxBodyBytes ограничивает JSON-тела запросов
const maxBodyBytes = 1 << 20

// decodeJSON читает тело запроса в dst; ошибка уже в виде Validation
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.ValidationErr("Request body is empty")
		}
		return &apperr.Error{Kind: apperr.Validation, Message: "Invalid JSON body", Err: err}
	}
	return nil
}

// pathID разбирает числовой идентификатор из пути
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.ValidationErr(fmt.Sprintf("Invalid %s: %q", name, raw))
	}
	return id, nil
}
