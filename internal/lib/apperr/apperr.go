package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind классифицирует ошибку для клиента
type Kind string

const (
	Unauthorized Kind = "unauthorized"
	Validation   Kind = "validation"
	RateLimited  Kind = "rate_limited"
	NotFound     Kind = "not_found"
	Conflict     Kind = "conflict"
	Internal     Kind = "internal"
)

// Error — нормализованная ошибка слоя доступа к данным
// Message безопасно показывать пользователю, Err — внутренняя причина
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func UnauthorizedErr(msg string) *Error {
	return &Error{Kind: Unauthorized, Message: msg}
}

func ValidationErr(msg string) *Error {
	return &Error{Kind: Validation, Message: msg}
}

func NotFoundErr(msg string) *Error {
	return &Error{Kind: NotFound, Message: msg}
}

func ConflictErr(msg string) *Error {
	return &Error{Kind: Conflict, Message: msg}
}

// RateLimitedErr формирует сообщение с временем ожидания в секундах
func RateLimitedErr(retryAfter int) *Error {
	return &Error{
		Kind:       RateLimited,
		Message:    fmt.Sprintf("Too many requests. Please try again in %d seconds.", retryAfter),
		RetryAfter: retryAfter,
	}
}

// Wrap превращает произвольную ошибку во внутреннюю с сообщением fallback
// причина остаётся в Err для логов, наружу она не уходит
func Wrap(err error, fallback string) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	return &Error{Kind: Internal, Message: fallback, Err: err}
}

// Cause превращает произвольную ошибку во внутреннюю, показывая текст первопричины
// цепочка op до неё наружу не уходит; fallback — если у первопричины нет текста
func Cause(err error, fallback string) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	msg := rootMessage(err)
	if msg == "" {
		msg = fallback
	}
	return &Error{Kind: Internal, Message: msg, Err: err}
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return strings.TrimSpace(err.Error())
		}
		err = next
	}
}

func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// Is сообщает, относится ли ошибка к указанному виду
func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// Message возвращает пользовательский текст ошибки
func Message(err error) string {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.Message
	}
	return err.Error()
}

func HTTPStatus(err error) int {
	if ae, ok := As(err); ok {
		switch ae.Kind {
		case Validation:
			return http.StatusBadRequest
		case Unauthorized:
			return http.StatusUnauthorized
		case RateLimited:
			return http.StatusTooManyRequests
		case NotFound:
			return http.StatusNotFound
		case Conflict:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}
