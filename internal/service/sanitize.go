package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/asquebay/storefront-service/internal/lib/apperr"
)

var nonPhone = regexp.MustCompile(`[^\d+\-\s()]`)

// IsValidPhone — в номере от 10 до 15 цифр, остальные символы не считаются
func IsValidPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 10 && digits <= 15
}

// SanitizePhone оставляет цифры, плюс, дефис, скобки и пробелы
func SanitizePhone(phone string) string {
	return strings.TrimSpace(nonPhone.ReplaceAllString(phone, ""))
}

// NormalizeOrderNumber приводит номер заказа к виду, в котором он хранится
func NormalizeOrderNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// validationErr превращает ошибку validator в понятное пользователю сообщение
// показывается первое нарушение
func validationErr(err error) *apperr.Error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return &apperr.Error{Kind: apperr.Validation, Message: "Invalid input", Err: err}
	}

	fe := ve[0]
	field := fe.Field()
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", field)
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		if fe.Kind() == reflect.Slice {
			msg = fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		msg = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		if fe.Kind() == reflect.Slice {
			msg = fmt.Sprintf("%s must contain at least one item", field)
		}
	case "gte":
		msg = fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		msg = fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		msg = fmt.Sprintf("%s is invalid", field)
	}
	return &apperr.Error{Kind: apperr.Validation, Message: msg, Err: err}
}
