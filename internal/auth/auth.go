package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/model"
)

// тексты ошибок показываются пользователю как есть
const (
	MsgNotAuthenticated = "Not authenticated. Please log in."
	MsgAdminRequired    = "Unauthorized - Admin access required"
	MsgVerifyFailed     = "Failed to verify admin access"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// AdminStore — реестр администраторов
// AdminByID возвращает nil без ошибки, если пользователя в реестре нет
type AdminStore interface {
	AdminByID(ctx context.Context, id string) (*model.AdminUser, error)
}

// Claims — содержимое токена; Subject — идентификатор пользователя
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Result — итог проверки прав администратора
type Result struct {
	Authorized bool
	User       *model.AdminUser
	Error      string
	err        error
}

// Err возвращает ошибку вида Unauthorized или nil для авторизованного вызова
func (r Result) Err() error {
	if r.Authorized {
		return nil
	}
	return &apperr.Error{Kind: apperr.Unauthorized, Message: r.Error, Err: r.err}
}

// Authenticator проверяет HS256-токены и наличие пользователя в реестре
type Authenticator struct {
	secret []byte
	issuer string
	admins AdminStore
	log    *slog.Logger
}

func New(secret, issuer string, admins AdminStore, log *slog.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		admins: admins,
		log:    log,
	}
}

// IssueToken выпускает токен для пользователя (консоль, тесты)
func (a *Authenticator) IssueToken(userID, email string, ttl time.Duration) (string, error) {
	const op = "auth.Authenticator.IssueToken"

	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// ParseToken проверяет подпись, срок действия и издателя токена
func (a *Authenticator) ParseToken(token string) (*Claims, error) {
	const op = "auth.Authenticator.ParseToken"

	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w: missing subject", op, ErrInvalidToken)
	}
	return claims, nil
}

// CheckAdminAuth проверяет, что вызов сделан администратором
// администратор, уже проверенный в этом контексте, повторно не ищется
func (a *Authenticator) CheckAdminAuth(ctx context.Context) Result {
	const op = "auth.Authenticator.CheckAdminAuth"

	if user, ok := AdminFrom(ctx); ok {
		return Result{Authorized: true, User: user}
	}

	claims, err := a.ParseToken(TokenFrom(ctx))
	if err != nil {
		a.log.Debug("admin token rejected", slog.String("op", op), slog.String("error", err.Error()))
		return Result{Error: MsgNotAuthenticated, err: err}
	}

	user, err := a.admins.AdminByID(ctx, claims.Subject)
	if err != nil {
		a.log.Error("failed to check admin status",
			slog.String("op", op),
			slog.String("user_id", claims.Subject),
			slog.String("error", err.Error()),
		)
		return Result{Error: MsgVerifyFailed, err: err}
	}
	if user == nil {
		return Result{Error: MsgAdminRequired}
	}
	return Result{Authorized: true, User: user}
}

// Authenticate проверяет права и запоминает администратора в контексте
func (a *Authenticator) Authenticate(ctx context.Context) (context.Context, Result) {
	res := a.CheckAdminAuth(ctx)
	if res.Authorized {
		ctx = WithAdmin(ctx, res.User)
	}
	return ctx, res
}

// BearerToken достаёт токен из заголовка Authorization
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

type ctxKey int

const (
	tokenKey ctxKey = iota
	adminKey
)

// WithToken кладёт в контекст токен вызывающего
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// WithAdmin кладёт в контекст проверенного администратора
func WithAdmin(ctx context.Context, user *model.AdminUser) context.Context {
	return context.WithValue(ctx, adminKey, user)
}

func AdminFrom(ctx context.Context) (*model.AdminUser, bool) {
	user, ok := ctx.Value(adminKey).(*model.AdminUser)
	return user, ok && user != nil
}
