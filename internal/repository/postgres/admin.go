package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/asquebay/storefront-service/internal/model"
)

// AdminRepository — реестр администраторов (admin_users)
type AdminRepository struct {
	db *pgxpool.Pool
	sq squirrel.StatementBuilderType
}

func NewAdminRepository(db *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// AdminByID ищет пользователя в реестре администраторов
// отсутствие записи не ошибка: возвращается nil
func (r *AdminRepository) AdminByID(ctx context.Context, id string) (*model.AdminUser, error) {
	const op = "repository.postgres.admin.AdminByID"

	sql, args, err := r.sq.Select("id::text", "email", "COALESCE(full_name, '')").
		From("admin_users").
		Where(squirrel.Eq{"id::text": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	var u model.AdminUser
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&u.ID, &u.Email, &u.FullName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: failed to query admin user: %w", op, err)
	}
	return &u, nil
}
