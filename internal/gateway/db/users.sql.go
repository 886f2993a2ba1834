package db

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, password_hash, display_name, phone, country, role, created_at, last_login_at`

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Phone        string
	Country      string
	Role         string
	CreatedAt    time.Time
}

const createUser = `
INSERT INTO users (id, email, password_hash, display_name, phone, country, role, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// CreateUser はユーザーを作成する。メールアドレスが重複する場合はUNIQUE制約違反になる。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID, arg.Email, arg.PasswordHash, arg.DisplayName,
		arg.Phone, arg.Country, arg.Role, arg.CreatedAt,
	)
	return err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

// GetUserByID はIDでユーザーを取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.db, &u, getUserByID, id)
	return u, err
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.db, &u, getUserByEmail, email)
	return u, err
}

const updateLastLogin = `UPDATE users SET last_login_at = ? WHERE id = ?`

// UpdateLastLogin は最終ログイン日時を更新する。
func (q *Queries) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, updateLastLogin, at, id)
	return err
}

// UpdateProfileParams はUpdateProfileの引数。
type UpdateProfileParams struct {
	ID          string
	DisplayName string
	Phone       string
	Country     string
}

const updateProfile = `UPDATE users SET display_name = ?, phone = ?, country = ? WHERE id = ?`

// UpdateProfile は表示名・電話番号・国を更新し、更新された行数を返す。
func (q *Queries) UpdateProfile(ctx context.Context, arg UpdateProfileParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateProfile, arg.DisplayName, arg.Phone, arg.Country, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateUserRole = `UPDATE users SET role = ? WHERE id = ?`

// UpdateUserRole はユーザーのロールを変更し、更新された行数を返す。
func (q *Queries) UpdateUserRole(ctx context.Context, id, role string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateUserRole, role, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateUserRoleByEmail = `UPDATE users SET role = ? WHERE email = ?`

// UpdateUserRoleByEmail はメールアドレスで指定したユーザーのロールを変更し、更新された行数を返す。
func (q *Queries) UpdateUserRoleByEmail(ctx context.Context, email, role string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateUserRoleByEmail, role, email)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListUsersParams はListUsersの引数。空のフィールドは条件に含めない。
type ListUsersParams struct {
	// Role はロールで絞り込む。
	Role string
	// Query はメールアドレスまたは表示名の部分一致。
	Query  string
	Limit  uint64
	Offset uint64
}

func (arg ListUsersParams) where() sq.And {
	cond := sq.And{}
	if arg.Role != "" {
		cond = append(cond, sq.Eq{"role": arg.Role})
	}
	if arg.Query != "" {
		like := "%" + arg.Query + "%"
		cond = append(cond, sq.Or{
			sq.Like{"email": like},
			sq.Like{"display_name": like},
		})
	}
	return cond
}

// ListUsers は条件に一致するユーザーを作成日時の新しい順に返す。
func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]User, error) {
	query, args, err := sq.Select(userColumns).
		From("users").
		Where(arg.where()).
		OrderBy("created_at DESC", "id").
		Limit(arg.Limit).
		Offset(arg.Offset).
		ToSql()
	if err != nil {
		return nil, err
	}
	users := []User{}
	if err := sqlx.SelectContext(ctx, q.db, &users, query, args...); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsers は条件に一致するユーザー数を返す。
func (q *Queries) CountUsers(ctx context.Context, arg ListUsersParams) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").From("users").Where(arg.where()).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	err = sqlx.GetContext(ctx, q.db, &n, query, args...)
	return n, err
}
