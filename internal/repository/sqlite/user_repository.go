package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"config-codex/internal/domain"
	"config-codex/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	avatar_url TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	is_staff INTEGER NOT NULL DEFAULT 0,
	is_superuser INTEGER NOT NULL DEFAULT 0,
	email_verified INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	last_login_ip TEXT
);
`

const createUsersIndex = `CREATE INDEX IF NOT EXISTS users_email_active_idx ON users (email, is_active);`

const selectUser = `
SELECT id, email, username, password_hash, first_name, last_name, avatar_url,
	is_active, is_staff, is_superuser, email_verified, created_at, updated_at, last_login_ip
FROM users`

// UserRepository implementa repository.UserRepository sobre sqlite.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Init crea el esquema si no existe.
func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createUsersIndex); err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id, email, username, password_hash, first_name, last_name, avatar_url,
	is_active, is_staff, is_superuser, email_verified, created_at, updated_at, last_login_ip)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		nullString(user.AvatarURL),
		user.IsActive,
		user.IsStaff,
		user.IsSuperuser,
		user.EmailVerified,
		user.CreatedAt.UTC(),
		user.UpdatedAt.UTC(),
		nullString(user.LastLoginIP),
	)
	if err != nil {
		return translateError("insert user", err)
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE users SET email = ?, username = ?, password_hash = ?, first_name = ?, last_name = ?,
	avatar_url = ?, is_active = ?, is_staff = ?, is_superuser = ?, email_verified = ?,
	updated_at = ?, last_login_ip = ?
WHERE id = ?`,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		nullString(user.AvatarURL),
		user.IsActive,
		user.IsStaff,
		user.IsSuperuser,
		user.EmailVerified,
		user.UpdatedAt.UTC(),
		nullString(user.LastLoginIP),
		user.ID,
	)
	if err != nil {
		return translateError("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email))
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by email: %w", err)
	}
	return exists, nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (domain.User, error) {
	var (
		user        domain.User
		avatarURL   sql.NullString
		lastLoginIP sql.NullString
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&avatarURL,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLoginIP,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, repository.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	if avatarURL.Valid {
		user.AvatarURL = &avatarURL.String
	}
	if lastLoginIP.Valid {
		user.LastLoginIP = &lastLoginIP.String
	}
	return user, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func translateError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique") {
		if strings.Contains(msg, "users.username") {
			return fmt.Errorf("%s: %w", op, repository.ErrDuplicateUsername)
		}
		return fmt.Errorf("%s: %w", op, repository.ErrDuplicateEmail)
	}
	return fmt.Errorf("%s: %w", op, err)
}
