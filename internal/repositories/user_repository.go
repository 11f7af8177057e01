package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-server/internal/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	uniqueViolation   = "23505"
	userSelectColumns = `id, name, email, password_hash, online, last_login, created_at`
)

// UserRepository abstracts persisted user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, id, name, email, passwordHash string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListOnlineUsers(ctx context.Context) ([]models.User, error)
	CountUsers(ctx context.Context) (total int, online int, err error)
	SetOnlineStatus(ctx context.Context, id string, online bool, lastLogin *time.Time) error
}

// UserRepo is a sqlx-backed repository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a new account.
func (r *UserRepo) CreateUser(ctx context.Context, id, name, email, passwordHash string) (models.User, error) {
	var user models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (id, name, email, password_hash) VALUES ($1, $2, $3, $4) RETURNING `+userSelectColumns,
		id, name, email, passwordHash).StructScan(&user)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userSelectColumns+` FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByEmail fetches a user by email.
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userSelectColumns+` FROM users WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// ListUsers returns every account ordered by name.
func (r *UserRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userSelectColumns+` FROM users ORDER BY name ASC`)
	return users, err
}

// ListOnlineUsers returns accounts currently flagged online.
func (r *UserRepo) ListOnlineUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT `+userSelectColumns+` FROM users WHERE online = TRUE ORDER BY name ASC`)
	return users, err
}

// CountUsers returns total and currently-online account counts.
func (r *UserRepo) CountUsers(ctx context.Context) (int, int, error) {
	var total, online int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, 0, err
	}
	if err := r.db.GetContext(ctx, &online, `SELECT COUNT(*) FROM users WHERE online = TRUE`); err != nil {
		return 0, 0, err
	}
	return total, online, nil
}

// SetOnlineStatus toggles the durable online flag, stamping last_login
// when provided.
func (r *UserRepo) SetOnlineStatus(ctx context.Context, id string, online bool, lastLogin *time.Time) error {
	var res sql.Result
	var err error
	if lastLogin != nil {
		res, err = r.db.ExecContext(ctx, `UPDATE users SET online=$2, last_login=$3 WHERE id=$1`, id, online, *lastLogin)
	} else {
		res, err = r.db.ExecContext(ctx, `UPDATE users SET online=$2 WHERE id=$1`, id, online)
	}
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == uniqueViolation
	}
	return false
}
