package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mediaprofile/userauth/internal/models"
	"github.com/mediaprofile/userauth/internal/store/migrations"
)

const uniqueViolation = "23505"

// OpenPostgres opens a pgx-backed *sql.DB and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// MigratePostgres applies the embedded schema migrations.
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// PostgresUserStore handles user CRUD against PostgreSQL.
type PostgresUserStore struct {
	db    *sql.DB
	newID func() string
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db, newID: func() string { return uuid.NewString() }}
}

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token, created_at, updated_at`

func (s *PostgresUserStore) Create(ctx context.Context, u *models.User) (*models.User, error) {
	out := *u
	out.ID = s.newID()
	out.RefreshToken = ""
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		out.ID, out.Username, out.Email, out.FullName, out.AvatarURL, out.CoverImageURL, out.PasswordHash,
	).Scan(&out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, models.ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &out, nil
}

func (s *PostgresUserStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (*models.User, error) {
	if username == "" && email == "" {
		return nil, models.ErrUserNotFound
	}
	return s.queryUser(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		 LIMIT 1`,
		username, email,
	)
}

func (s *PostgresUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrUserNotFound
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UpdateRefreshToken stores token, or NULL when token is empty.
func (s *PostgresUserStore) UpdateRefreshToken(ctx context.Context, id, token string) error {
	return s.exec(ctx,
		`UPDATE users SET refresh_token = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`,
		id, token,
	)
}

func (s *PostgresUserStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, hash,
	)
}

func (s *PostgresUserStore) queryUser(ctx context.Context, query string, args ...any) (*models.User, error) {
	var (
		u       models.User
		refresh sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.AvatarURL, &u.CoverImageURL,
		&u.PasswordHash, &refresh, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.RefreshToken = refresh.String
	return &u, nil
}

func (s *PostgresUserStore) exec(ctx context.Context, query, id, arg string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrUserNotFound
	}
	res, err := s.db.ExecContext(ctx, query, id, arg)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}
