package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"browsepulse/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers both unknown email and wrong password, so the
// login endpoint never reveals which one it was.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStore manages accounts in Postgres.
type UserStore struct {
	db *PostgresDB
}

// NewUserStore creates the store.
func NewUserStore(db *PostgresDB) *UserStore {
	return &UserStore{db: db}
}

// Create registers a new account with a bcrypt-hashed password.
func (s *UserStore) Create(ctx context.Context, email, password, displayName string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Email, string(hash), user.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Authenticate verifies credentials and returns the user.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	var hash string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, avatar_url
		FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &hash, &user.DisplayName, &user.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

// GetByID loads one user.
func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, avatar_url FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.DisplayName, &user.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
