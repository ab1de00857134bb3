package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

// InsertUser inserts a new account
func (d *DB) InsertUser(ctx context.Context, user model.User) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO users (username, password_hash, role, shift_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.Username, user.PasswordHash, string(user.Role), user.ShiftID, user.Active, user.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", user.Username, db.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser retrieves an account by username
func (d *DB) GetUser(ctx context.Context, username string) (model.User, error) {
	var user model.User
	var role string
	err := d.pool.QueryRow(ctx, `
		SELECT username, password_hash, role, shift_id, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.PasswordHash, &role, &user.ShiftID, &user.Active, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", username, db.ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	user.Role = model.Role(role)
	return user, nil
}

// ListUsers retrieves all accounts ordered by username
func (d *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT username, password_hash, role, shift_id, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var user model.User
		var role string
		if err := rows.Scan(&user.Username, &user.PasswordHash, &role, &user.ShiftID, &user.Active, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.Role = model.Role(role)
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// UpdateUser overwrites the password hash, role, shift and active flag of an account
func (d *DB) UpdateUser(ctx context.Context, user model.User) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, role = $3, shift_id = $4, active = $5
		WHERE username = $1
	`, user.Username, user.PasswordHash, string(user.Role), user.ShiftID, user.Active)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.Username, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", user.Username, db.ErrNotFound)
	}
	return nil
}
