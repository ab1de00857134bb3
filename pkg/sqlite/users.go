package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

const userColumns = `username, password_hash, role, shift_id, active, created_at`

func scanUser(row scanner) (model.User, error) {
	var user model.User
	var role string
	if err := row.Scan(&user.Username, &user.PasswordHash, &role, &user.ShiftID, &user.Active, &user.CreatedAt); err != nil {
		return model.User{}, err
	}
	user.Role = model.Role(role)
	return user, nil
}

// InsertUser inserts a new account
func (d *DB) InsertUser(ctx context.Context, user model.User) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
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
	row := d.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", username, db.ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return user, nil
}

// ListUsers retrieves all accounts ordered by username
func (d *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

// UpdateUser overwrites the password hash, role, shift and active flag of an account
func (d *DB) UpdateUser(ctx context.Context, user model.User) error {
	res, err := d.conn.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, role = ?, shift_id = ?, active = ?
		WHERE username = ?
	`, user.PasswordHash, string(user.Role), user.ShiftID, user.Active, user.Username)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.Username, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", user.Username, db.ErrNotFound)
	}
	return nil
}
