package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/core/schedule"
	"github.com/jakechorley/incident-desk/pkg/db"
	"github.com/jakechorley/incident-desk/pkg/utils/password"
)

// UserStore is the persistence the account use cases need
type UserStore interface {
	db.UserStore
	InsertAudit(ctx context.Context, entry model.AuditEntry) error
}

// NewUser carries the details of an account being created
type NewUser struct {
	Username string
	Password string
	Role     string
	ShiftID  string
}

// UserPatch is a partial account update. Nil fields are left alone.
type UserPatch struct {
	Password *string
	Role     *string
	ShiftID  *string
	Active   *bool
}

func requireAdmin(actor model.Principal, action string) error {
	if actor.Role != model.RoleAdmin {
		return fmt.Errorf("%w: role %q cannot %s", ErrPermissionDenied, actor.Role, action)
	}
	return nil
}

func resolveRoleAndShift(catalog *schedule.Catalog, role, shiftID string) (model.Role, error) {
	parsed, err := model.ParseRole(role)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !catalog.Has(shiftID) {
		return "", fmt.Errorf("%w: %w: %q", ErrInvalidInput, schedule.ErrUnknownShift, shiftID)
	}
	return parsed, nil
}

// CreateUser adds an account. Only admins may create accounts.
func CreateUser(ctx context.Context, store UserStore, catalog *schedule.Catalog, clk clock.Clock, logger *zap.Logger, actor model.Principal, input NewUser) (*model.User, error) {
	if err := requireAdmin(actor, "create users"); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	role, err := resolveRoleAndShift(catalog, input.Role, input.ShiftID)
	if err != nil {
		return nil, err
	}
	hash, err := password.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := clk.Now()
	user := model.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		ShiftID:      input.ShiftID,
		Active:       true,
		CreatedAt:    now,
	}
	if err := store.InsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	appendAudit(ctx, store, logger, model.AuditEntry{
		At:     now,
		Actor:  actor.Username,
		Action: ActionCreateUser,
		Detail: username,
	})

	logger.Debug("User created", zap.String("username", username), zap.String("role", string(role)), zap.String("shift_id", user.ShiftID))
	return &user, nil
}

// ListUsers returns every account. Only admins may list accounts.
func ListUsers(ctx context.Context, store db.UserStore, actor model.Principal) ([]model.User, error) {
	if err := requireAdmin(actor, "list users"); err != nil {
		return nil, err
	}
	users, err := store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser changes an account's password, role, shift or active flag
func UpdateUser(ctx context.Context, store UserStore, catalog *schedule.Catalog, clk clock.Clock, logger *zap.Logger, actor model.Principal, username string, patch UserPatch) (*model.User, error) {
	if err := requireAdmin(actor, "update users"); err != nil {
		return nil, err
	}

	user, err := store.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var changed []string
	role := string(user.Role)
	if patch.Role != nil {
		role = *patch.Role
		changed = append(changed, "role")
	}
	shiftID := user.ShiftID
	if patch.ShiftID != nil {
		shiftID = *patch.ShiftID
		changed = append(changed, "shift_id")
	}
	user.Role, err = resolveRoleAndShift(catalog, role, shiftID)
	if err != nil {
		return nil, err
	}
	user.ShiftID = shiftID

	if patch.Password != nil {
		hash, err := password.Hash(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		user.PasswordHash = hash
		changed = append(changed, "password")
	}
	if patch.Active != nil {
		user.Active = *patch.Active
		changed = append(changed, "active")
	}

	if err := store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	appendAudit(ctx, store, logger, model.AuditEntry{
		At:     clk.Now(),
		Actor:  actor.Username,
		Action: ActionUpdateUser,
		Detail: username + ":" + strings.Join(changed, ","),
	})

	logger.Debug("User updated", zap.String("username", username), zap.Strings("changed", changed))
	return &user, nil
}
