package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/eligibility"
	"github.com/jakechorley/incident-desk/pkg/core/incident"
	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
	"github.com/jakechorley/incident-desk/pkg/session"
	"github.com/jakechorley/incident-desk/pkg/utils/password"
)

var (
	// ErrInvalidCredentials is returned for an unknown user, a wrong password or an inactive account
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrOutOfShift is returned when the user's shift does not allow logging in now
	ErrOutOfShift = errors.New("outside of shift")

	// ErrSessionRevoked is returned when a session's account was deactivated, removed
	// or had its role or shift changed after login
	ErrSessionRevoked = errors.New("session revoked")

	// ErrInvalidInput is returned when a request carries malformed values
	ErrInvalidInput = errors.New("invalid input")

	// ErrPermissionDenied is shared with the report lifecycle rules
	ErrPermissionDenied = incident.ErrPermissionDenied
)

// LoginStore is the persistence login needs
type LoginStore interface {
	GetUser(ctx context.Context, username string) (model.User, error)
	InsertAudit(ctx context.Context, entry model.AuditEntry) error
}

// LoginResult is returned on a successful login
type LoginResult struct {
	Token     string
	Principal model.Principal
	EnTurno   bool
}

// Login verifies the password, then the shift window, and opens a session.
// Users whose shift is closed (or unknown) are refused with ErrOutOfShift.
func Login(ctx context.Context, store LoginStore, sessions session.Store, checker *eligibility.Checker, clk clock.Clock, logger *zap.Logger, username, plain string) (*LoginResult, error) {
	logger.Debug("Login attempt", zap.String("username", username))

	user, err := store.GetUser(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := password.Check(user.PasswordHash, plain); err != nil {
		logger.Debug("Password mismatch", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		logger.Debug("Inactive user refused", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	now := clk.Now()
	enTurno, err := checker.Check(user.ShiftID, now)
	if err != nil {
		logger.Warn("User has an unknown shift", zap.String("username", username), zap.String("shift_id", user.ShiftID))
	}
	if !enTurno {
		appendAudit(ctx, store, logger, model.AuditEntry{
			At:     now,
			Actor:  username,
			Action: ActionLoginRefused,
			Detail: user.ShiftID,
		})
		return nil, fmt.Errorf("%w: shift %s is closed at %s", ErrOutOfShift, user.ShiftID, now.In(checker.Location()).Format("Mon 15:04"))
	}

	principal := user.Principal()
	token, err := sessions.Create(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	appendAudit(ctx, store, logger, model.AuditEntry{
		At:     now,
		Actor:  username,
		Action: ActionLogin,
	})

	logger.Debug("Login succeeded", zap.String("username", username), zap.String("role", string(principal.Role)))

	return &LoginResult{Token: token, Principal: principal, EnTurno: enTurno}, nil
}

// Logout ends the session identified by token
func Logout(ctx context.Context, sessions session.Store, token string) error {
	if err := sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// Authenticate resolves a session token against the current account. Sessions for
// accounts that are gone, inactive, or whose role or shift no longer match are deleted
// and refused with ErrSessionRevoked. Unknown tokens return session.ErrNotFound.
func Authenticate(ctx context.Context, users db.UserStore, sessions session.Store, logger *zap.Logger, token string) (model.Principal, error) {
	principal, err := sessions.Get(ctx, token)
	if err != nil {
		return model.Principal{}, err
	}

	user, err := users.GetUser(ctx, principal.Username)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return model.Principal{}, fmt.Errorf("failed to load user: %w", err)
	}
	if err == nil && user.Active && user.Principal() == principal {
		return principal, nil
	}

	logger.Info("Revoking stale session", zap.String("username", principal.Username))
	if err := sessions.Delete(ctx, token); err != nil {
		return model.Principal{}, fmt.Errorf("failed to revoke session: %w", err)
	}
	return model.Principal{}, fmt.Errorf("%w: account %s changed", ErrSessionRevoked, principal.Username)
}
