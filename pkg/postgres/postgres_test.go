package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

func TestPendingMigrations(t *testing.T) {
	all, err := pendingMigrations(map[string]bool{})
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "001_init.sql", all[0])

	none, err := pendingMigrations(map[string]bool{"001_init.sql": true})
	require.NoError(t, err)
	assert.NotContains(t, none, "001_init.sql")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

// openTestDB connects to TEST_DATABASE_URL and applies migrations. Tests are
// skipped when the variable is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := NewDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.RunMigrations(ctx, zap.NewNop())
	require.NoError(t, err)
	return database
}

func TestDB_ReportLifecycle(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	owner := "pg-" + uuid.NewString()[:8]

	report := model.IncidentReport{
		State:        model.StateDraft,
		CreatedBy:    owner,
		CreatedAt:    now,
		UpdatedAt:    now,
		IncidentType: "fuga de gas",
		Location:     "Mercado",
	}
	require.NoError(t, database.InsertReport(ctx, &report))
	require.NotZero(t, report.ID)

	stored, err := database.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mercado", stored.Location)
	assert.Equal(t, model.StateDraft, stored.State)

	submitted := stored
	submitted.State = model.StateEnRevision
	submitted.SubmittedAt = &now
	submitted.SubmittedBy = owner
	require.NoError(t, database.UpdateReport(ctx, submitted, model.StateDraft))

	// A second writer holding the old state loses
	err = database.UpdateReport(ctx, submitted, model.StateDraft)
	assert.ErrorIs(t, err, db.ErrStaleState)

	reports, err := database.ListReports(ctx, db.ReportFilter{CreatedBy: owner})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, model.StateEnRevision, reports[0].State)

	_, err = database.GetReport(ctx, report.ID+1_000_000)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestDB_Users(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	username := "pg-" + uuid.NewString()[:8]

	user := model.User{Username: username, PasswordHash: "x", Role: model.RoleBrigadista, ShiftID: "matutino", Active: true, CreatedAt: time.Now()}
	require.NoError(t, database.InsertUser(ctx, user))
	assert.ErrorIs(t, database.InsertUser(ctx, user), db.ErrConflict)

	user.Active = false
	require.NoError(t, database.UpdateUser(ctx, user))

	stored, err := database.GetUser(ctx, username)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, model.RoleBrigadista, stored.Role)
}

func TestDB_Audit(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	actor := "pg-" + uuid.NewString()[:8]

	entry := model.AuditEntry{ID: uuid.NewString(), At: time.Now(), Actor: actor, Action: "login"}
	require.NoError(t, database.InsertAudit(ctx, entry))

	entries, err := database.ListAudit(ctx, db.AuditFilter{Actor: actor})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "login", entries[0].Action)
	assert.Zero(t, entries[0].ReportID)
}
