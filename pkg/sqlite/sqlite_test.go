package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

var baseTime = time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	database, err := NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	applied, err := database.RunMigrations(ctx, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	return database
}

func insertDraft(t *testing.T, database *DB, owner string) model.IncidentReport {
	t.Helper()
	report := model.IncidentReport{
		State:        model.StateDraft,
		CreatedBy:    owner,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
		IncidentType: "inundacion",
		Location:     "Col. Centro",
	}
	require.NoError(t, database.InsertReport(context.Background(), &report))
	return report
}

func TestRunMigrations_Idempotent(t *testing.T) {
	database := newTestDB(t)

	applied, err := database.RunMigrations(context.Background(), zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestPendingMigrations(t *testing.T) {
	all, err := pendingMigrations(map[string]bool{})
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "001_init.sql", all[0])

	none, err := pendingMigrations(map[string]bool{"001_init.sql": true})
	require.NoError(t, err)
	assert.NotContains(t, none, "001_init.sql")
}

func TestInsertReport_AssignsSequentialIDs(t *testing.T) {
	database := newTestDB(t)

	first := insertDraft(t, database, "ana")
	second := insertDraft(t, database, "beto")

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
}

func TestGetReport(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	occurred := baseTime.Add(-time.Hour)

	report := model.IncidentReport{
		State:           model.StateDraft,
		CreatedBy:       "ana",
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
		IncidentType:    "incendio",
		OccurredAt:      &occurred,
		PeopleAffected:  3,
		Observations:    "Dos lesionados",
		PropertyManager: "Juan Perez",
	}
	require.NoError(t, database.InsertReport(ctx, &report))

	stored, err := database.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDraft, stored.State)
	assert.Equal(t, 3, stored.PeopleAffected)
	assert.Equal(t, "Juan Perez", stored.PropertyManager)
	require.NotNil(t, stored.OccurredAt)
	assert.True(t, occurred.Equal(*stored.OccurredAt))
	assert.True(t, baseTime.Equal(stored.CreatedAt))
	assert.Nil(t, stored.SubmittedAt)

	_, err = database.GetReport(ctx, 99)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestListReports_Filters(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	insertDraft(t, database, "ana")
	insertDraft(t, database, "beto")
	third := insertDraft(t, database, "ana")

	third.State = model.StateEnRevision
	require.NoError(t, database.UpdateReport(ctx, third, model.StateDraft))

	all, err := database.ListReports(ctx, db.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID, "newest first")

	mine, err := database.ListReports(ctx, db.ReportFilter{CreatedBy: "ana"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	inReview, err := database.ListReports(ctx, db.ReportFilter{State: model.StateEnRevision})
	require.NoError(t, err)
	require.Len(t, inReview, 1)
	assert.Equal(t, third.ID, inReview[0].ID)
}

func TestUpdateReport_Conditional(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	report := insertDraft(t, database, "ana")

	submittedAt := baseTime.Add(time.Minute)
	report.State = model.StateEnRevision
	report.SubmittedAt = &submittedAt
	report.SubmittedBy = "ana"
	require.NoError(t, database.UpdateReport(ctx, report, model.StateDraft))

	err := database.UpdateReport(ctx, report, model.StateDraft)
	assert.ErrorIs(t, err, db.ErrStaleState)

	report.ID = 42
	err = database.UpdateReport(ctx, report, model.StateDraft)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestUpdateReport_ConcurrentDecisionsExactlyOneWins(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	report := insertDraft(t, database, "ana")
	report.State = model.StateEnRevision
	require.NoError(t, database.UpdateReport(ctx, report, model.StateDraft))

	approved := report
	approved.State = model.StateAprobado
	approved.ApprovedBy = "carla"
	rejected := report
	rejected.State = model.StateDraft
	rejected.RejectedBy = "diego"
	rejected.RejectReason = model.DefaultRejectReason

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, candidate := range []model.IncidentReport{approved, rejected} {
		wg.Add(1)
		go func(i int, candidate model.IncidentReport) {
			defer wg.Done()
			errs[i] = database.UpdateReport(ctx, candidate, model.StateEnRevision)
		}(i, candidate)
	}
	wg.Wait()

	wins, stale := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, db.ErrStaleState):
			stale++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, stale)

	stored, err := database.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Contains(t, []model.State{model.StateAprobado, model.StateDraft}, stored.State)
}

func TestUsers(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	user := model.User{
		Username:     "ana",
		PasswordHash: "hash",
		Role:         model.RoleBrigadista,
		ShiftID:      "matutino",
		Active:       true,
		CreatedAt:    baseTime,
	}
	require.NoError(t, database.InsertUser(ctx, user))
	assert.ErrorIs(t, database.InsertUser(ctx, user), db.ErrConflict)

	stored, err := database.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, model.RoleBrigadista, stored.Role)
	assert.True(t, stored.Active)

	user.Active = false
	user.ShiftID = "vespertino"
	require.NoError(t, database.UpdateUser(ctx, user))

	stored, err = database.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, "vespertino", stored.ShiftID)

	_, err = database.GetUser(ctx, "nadie")
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.ErrorIs(t, database.UpdateUser(ctx, model.User{Username: "nadie"}), db.ErrNotFound)

	require.NoError(t, database.InsertUser(ctx, model.User{Username: "beto", Role: model.RoleAdmin, ShiftID: "administrador", CreatedAt: baseTime}))
	users, err := database.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "ana", users[0].Username)
}

func TestAudit_AppendOnly(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, database.InsertAudit(ctx, model.AuditEntry{ID: "a1", At: baseTime, Actor: "ana", Action: "create", ReportID: 1}))
	require.NoError(t, database.InsertAudit(ctx, model.AuditEntry{ID: "a2", At: baseTime.Add(time.Second), Actor: "carla", Action: "approve", ReportID: 1}))
	require.NoError(t, database.InsertAudit(ctx, model.AuditEntry{ID: "a3", At: baseTime.Add(2 * time.Second), Actor: "ana", Action: "login"}))

	forReport, err := database.ListAudit(ctx, db.AuditFilter{ReportID: 1})
	require.NoError(t, err)
	require.Len(t, forReport, 2)
	assert.Equal(t, "create", forReport[0].Action)

	byActor, err := database.ListAudit(ctx, db.AuditFilter{Actor: "ana", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "a1", byActor[0].ID)

	_, err = database.conn.ExecContext(ctx, `UPDATE audit_log SET actor = 'x'`)
	assert.Error(t, err)
	_, err = database.conn.ExecContext(ctx, `DELETE FROM audit_log`)
	assert.Error(t, err)
}
