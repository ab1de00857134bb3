package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/eligibility"
	"github.com/jakechorley/incident-desk/pkg/core/incident"
	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/core/schedule"
	"github.com/jakechorley/incident-desk/pkg/sqlite"
	"github.com/jakechorley/incident-desk/pkg/utils/password"
)

var (
	cdmx = time.FixedZone("CST", -6*60*60)

	// Monday 6 January 2025, 09:00 local
	mondayMorning = time.Date(2025, time.January, 6, 9, 0, 0, 0, cdmx)

	ana   = model.Principal{Username: "ana", Role: model.RoleBrigadista, ShiftID: schedule.ShiftLunVieMatutino}
	beto  = model.Principal{Username: "beto", Role: model.RoleBrigadista, ShiftID: schedule.ShiftLunVieMatutino}
	carla = model.Principal{Username: "carla", Role: model.RoleCoordinador, ShiftID: schedule.ShiftLunVieMatutino}
	diego = model.Principal{Username: "diego", Role: model.RoleCoordinador, ShiftID: schedule.ShiftLunVieMatutino}
	elena = model.Principal{Username: "elena", Role: model.RoleAutoridad, ShiftID: schedule.ShiftAutoridad}
	root  = model.Principal{Username: "root", Role: model.RoleAdmin, ShiftID: schedule.ShiftAdministrador}
)

type testEnv struct {
	store   *sqlite.DB
	clock   *clock.Fixed
	checker *eligibility.Checker
	machine *incident.Machine
	catalog *schedule.Catalog
	logger  *zap.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.RunMigrations(ctx, zap.NewNop())
	require.NoError(t, err)

	clk := clock.NewFixed(mondayMorning)
	catalog := schedule.DefaultCatalog()
	checker, err := eligibility.NewChecker(catalog, cdmx, eligibility.DefaultGracePeriod, clk)
	require.NoError(t, err)

	return &testEnv{
		store:   store,
		clock:   clk,
		checker: checker,
		machine: incident.NewMachine(),
		catalog: catalog,
		logger:  zap.NewNop(),
	}
}

func (e *testEnv) addUser(t *testing.T, p model.Principal, plain string, active bool) {
	t.Helper()
	hash, err := password.Hash(plain)
	require.NoError(t, err)
	require.NoError(t, e.store.InsertUser(context.Background(), model.User{
		Username:     p.Username,
		PasswordHash: hash,
		Role:         p.Role,
		ShiftID:      p.ShiftID,
		Active:       active,
		CreatedAt:    e.clock.Now(),
	}))
}

func (e *testEnv) createDraft(t *testing.T, owner model.Principal) *model.IncidentReport {
	t.Helper()
	report, err := CreateReport(context.Background(), e.store, e.clock, e.logger, owner, NewReport{
		IncidentType: "incendio",
		Location:     "Bodega 4",
	})
	require.NoError(t, err)
	return report
}

func (e *testEnv) inReview(t *testing.T, owner model.Principal) *model.IncidentReport {
	t.Helper()
	report := e.createDraft(t, owner)
	submitted, err := TransitionReport(context.Background(), e.store, e.machine, e.clock, e.logger, owner, report.ID, model.EventSubmit, "")
	require.NoError(t, err)
	return submitted
}

func ptr[T any](v T) *T {
	return &v
}
