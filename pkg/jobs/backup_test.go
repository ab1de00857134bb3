package jobs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/db"
)

var cdmx = time.FixedZone("CST", -6*60*60)

func TestNextRun(t *testing.T) {
	rule := "FREQ=DAILY;BYHOUR=3;BYMINUTE=0;BYSECOND=0"

	tests := []struct {
		name     string
		now      time.Time
		expected time.Time
	}{
		{"before today's run", time.Date(2025, time.January, 6, 1, 0, 0, 0, cdmx), time.Date(2025, time.January, 6, 3, 0, 0, 0, cdmx)},
		{"after today's run", time.Date(2025, time.January, 6, 9, 0, 0, 0, cdmx), time.Date(2025, time.January, 7, 3, 0, 0, 0, cdmx)},
		{"exactly at a run", time.Date(2025, time.January, 6, 3, 0, 0, 0, cdmx), time.Date(2025, time.January, 7, 3, 0, 0, 0, cdmx)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := NextRun(rule, tt.now, tt.now, cdmx)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(next), "expected %s, got %s", tt.expected, next)
		})
	}
}

func TestNextRun_Weekly(t *testing.T) {
	monday := time.Date(2025, time.January, 6, 9, 0, 0, 0, cdmx)
	next, err := NextRun("FREQ=WEEKLY;BYDAY=SU;BYHOUR=23;BYMINUTE=30;BYSECOND=0", monday, monday, cdmx)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, time.January, 12, 23, 30, 0, 0, cdmx).Equal(next))
}

func TestNextRun_InvalidRule(t *testing.T) {
	_, err := NextRun("NOT_A_RULE", time.Now(), time.Now(), cdmx)
	assert.Error(t, err)
}

func TestNextRun_FiniteRulesRunOut(t *testing.T) {
	anchor := time.Date(2025, time.January, 6, 1, 0, 0, 0, cdmx)

	tests := []struct {
		name     string
		rule     string
		now      time.Time
		expected time.Time
	}{
		{"count, second run", "FREQ=DAILY;COUNT=2;BYHOUR=3;BYMINUTE=0;BYSECOND=0",
			time.Date(2025, time.January, 6, 9, 0, 0, 0, cdmx), time.Date(2025, time.January, 7, 3, 0, 0, 0, cdmx)},
		{"count exhausted", "FREQ=DAILY;COUNT=2;BYHOUR=3;BYMINUTE=0;BYSECOND=0",
			time.Date(2025, time.January, 8, 9, 0, 0, 0, cdmx), time.Time{}},
		{"until passed", "FREQ=DAILY;UNTIL=20250107T120000Z;BYHOUR=3;BYMINUTE=0;BYSECOND=0",
			time.Date(2025, time.January, 9, 9, 0, 0, 0, cdmx), time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := NextRun(tt.rule, anchor, tt.now, cdmx)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(next), "expected %s, got %s", tt.expected, next)
		})
	}
}

// emptyStore satisfies services.BackupStore with no data
type emptyStore struct{}

func (emptyStore) ListUsers(ctx context.Context) ([]model.User, error) { return nil, nil }

func (emptyStore) ListReports(ctx context.Context, filter db.ReportFilter) ([]model.IncidentReport, error) {
	return nil, nil
}

func (emptyStore) ListAudit(ctx context.Context, filter db.AuditFilter) ([]model.AuditEntry, error) {
	return nil, nil
}

func TestStartBackupJob_WritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every second, so the first run is at most a second away
	err := StartBackupJob(ctx, BackupSchedule{
		RRule:    "FREQ=SECONDLY",
		Location: cdmx,
		Dir:      dir,
	}, emptyStore{}, clock.System{}, zap.NewNop())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		return err == nil && len(entries) > 0
	}, 10*time.Second, 50*time.Millisecond)
}

func TestStartBackupJob_InvalidRule(t *testing.T) {
	err := StartBackupJob(context.Background(), BackupSchedule{RRule: "NOT_A_RULE", Location: cdmx}, emptyStore{}, clock.System{}, zap.NewNop())
	assert.Error(t, err)
}
