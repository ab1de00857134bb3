package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/services"
)

// BackupSchedule describes when and where scheduled backups run
type BackupSchedule struct {
	RRule     string
	Location  *time.Location
	Dir       string
	Retention int
	Timeout   time.Duration
}

// NextRun returns the first occurrence of rule strictly after now, evaluated in loc.
// Occurrences are counted from midnight of the day of anchor, so COUNT and UNTIL
// run out instead of restarting. The zero time means no further occurrences.
func NextRun(rule string, anchor, now time.Time, loc *time.Location) (time.Time, error) {
	r, err := anchoredRule(rule, anchor, loc)
	if err != nil {
		return time.Time{}, err
	}
	return r.After(now, false), nil
}

func anchoredRule(rule string, anchor time.Time, loc *time.Location) (*rrule.RRule, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backup rrule: %w", err)
	}
	local := anchor.In(loc)
	r.DTStart(time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc))
	return r, nil
}

// StartBackupJob runs services.Backup at each occurrence of the schedule until ctx is done.
// The schedule is anchored to the day the job starts. It returns immediately; the job
// runs in its own goroutine.
func StartBackupJob(ctx context.Context, schedule BackupSchedule, store services.BackupStore, clk clock.Clock, logger *zap.Logger) error {
	rule, err := anchoredRule(schedule.RRule, clk.Now(), schedule.Location)
	if err != nil {
		return err
	}
	timeout := schedule.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	go func() {
		for {
			now := clk.Now()
			next := rule.After(now, false)
			if next.IsZero() {
				logger.Warn("Backup job stopped: no further occurrences", zap.String("rrule", schedule.RRule))
				return
			}
			logger.Debug("Next backup scheduled", zap.Time("at", next))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			runCtx, cancel := context.WithTimeout(ctx, timeout)
			path, err := services.Backup(runCtx, store, clk, logger, schedule.Dir, schedule.Retention)
			cancel()
			if err != nil {
				logger.Error("Backup job failed", zap.Error(err))
				continue
			}
			logger.Info("Backup job completed", zap.String("path", path))
		}
	}()

	return nil
}
