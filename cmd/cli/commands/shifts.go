package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/pkg/core/schedule"
)

// ListShiftsCmd creates the listShifts command
func ListShiftsCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "listShifts",
		Short: "List the shift catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			defs := app.Catalog.List()

			fmt.Fprintf(out, "\n%d shifts:\n\n", len(defs))
			for _, def := range defs {
				fmt.Fprintf(out, "  %-24s %s\n", def.ID, describeShift(def))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

// CheckShiftCmd creates the checkShift command
func CheckShiftCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkShift <shift_id>",
		Short: "Check whether the holder of a shift may log in now (or at --at)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shiftID := args[0]
			atFlag, _ := cmd.Flags().GetString("at")

			at := app.Clock.Now()
			if atFlag != "" {
				parsed, err := time.Parse(time.RFC3339, atFlag)
				if err != nil {
					return fmt.Errorf("--at must be an RFC 3339 timestamp: %w", err)
				}
				at = parsed
			}

			eligible, err := app.Checker.Check(shiftID, at)
			if err != nil {
				return err
			}

			loc := app.Checker.Location()
			holiday, err := app.Cfg.IsHoliday(at, loc)
			if err != nil {
				app.Logger.Warn("Failed to evaluate holidays", zap.Error(err))
			}

			app.Logger.Debug("Checked shift",
				zap.String("shift_id", shiftID),
				zap.Time("at", at),
				zap.Bool("eligible", eligible))

			out := cmd.OutOrStdout()
			local := at.In(loc)
			if eligible {
				fmt.Fprintf(out, "✓ %s is on shift at %s\n", shiftID, local.Format("Mon 2006-01-02 15:04 MST"))
			} else {
				fmt.Fprintf(out, "✗ %s is off shift at %s\n", shiftID, local.Format("Mon 2006-01-02 15:04 MST"))
			}
			if holiday {
				fmt.Fprintln(out, "  (holiday)")
			}
			return nil
		},
	}

	cmd.Flags().String("at", "", "Instant to check, RFC 3339 (defaults to now)")
	return cmd
}

func describeShift(def schedule.ShiftDefinition) string {
	if def.Unrestricted {
		return "any time"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s-%s ", def.Start, def.End)
	if def.CrossesMidnight {
		fmt.Fprintf(&b, "starting %s, ending %s", dayList(def.EveningDays), dayList(def.MorningDays))
	} else {
		b.WriteString(dayList(def.ActiveWeekdays))
	}
	if def.IncludesHolidays {
		b.WriteString(" + holidays")
	}
	return b.String()
}

func dayList(days []time.Weekday) string {
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, ",")
}
