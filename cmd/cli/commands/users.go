package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/core/schedule"
	"github.com/jakechorley/incident-desk/pkg/core/services"
)

// operator is the actor recorded for accounts created from the command line
var operator = model.Principal{Username: "cli", Role: model.RoleAdmin, ShiftID: schedule.ShiftAdministrador}

// CreateUserCmd creates the createUser command
func CreateUserCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createUser <username> <role> <shift_id>",
		Short: "Create an account (use this to bootstrap the first admin)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")

			user, err := services.CreateUser(app.Ctx, app.Database, app.Catalog, app.Clock, app.Logger, operator, services.NewUser{
				Username: args[0],
				Role:     args[1],
				ShiftID:  args[2],
				Password: password,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s (%s, shift %s)\n", user.Username, user.Role, user.ShiftID)
			return nil
		},
	}

	cmd.Flags().String("password", "", "Initial password")
	cmd.MarkFlagRequired("password")
	return cmd
}
