package cli

import (
	"fmt"
	"io"

	"anoa.com/promptvault/internal/bootstrap"
	"github.com/spf13/cobra"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	var seedAdmin bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, release, err := opts.open(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open stores", err)
			}
			defer release()

			if err := bootstrap.Migrate(env.DB); err != nil {
				return WrapExitError(ExitCommandError, "migration failed", err)
			}
			if err := bootstrap.SeedRoles(env.DB); err != nil {
				return WrapExitError(ExitCommandError, "failed to seed roles", err)
			}
			if seedAdmin {
				if err := bootstrap.SeedAdminUser(env.DB); err != nil {
					return WrapExitError(ExitCommandError, "failed to seed admin user", err)
				}
			}

			out := NewOutputFormatter(opts.Format, cmd.OutOrStdout())
			return out.Emit(map[string]any{"migrated": true, "admin_seeded": seedAdmin}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, "schema up to date")
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&seedAdmin, "seed-admin", false, "also create the default admin account")
	return cmd
}
