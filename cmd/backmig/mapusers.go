package main

import (
	"github.com/spf13/cobra"

	"github.com/backmig/backmig/internal/identity"
)

func newMapUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map-users",
		Short: "Build the source-to-target user mapping from staged data",
		Long: `map-users seeds one mapping row per staged source user, then resolves
them against the captured target users: first by email address, then by
display name. Users left unresolved fall back to a representative target
user during import, with a warning per occurrence.

Run import's prepare phase (or a previous full import) first so the
target users are captured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, log, err := setup(ctx, false, false)
			if err != nil {
				return err
			}
			defer store.Close()

			mapper := identity.NewMapper(store, log)
			if err := mapper.Seed(ctx); err != nil {
				return err
			}
			if err := mapper.MapByEmail(ctx); err != nil {
				return err
			}
			if err := mapper.MapByName(ctx); err != nil {
				return err
			}
			unresolved, err := mapper.Report(ctx)
			if err != nil {
				return err
			}
			if unresolved > 0 {
				log.Warn("%d user(s) remain unresolved; import will substitute the representative user", unresolved)
			}
			return nil
		},
	}
}
