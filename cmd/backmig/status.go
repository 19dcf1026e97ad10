package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show staged row counts and the user mapping report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, store, _, err := setup(ctx, false, false)
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.TableCounts(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("staging database: %s\n\n", store.Path())
			for _, c := range counts {
				if c.Rows == 0 {
					continue
				}
				fmt.Printf("  %-28s %6d\n", c.Table, c.Rows)
			}

			report, err := store.MappingReport(ctx)
			if err != nil {
				return err
			}
			if len(report) == 0 {
				return nil
			}
			fmt.Println("\nuser mapping:")
			unresolved := 0
			for _, r := range report {
				if r.TargetUserID == 0 {
					unresolved++
					fmt.Printf("  %6d %-20s -> (unresolved)\n", r.SourceUserID, r.SourceName)
					continue
				}
				fmt.Printf("  %6d %-20s -> %6d %s\n", r.SourceUserID, r.SourceName, r.TargetUserID, r.TargetName)
			}
			if unresolved > 0 {
				fmt.Printf("%d user(s) unresolved\n", unresolved)
			}
			return nil
		},
	}
}
