package main

import (
	"github.com/spf13/cobra"

	"github.com/backmig/backmig/internal/backlog"
	"github.com/backmig/backmig/internal/export"
	"github.com/backmig/backmig/internal/gateway"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Capture the source project into the local staging database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, store, log, err := setup(ctx, true, false)
			if err != nil {
				return err
			}
			defer store.Close()

			client := backlog.NewClient(cfg.Source.Space, cfg.Source.APIKey, cfg.Source.SiteJP)
			gw := gateway.New(cfg.APIInterval(), log)
			return export.New(store, gw, client, cfg, log).Run(ctx)
		},
	}
}
